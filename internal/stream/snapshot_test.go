package stream

import (
	"strings"
	"testing"
	"time"

	"github.com/ringbridge/ringbridge/pkg/ring"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var still = []byte("\xff\xd8still\xff\xd9")

func newTestSnapshot(t *testing.T, bin string, live AltMediaSource, mode string) (*Snapshot, *fakeImages, *recorder) {
	images := &fakeImages{}
	rec := newRecorder()
	s := NewSnapshot(images, live, SnapshotConfig{
		FFmpeg:       bin,
		Interval:     10 * time.Millisecond,
		Overlay:      mode,
		OverlayWait:  200 * time.Millisecond,
		OverlayTail:  300 * time.Millisecond,
		KeepaliveURL: "rtsp://localhost/cam_live",
	}, rec.publish, zerolog.Nop())
	t.Cleanup(s.Stop)
	return s, images, rec
}

func TestSnapshotNoImage(t *testing.T) {
	bin, dir := fakeFFmpeg(t, false)
	s, _, rec := newTestSnapshot(t, bin, &fakeLive{}, OverlayVideo)

	s.Start("rtsp://localhost/cam_snapshot")
	require.Equal(t, StatusFailed, rec.next(t))
	require.Empty(t, readFile(dir, "calls"))

	// failed to inactive is a transition
	s.Stop()
	require.Equal(t, StatusInactive, rec.next(t))
}

func TestSnapshotSpawnError(t *testing.T) {
	s, images, rec := newTestSnapshot(t, "/nonexistent/ffmpeg", &fakeLive{}, OverlayVideo)
	images.Set(still)

	s.Start("rtsp://localhost/cam_snapshot")
	require.Equal(t, StatusFailed, rec.next(t))
	require.Equal(t, StatusFailed, s.Status())
}

func TestSnapshotStream(t *testing.T) {
	bin, dir := fakeFFmpeg(t, false)
	s, images, rec := newTestSnapshot(t, bin, &fakeLive{}, OverlayVideo)
	images.Set(still)

	s.Start("rtsp://localhost/cam_snapshot")
	require.Equal(t, StatusActive, rec.next(t))

	// images go through the encoder to the publisher
	require.Eventually(t, fileContains(dir, "published", string(still)), timeout, 10*time.Millisecond)
	require.Contains(t, readFile(dir, "calls"), "rtsp://localhost/cam_snapshot")

	// start while active republishes the state and spawns nothing
	calls := readFile(dir, "calls")
	s.Start("rtsp://localhost/cam_snapshot")
	require.Equal(t, StatusActive, rec.next(t))
	require.Equal(t, calls, readFile(dir, "calls"))

	s.Stop()
	require.Equal(t, StatusInactive, rec.next(t))

	s.Stop()
	rec.none(t, 50*time.Millisecond)
}

func TestSnapshotStartWhileStopping(t *testing.T) {
	bin, _ := fakeFFmpeg(t, false)
	s, images, rec := newTestSnapshot(t, bin, &fakeLive{}, OverlayVideo)
	images.Set(still)

	s.mu.Lock()
	s.status = StatusStopping
	s.mu.Unlock()

	s.Start("rtsp://localhost/cam_snapshot")
	require.Equal(t, StatusFailed, rec.next(t))

	s.mu.Lock()
	s.status = StatusInactive
	s.mu.Unlock()
}

func TestSnapshotPublisherExit(t *testing.T) {
	bin, _ := fakeFFmpeg(t, true)
	s, images, rec := newTestSnapshot(t, bin, &fakeLive{}, OverlayVideo)
	images.Set(still)

	s.Start("rtsp://localhost/cam_snapshot")
	require.Equal(t, StatusActive, rec.next(t))
	require.Equal(t, StatusInactive, rec.next(t))
	rec.none(t, 100*time.Millisecond)
}

func TestOverlayNoLiveStream(t *testing.T) {
	bin, dir := fakeFFmpeg(t, false)
	live := &fakeLive{}
	s, images, rec := newTestSnapshot(t, bin, live, OverlayVideo)
	images.Set(still)

	s.Start("rtsp://localhost/cam_snapshot")
	require.Equal(t, StatusActive, rec.next(t))

	s.StartOverlay(time.Second)
	require.True(t, s.OverlayActive())

	require.Eventually(t, func() bool { return !s.OverlayActive() }, timeout, 10*time.Millisecond)
	require.Contains(t, readFile(dir, "calls"), "-f null")
	require.NotContains(t, readFile(dir, "calls"), "-f sdp")
	require.Zero(t, live.Unbinds())
	require.Equal(t, StatusActive, s.Status())
}

func TestOverlayInactiveSnapshot(t *testing.T) {
	bin, dir := fakeFFmpeg(t, false)
	s, _, _ := newTestSnapshot(t, bin, &fakeLive{}, OverlayVideo)

	s.StartOverlay(time.Second)
	require.False(t, s.OverlayActive())
	require.Empty(t, readFile(dir, "calls"))
}

func TestOverlayVideo(t *testing.T) {
	bin, dir := fakeFFmpeg(t, false)
	live := &fakeLive{altMedia: &ring.AltMedia{Port: 5000, SDP: "v=0\r\n"}}
	s, images, rec := newTestSnapshot(t, bin, live, OverlayVideo)
	images.Set(still)

	s.Start("rtsp://localhost/cam_snapshot")
	require.Equal(t, StatusActive, rec.next(t))

	s.StartOverlay(0)
	s.StartOverlay(0) // already running

	// decoder output replaces the encoder output
	require.Eventually(t, fileContains(dir, "published", "TS-DATA"), timeout, 10*time.Millisecond)
	require.Equal(t, 1, live.Unbinds())

	require.Eventually(t, func() bool { return !s.OverlayActive() }, timeout, 10*time.Millisecond)

	// the frame from the tap is newer than the still image and resumes the stream
	tap := "\xff\xd8tap\xff\xd9"
	require.Eventually(t, func() bool {
		published := readFile(dir, "published")
		i := strings.Index(published, "TS-DATA")
		return i >= 0 && strings.Contains(published[i:], tap)
	}, timeout, 10*time.Millisecond)

	require.Equal(t, 1, strings.Count(readFile(dir, "calls"), "-f sdp"))

	// newer still image wins again
	newer := []byte("\xff\xd8newer\xff\xd9")
	images.Set(newer)
	require.Eventually(t, fileContains(dir, "published", string(newer)), timeout, 10*time.Millisecond)
}

func TestOverlayFrames(t *testing.T) {
	bin, dir := fakeFFmpeg(t, false)
	live := &fakeLive{altMedia: &ring.AltMedia{Port: 5000, SDP: "v=0\r\n"}}
	s, images, rec := newTestSnapshot(t, bin, live, OverlayFrames)
	images.Set(still)

	s.Start("rtsp://localhost/cam_snapshot")
	require.Equal(t, StatusActive, rec.next(t))

	s.StartOverlay(10 * time.Second)

	// frames from the decoder are encoded instead of the still image
	require.Eventually(t, fileContains(dir, "published", "\xff\xd8live\xff\xd9"), timeout, 10*time.Millisecond)
	require.NotContains(t, readFile(dir, "calls"), "pipe:3")

	// stop aborts the overlay
	s.Stop()
	require.Equal(t, StatusInactive, rec.next(t))
	require.Eventually(t, func() bool { return !s.OverlayActive() }, timeout, 10*time.Millisecond)
}

func TestSnapshotEncoderExit(t *testing.T) {
	// the encoder dies after the first byte, so the next image write fails
	bin, dir := fakeFFmpegWith(t, `exec cat > "$dir/published"`, "exec head -c 1")
	s, images, rec := newTestSnapshot(t, bin, &fakeLive{}, OverlayVideo)
	images.Set(still)

	s.Start("rtsp://localhost/cam_snapshot")
	require.Equal(t, StatusActive, rec.next(t))
	require.Equal(t, StatusInactive, rec.next(t))
	require.Equal(t, StatusInactive, s.Status())

	// ticker is stopped, nothing more reaches the publisher
	published := readFile(dir, "published")
	rec.none(t, 100*time.Millisecond)
	require.Equal(t, published, readFile(dir, "published"))
	require.LessOrEqual(t, len(published), 1)
}
