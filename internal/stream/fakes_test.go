package stream

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ringbridge/ringbridge/pkg/core"
	"github.com/ringbridge/ringbridge/pkg/ffmpeg"
	"github.com/ringbridge/ringbridge/pkg/ring"
	"github.com/stretchr/testify/require"
)

const timeout = 3 * time.Second

type recorder struct {
	ch chan Status
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Status, 64)}
}

func (r *recorder) publish(status Status) {
	r.ch <- status
}

func (r *recorder) next(t *testing.T) Status {
	select {
	case status := <-r.ch:
		return status
	case <-time.After(timeout):
		t.Fatal("no status published")
	}
	return ""
}

func (r *recorder) none(t *testing.T, d time.Duration) {
	select {
	case status := <-r.ch:
		t.Fatalf("unexpected status %s", status)
	case <-time.After(d):
	}
}

type fakeSession struct {
	state core.Observable[ring.ConnectionState]
	ended core.Observable[struct{}]

	altMedia     *ring.AltMedia
	transcodeErr error
	endOnStop    bool

	mu    sync.Mutex
	stops int
	args  *ffmpeg.Args
}

func (s *fakeSession) OnConnectionState(f func(state ring.ConnectionState)) *core.Subscription {
	return s.state.Subscribe(f)
}

func (s *fakeSession) OnCallEnded(f func()) *core.Subscription {
	return s.ended.Subscribe(func(struct{}) { f() })
}

func (s *fakeSession) StartTranscoding(args *ffmpeg.Args) (*ring.AltMedia, error) {
	s.mu.Lock()
	s.args = args
	s.mu.Unlock()
	return s.altMedia, s.transcodeErr
}

func (s *fakeSession) Stop() {
	s.mu.Lock()
	s.stops++
	end := s.endOnStop
	s.mu.Unlock()

	if end {
		s.ended.Fire(struct{}{})
	}
}

func (s *fakeSession) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// waitSubscribed waits until the worker subscribed to the session
func (s *fakeSession) waitSubscribed(t *testing.T) {
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.args != nil && s.state.Len() > 0
	}, timeout, 5*time.Millisecond)
}

type fakeDialer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	tickets  []string
	err      error
}

func (d *fakeDialer) Dial(_ context.Context, ticket string) (LiveSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tickets = append(d.tickets, ticket)
	if d.err != nil {
		return nil, d.err
	}
	if len(d.sessions) == 0 {
		return nil, errors.New("no more sessions")
	}

	s := d.sessions[0]
	d.sessions = d.sessions[1:]
	return s, nil
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tickets)
}

type fakeTickets struct {
	ticket string
	err    error
	wait   chan struct{} // blocks until closed if not nil
}

func (f *fakeTickets) GetSocketTicket(ctx context.Context) (string, error) {
	if f.wait != nil {
		<-f.wait
	}
	return f.ticket, f.err
}

type fakeImages struct {
	mu  sync.Mutex
	img []byte
	ts  time.Time
}

func (f *fakeImages) Set(img []byte) {
	f.mu.Lock()
	f.img = img
	f.ts = time.Now()
	f.mu.Unlock()
}

func (f *fakeImages) Image() ([]byte, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.img, f.ts
}

type fakeLive struct {
	mu       sync.Mutex
	altMedia *ring.AltMedia
	unbinds  int
}

func (f *fakeLive) AltMedia() *ring.AltMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.altMedia
}

func (f *fakeLive) UnbindAltMedia() {
	f.mu.Lock()
	f.unbinds++
	f.mu.Unlock()
}

func (f *fakeLive) Unbinds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unbinds
}

type fakeRecordings struct {
	rec *Recording
	err error
}

func (f *fakeRecordings) Recording(context.Context) (*Recording, error) {
	return f.rec, f.err
}

// fakeFFmpeg writes a shell script that acts like every ffmpeg profile:
// the encoder copies stdin to stdout, the publisher saves stdin to the file
// "published", decoders print JPEG frames, all calls are saved to "calls"
func fakeFFmpeg(t *testing.T, publisherExits bool) (bin, dir string) {
	publisher := `exec cat > "$dir/published"`
	if publisherExits {
		publisher = "exit 1"
	}
	return fakeFFmpegWith(t, publisher, "exec cat")
}

// fakeFFmpegWith replaces the publisher and encoder commands, "$dir" is the temp dir
func fakeFFmpegWith(t *testing.T, publisher, encoder string) (bin, dir string) {
	dir = t.TempDir()

	script := `#!/bin/sh
dir="` + dir + `"
echo "$*" >> "$dir/calls"
case "$*" in
*"-f mpegts -probesize"*) ` + publisher + ` ;;
*"-f image2pipe -probesize"*) ` + encoder + ` ;;
*"-f null"*) exec sleep 30 ;;
*"-f sdp"*pipe:3*) cat > /dev/null; printf 'TS-DATA'; printf '\377\330tap\377\331' >&3; exec sleep 30 ;;
*"-f sdp"*) cat > /dev/null; printf '\377\330live\377\331'; exec sleep 30 ;;
*"-i exit "*) exit 0 ;;
*"-re -i"*) exec sleep 30 ;;
esac
exit 1
`

	bin = filepath.Join(dir, "ffmpeg")
	require.Nil(t, os.WriteFile(bin, []byte(script), 0755))
	return
}

func readFile(dir, name string) string {
	b, _ := os.ReadFile(filepath.Join(dir, name))
	return string(b)
}

func fileContains(dir, name, substr string) func() bool {
	return func() bool {
		return strings.Contains(readFile(dir, name), substr)
	}
}
