package stream

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	mu     sync.Mutex
	states []string
}

func (d *fakeDevice) PublishStreamState(kind Kind, status Status) {
	d.mu.Lock()
	d.states = append(d.states, string(kind)+":"+string(status))
	d.mu.Unlock()
}

func (d *fakeDevice) States() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.states...)
}

func newTestRegistry(t *testing.T, device Device) *Registry {
	logger := zerolog.Nop()
	return NewRegistry(device, Sources{
		Tickets:    &fakeTickets{err: context.DeadlineExceeded},
		Dialer:     &fakeDialer{},
		Images:     &fakeImages{},
		Recordings: &fakeRecordings{rec: &Recording{URL: RecordingNotFound}},
	}, Options{
		DeviceID: "abc",
		RTSP:     "rtsp://127.0.0.1:8554/",
		Logger:   &logger,
	})
}

func TestRegistryPublishURL(t *testing.T) {
	r := newTestRegistry(t, &fakeDevice{})
	defer r.Close()

	require.Equal(t, "rtsp://127.0.0.1:8554/abc_live", r.PublishURL(KindLive))
	require.Equal(t, "rtsp://127.0.0.1:8554/abc_snapshot", r.PublishURL(KindSnapshot))
	require.Equal(t, "rtsp://127.0.0.1:8554/abc_event", r.PublishURL(KindEvent))
	require.Equal(t, "rtsp://127.0.0.1:8554/abc_live", r.snapshot.conf.KeepaliveURL)
}

func TestRegistryStartStop(t *testing.T) {
	device := &fakeDevice{}
	r := newTestRegistry(t, device)
	defer r.Close()

	ctx := context.Background()

	require.NotNil(t, r.Start(ctx, "panorama"))
	require.NotNil(t, r.Stop("panorama"))
	require.Equal(t, StatusInactive, r.Status("panorama"))

	// every source is unavailable
	for _, kind := range Kinds {
		require.Nil(t, r.Start(ctx, kind))
	}

	require.Equal(t, map[Kind]Status{
		KindLive:     StatusFailed,
		KindSnapshot: StatusFailed,
		KindEvent:    StatusFailed,
	}, r.Statuses())

	require.Equal(t, []string{"live:failed", "snapshot:failed", "event:failed"}, device.States())

	require.Nil(t, r.Stop(KindEvent))
	require.Equal(t, StatusInactive, r.Status(KindEvent))
	require.Equal(t, "event:inactive", device.States()[3])
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("snapshot")
	require.Nil(t, err)
	require.Equal(t, KindSnapshot, kind)

	_, err = ParseKind("")
	require.NotNil(t, err)

	require.Equal(t, StatusInactive, StatusStopping.Public())
	require.Equal(t, StatusFailed, StatusFailed.Public())
}
