package stream

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Device receives every stream state transition of the camera
type Device interface {
	PublishStreamState(kind Kind, status Status)
}

// Sources are the camera facing collaborators of the engines
type Sources struct {
	Tickets    TicketSource
	Dialer     Dialer
	Images     ImageSource
	Recordings RecordingSource
}

type Options struct {
	DeviceID string
	RTSP     string // RTSP server base URL: rtsp://127.0.0.1:8554
	HEVC     bool
	Config   Config // Defaults() if empty
	Logger   *zerolog.Logger
}

// Registry holds exactly one engine of every kind for one camera
type Registry struct {
	deviceID string
	rtsp     string

	worker   *Worker
	live     *Live
	snapshot *Snapshot
	event    *EventStream
}

func NewRegistry(device Device, src Sources, opts Options) *Registry {
	conf := opts.Config
	if conf.FFmpeg == "" {
		conf = Defaults()
	}

	logger := log
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("camera", opts.DeviceID).Logger()

	r := &Registry{
		deviceID: opts.DeviceID,
		rtsp:     strings.TrimSuffix(opts.RTSP, "/"),
	}

	publisher := func(kind Kind) func(Status) {
		return func(status Status) {
			logger.Debug().Str("kind", string(kind)).Msgf("[stream] state %s", status)
			device.PublishStreamState(kind, status)
		}
	}

	r.worker = NewWorker(src.Dialer, WorkerConfig{FFmpeg: conf.FFmpeg})
	r.live = NewLive(src.Tickets, r.worker, publisher(KindLive), logger)
	r.snapshot = NewSnapshot(src.Images, r.live, SnapshotConfig{
		FFmpeg:       conf.FFmpeg,
		Interval:     conf.SnapshotInterval,
		StopTimeout:  conf.StopTimeout,
		Overlay:      conf.Overlay,
		OverlayWait:  conf.OverlayWait,
		KeepaliveURL: r.PublishURL(KindLive),
	}, publisher(KindSnapshot), logger)
	r.event = NewEventStream(src.Recordings, EventConfig{
		FFmpeg: conf.FFmpeg,
		HEVC:   opts.HEVC,
	}, publisher(KindEvent), logger)

	return r
}

// PublishURL returns RTSP path of the stream: <rtsp>/<device>_<kind>
func (r *Registry) PublishURL(kind Kind) string {
	return r.rtsp + "/" + r.deviceID + "_" + string(kind)
}

// Start blocks while the engine acquires its inputs (ticket, recording URL)
func (r *Registry) Start(ctx context.Context, kind Kind) error {
	switch kind {
	case KindLive:
		r.live.Start(ctx, r.PublishURL(kind))
	case KindSnapshot:
		r.snapshot.Start(r.PublishURL(kind))
	case KindEvent:
		r.event.Start(ctx, r.PublishURL(kind))
	default:
		_, err := ParseKind(string(kind))
		return err
	}
	return nil
}

func (r *Registry) Stop(kind Kind) error {
	switch kind {
	case KindLive:
		r.live.Stop()
	case KindSnapshot:
		r.snapshot.Stop()
	case KindEvent:
		r.event.Stop()
	default:
		_, err := ParseKind(string(kind))
		return err
	}
	return nil
}

func (r *Registry) Status(kind Kind) Status {
	switch kind {
	case KindLive:
		return r.live.Status()
	case KindSnapshot:
		return r.snapshot.Status()
	case KindEvent:
		return r.event.Status()
	}
	return StatusInactive
}

func (r *Registry) Statuses() map[Kind]Status {
	statuses := make(map[Kind]Status, len(Kinds))
	for _, kind := range Kinds {
		statuses[kind] = r.Status(kind)
	}
	return statuses
}

// StartOverlay shows the live video in the snapshot stream
func (r *Registry) StartOverlay(duration time.Duration) {
	r.snapshot.StartOverlay(duration)
}

// Close stops all streams and terminates the worker
func (r *Registry) Close() {
	r.event.Stop()
	r.snapshot.Stop()
	r.live.Stop()
	r.worker.Close()
	r.live.Wait()
}
