package ring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ringbridge/ringbridge/internal/stream"
	"github.com/ringbridge/ringbridge/pkg/core"
	"github.com/ringbridge/ringbridge/pkg/mjpeg"
	"github.com/ringbridge/ringbridge/pkg/ring"
	"github.com/rs/zerolog"
)

// Client is the part of the Ring REST API used by cameras
type Client interface {
	GetSocketTicket(ctx context.Context) (string, error)
	GetSnapshot(ctx context.Context, cameraID int) ([]byte, error)
	GetHistory(ctx context.Context, cameraID int, kind string, limit int) ([]ring.HistoryEvent, error)
	GetRecordingURL(ctx context.Context, eventID int64, transcoded bool) (string, error)
}

type CameraConfig struct {
	ID       int    `yaml:"id" json:"id"`
	DeviceID string `yaml:"device_id" json:"device_id"`
	Name     string `yaml:"name" json:"name"`
	HEVC     bool   `yaml:"hevc" json:"hevc"`
}

// StateChange is published on every stream state transition
type StateChange struct {
	Camera *Camera
	Kind   stream.Kind
	Status stream.Status
}

type Camera struct {
	CameraConfig

	client   Client
	registry *stream.Registry
	states   *core.Observable[StateChange]
	log      zerolog.Logger

	mu        sync.Mutex
	image     []byte
	imageTime time.Time
	selected  EventSelect
	recording *stream.Recording

	cancel context.CancelFunc
	done   chan struct{}
}

type CameraOptions struct {
	RTSP            string
	SnapshotRefresh time.Duration
	Config          stream.Config
	States          *core.Observable[StateChange] // OnStateChange listeners if nil
	Dialer          stream.Dialer                 // ring.Dial if nil
}

func NewCamera(conf CameraConfig, client Client, opts CameraOptions) *Camera {
	c := &Camera{
		CameraConfig: conf,
		client:       client,
		states:       opts.States,
		log:          log.With().Str("camera", conf.DeviceID).Logger(),
		selected:     EventSelect{Kind: "motion", Index: 1},
		done:         make(chan struct{}),
	}

	if c.states == nil {
		c.states = &states
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = stream.DialerFunc(c.dial)
	}

	c.registry = stream.NewRegistry(c, stream.Sources{
		Tickets:    client,
		Dialer:     dialer,
		Images:     c,
		Recordings: c,
	}, stream.Options{
		DeviceID: conf.DeviceID,
		RTSP:     opts.RTSP,
		HEVC:     conf.HEVC,
		Config:   opts.Config,
		Logger:   &log,
	})

	var ctx context.Context
	ctx, c.cancel = context.WithCancel(context.Background())

	if opts.SnapshotRefresh > 0 {
		go c.pollImages(ctx, opts.SnapshotRefresh)
	} else {
		close(c.done)
	}

	return c
}

func (c *Camera) dial(ctx context.Context, ticket string) (stream.LiveSession, error) {
	session, err := ring.Dial(ctx, ring.SessionConfig{DoorbotID: c.ID, Logger: c.log}, ticket)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// PublishStreamState is called by the engines on every transition
func (c *Camera) PublishStreamState(kind stream.Kind, status stream.Status) {
	c.states.Fire(StateChange{Camera: c, Kind: kind, Status: status})
}

func (c *Camera) Start(ctx context.Context, kind stream.Kind) error {
	return c.registry.Start(ctx, kind)
}

func (c *Camera) Stop(kind stream.Kind) error {
	return c.registry.Stop(kind)
}

func (c *Camera) Statuses() map[stream.Kind]stream.Status {
	return c.registry.Statuses()
}

func (c *Camera) StartOverlay(duration time.Duration) {
	c.registry.StartOverlay(duration)
}

func (c *Camera) PublishURL(kind stream.Kind) string {
	return c.registry.PublishURL(kind)
}

// Image returns the latest still image of the camera
func (c *Camera) Image() ([]byte, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.image, c.imageTime
}

func (c *Camera) pollImages(ctx context.Context, refresh time.Duration) {
	defer close(c.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := c.refreshImage(ctx); err != nil && ctx.Err() == nil {
			c.log.Debug().Err(err).Msg("[ring] snapshot")
		}

		timer.Reset(refresh)
	}
}

func (c *Camera) refreshImage(ctx context.Context) error {
	b, err := c.client.GetSnapshot(ctx, c.ID)
	if err != nil {
		return err
	}
	if !mjpeg.IsJPEG(b) {
		return errors.New("ring: snapshot is not a JPEG")
	}

	c.mu.Lock()
	c.image = b
	c.imageTime = time.Now()
	c.mu.Unlock()
	return nil
}

// SelectEvent changes the recording played by the event stream
func (c *Camera) SelectEvent(s string) error {
	sel, err := ParseEventSelect(s)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.selected = sel
	c.recording = nil
	c.mu.Unlock()
	return nil
}

func (c *Camera) SelectedEvent() EventSelect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Recording resolves the selected event into a download URL. A missing
// event is not an error, the URL carries the not found status instead.
func (c *Camera) Recording(ctx context.Context) (*stream.Recording, error) {
	sel := c.SelectedEvent()

	rec := &stream.Recording{
		Kind:       sel.Kind,
		Index:      sel.Index,
		Transcoded: sel.Transcoded,
		URL:        stream.RecordingNotFound,
	}

	events, err := c.client.GetHistory(ctx, c.ID, sel.Kind, sel.Index)
	if err != nil {
		return nil, err
	}

	if len(events) >= sel.Index {
		event := events[sel.Index-1]
		url, err := c.client.GetRecordingURL(ctx, event.ID, sel.Transcoded)
		if err != nil {
			return nil, err
		}
		if url != "" {
			rec.URL = url
		}
	}

	c.mu.Lock()
	c.recording = rec
	c.mu.Unlock()

	return rec, nil
}

// Attributes are published next to the stream state
func (c *Camera) Attributes(kind stream.Kind) map[string]any {
	attrs := map[string]any{
		"name":      c.Name,
		"streamUrl": c.PublishURL(kind),
	}

	if kind == stream.KindEvent {
		c.mu.Lock()
		attrs["eventSelect"] = c.selected.String()
		if c.recording != nil {
			attrs["recordingUrl"] = c.recording.URL
		}
		c.mu.Unlock()
	}

	return attrs
}

// Close stops all streams and the snapshot poller
func (c *Camera) Close() {
	c.cancel()
	c.registry.Close()
	<-c.done
}
