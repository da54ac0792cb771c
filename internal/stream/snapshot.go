package stream

import (
	"sync"
	"time"

	"github.com/ringbridge/ringbridge/pkg/process"
	"github.com/ringbridge/ringbridge/pkg/ring"
	"github.com/rs/zerolog"
)

// ImageSource returns the latest still image of the camera and its time
type ImageSource interface {
	Image() ([]byte, time.Time)
}

type AltMediaSource interface {
	AltMedia() *ring.AltMedia
	UnbindAltMedia()
}

type SnapshotConfig struct {
	FFmpeg       string
	Interval     time.Duration
	StopTimeout  time.Duration
	Overlay      string // video or frames
	OverlayWait  time.Duration
	OverlayTail  time.Duration
	KeepaliveURL string // live stream RTSP path of the same camera
}

func (c *SnapshotConfig) setDefaults() {
	if c.Interval == 0 {
		c.Interval = 50 * time.Millisecond
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = process.StopTimeout
	}
	if c.Overlay == "" {
		c.Overlay = OverlayVideo
	}
	if c.OverlayWait == 0 {
		c.OverlayWait = 5 * time.Second
	}
	if c.OverlayTail == 0 {
		c.OverlayTail = 5 * time.Second
	}
}

// Snapshot publishes still images as a video stream: the ticker writes images
// to the encoder, the encoder output is piped to the publisher.
type Snapshot struct {
	conf    SnapshotConfig
	images  ImageSource
	live    AltMediaSource
	publish func(Status)
	log     zerolog.Logger

	mu        sync.Mutex
	status    Status
	encoder   *process.Process
	publisher *process.Process
	pipe      *process.Pipe
	done      chan struct{} // stops ticker and watchers of the current session
	overlay   *overlay

	// the last frame captured from the live video
	frame     []byte
	frameTime time.Time
}

func NewSnapshot(images ImageSource, live AltMediaSource, conf SnapshotConfig, publish func(Status), log zerolog.Logger) *Snapshot {
	conf.setDefaults()
	return &Snapshot{
		conf:    conf,
		images:  images,
		live:    live,
		publish: publish,
		log:     log,
		status:  StatusInactive,
	}
}

func (s *Snapshot) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Snapshot) Start(publishURL string) {
	s.mu.Lock()
	switch s.status {
	case StatusActive:
		s.mu.Unlock()
		s.publish(StatusActive)
		return
	case StatusStopping:
		s.mu.Unlock()
		s.log.Debug().Msg("[stream] snapshot stream is stopping, start rejected")
		s.publish(StatusFailed)
		return
	case StatusStarting:
		s.mu.Unlock()
		return
	}

	if s.image() == nil {
		s.status = StatusFailed
		s.mu.Unlock()
		s.log.Debug().Msg("[stream] snapshot stream failed to start - no available snapshot")
		s.publish(StatusFailed)
		return
	}

	s.status = StatusStarting
	s.mu.Unlock()

	encoder, publisher, err := s.spawn(publishURL)

	s.mu.Lock()
	if err != nil {
		if s.status == StatusStarting {
			s.status = StatusFailed
		}
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("[stream] snapshot stream failed to start - failed to spawn ffmpeg")
		s.publish(StatusFailed)
		return
	}

	if s.status != StatusStarting {
		// stopped while starting
		s.mu.Unlock()
		_ = encoder.Kill()
		_ = publisher.Kill()
		return
	}

	done := make(chan struct{})
	s.status = StatusActive
	s.encoder = encoder
	s.publisher = publisher
	s.pipe = process.Chain(encoder, publisher)
	s.pipe.OnError(func(err error) {
		s.log.Debug().Err(err).Msg("[stream] snapshot stream publisher write")
		s.Stop()
	})
	s.done = done
	s.mu.Unlock()

	s.log.Debug().Msg("[stream] snapshot stream transcoding session has started")
	s.publish(StatusActive)

	go s.tick(encoder, done)

	go func() {
		select {
		case <-publisher.Done():
			s.log.Debug().Err(publisher.Err()).Str("stderr", publisher.Stderr()).Msg("[stream] snapshot stream transcoding session has ended")
			s.Stop()
		case <-done:
		}
	}()
}

func (s *Snapshot) spawn(publishURL string) (encoder, publisher *process.Process, err error) {
	publisher, err = process.Spawn(
		PublisherArgs(s.conf.FFmpeg, publishURL).Command(),
		process.WithStdin(), process.WithLogger(s.log),
	)
	if err != nil {
		return nil, nil, err
	}

	encoder, err = process.Spawn(
		EncoderArgs(s.conf.FFmpeg).Command(),
		process.WithStdin(), process.WithStdout(), process.WithLogger(s.log),
	)
	if err != nil {
		_ = publisher.Kill()
		return nil, nil, err
	}

	return encoder, publisher, nil
}

func (s *Snapshot) tick(encoder *process.Process, done chan struct{}) {
	ticker := time.NewTicker(s.conf.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		active := s.status == StatusActive
		img := s.image()
		s.mu.Unlock()

		if !active {
			s.Stop()
			return
		}

		if img == nil {
			continue
		}

		if _, err := encoder.Stdin.Write(img); err != nil {
			select {
			case <-done:
			default:
				s.log.Debug().Err(err).Msg("[stream] writing image to snapshot stream failed")
				s.Stop()
			}
			return
		}
	}
}

// image returns the newest of the still image and the captured frame,
// must be called under lock
func (s *Snapshot) image() []byte {
	img, ts := s.images.Image()
	if s.frame != nil && (img == nil || s.frameTime.After(ts)) {
		return s.frame
	}
	return img
}

func (s *Snapshot) setFrame(frame []byte) {
	s.mu.Lock()
	s.frame = frame
	s.frameTime = time.Now()
	s.mu.Unlock()
}

// Stop is safe in any state, inactive is published only on transition
func (s *Snapshot) Stop() {
	s.mu.Lock()
	switch s.status {
	case StatusInactive, StatusStopping:
		s.mu.Unlock()
		return
	case StatusStarting, StatusFailed:
		s.status = StatusInactive
		s.mu.Unlock()
		s.publish(StatusInactive)
		return
	}

	s.status = StatusStopping

	if s.done != nil {
		close(s.done)
		s.done = nil
	}

	ov := s.overlay
	encoder, publisher := s.encoder, s.publisher
	s.encoder, s.publisher, s.pipe = nil, nil, nil
	s.mu.Unlock()

	if ov != nil {
		ov.abort()
	}

	if encoder != nil {
		_ = encoder.Kill()
	}

	if publisher != nil {
		if err := publisher.Stop(s.conf.StopTimeout); err != nil {
			s.log.Trace().Err(err).Msg("[stream] snapshot stream publisher stop")
		}
	}

	s.mu.Lock()
	s.status = StatusInactive
	s.mu.Unlock()

	s.log.Debug().Msg("[stream] snapshot stream has stopped")
	s.publish(StatusInactive)
}
