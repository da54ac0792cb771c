package stream

import (
	"io"
	"sync"
	"time"

	"github.com/ringbridge/ringbridge/pkg/core"
	"github.com/ringbridge/ringbridge/pkg/mjpeg"
	"github.com/ringbridge/ringbridge/pkg/process"
	"github.com/ringbridge/ringbridge/pkg/ring"
)

// overlay temporarily replaces still images with the live video
type overlay struct {
	done chan struct{}
	once sync.Once
}

func (o *overlay) abort() {
	o.once.Do(func() { close(o.done) })
}

// OverlayActive reports whether the live overlay is running
func (s *Snapshot) OverlayActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay != nil
}

// StartOverlay shows the live video in the snapshot stream for the duration.
// Returns immediately, does nothing if overlay is already running.
func (s *Snapshot) StartOverlay(duration time.Duration) {
	s.mu.Lock()
	if s.overlay != nil {
		s.mu.Unlock()
		return
	}
	if s.status != StatusActive {
		s.mu.Unlock()
		s.log.Debug().Msg("[stream] live overlay requires an active snapshot stream")
		return
	}

	ov := &overlay{done: make(chan struct{})}
	s.overlay = ov
	s.mu.Unlock()

	s.log.Debug().Msgf("[stream] starting a live overlay for %s", duration)

	go func() {
		s.runOverlay(ov, duration)

		s.mu.Lock()
		if s.overlay == ov {
			s.overlay = nil
		}
		s.mu.Unlock()
	}()
}

func (s *Snapshot) runOverlay(ov *overlay, duration time.Duration) {
	// the live stream is started on demand by the RTSP server, so somebody should read it
	keepalive, err := process.Spawn(KeepaliveArgs(s.conf.FFmpeg, s.conf.KeepaliveURL).Command(), process.WithLogger(s.log))
	if err != nil {
		s.log.Warn().Err(err).Msg("[stream] live overlay keepalive")
		return
	}
	defer func() { _ = keepalive.Kill() }()

	altMedia := s.waitAltMedia(ov)
	if altMedia == nil {
		s.log.Debug().Msg("[stream] the live overlay failed starting the live stream")
		return
	}

	s.live.UnbindAltMedia()

	opts := []process.Option{process.WithStdin(), process.WithStdout(), process.WithLogger(s.log)}
	if s.conf.Overlay != OverlayFrames {
		opts = append(opts, process.WithTap())
	}

	decoder, err := process.Spawn(OverlayArgs(s.conf.FFmpeg, s.conf.Overlay).Command(), opts...)
	if err != nil {
		s.log.Warn().Err(err).Msg("[stream] live overlay decoder")
		return
	}
	defer func() { _ = decoder.Kill() }()

	_, err = io.WriteString(decoder.Stdin, altMedia.SDP)
	_ = decoder.Stdin.Close()
	if err != nil {
		s.log.Warn().Err(err).Msg("[stream] live overlay write SDP")
		return
	}

	if s.conf.Overlay == OverlayFrames {
		go s.readFrames(decoder.Stdout)
	} else {
		s.mu.Lock()
		pipe, encoder := s.pipe, s.encoder
		s.mu.Unlock()

		if pipe == nil {
			return
		}

		// decoder output replaces the encoder output when it's ready
		pipe.Splice(decoder.Stdout)
		go s.readFrames(decoder.Tap)

		// runs before the decoder kill, so its last output can't splice it back
		defer pipe.Drop(decoder.Stdout, encoder.Stdout)
	}

	timer := time.NewTimer(duration + s.conf.OverlayTail)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-decoder.Done():
	case <-ov.done:
	}

	s.log.Debug().Msg("[stream] the live overlay has stopped")
}

func (s *Snapshot) waitAltMedia(ov *overlay) *ring.AltMedia {
	deadline := time.Now().Add(s.conf.OverlayWait)
	for {
		if altMedia := s.live.AltMedia(); altMedia != nil {
			return altMedia
		}
		if time.Now().After(deadline) {
			return nil
		}
		if !core.Sleep(50*time.Millisecond, ov.done) {
			return nil
		}
	}
}

func (s *Snapshot) readFrames(r io.Reader) {
	_ = mjpeg.ReadFrames(r, s.setFrame)
}
