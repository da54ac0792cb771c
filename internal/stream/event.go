package stream

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/ringbridge/ringbridge/pkg/process"
	"github.com/rs/zerolog"
)

// Recording is the selected recorded event of the camera
type Recording struct {
	URL        string
	Kind       string // motion, ding, on_demand
	Index      int    // 1 is the most recent
	Transcoded bool
}

const (
	RecordingNotFound    = "Recording Not Found"
	RecordingTranscoding = "Transcoding in Progress"
)

func (r *Recording) Available() bool {
	return r != nil && r.URL != "" &&
		!strings.Contains(r.URL, RecordingNotFound) &&
		!strings.Contains(r.URL, RecordingTranscoding)
}

// Ordinal returns "", "2nd ", "3rd ", "4th "... for log messages
func (r *Recording) Ordinal() string {
	switch r.Index {
	case 0, 1:
		return ""
	case 2:
		return "2nd "
	case 3:
		return "3rd "
	}
	return strconv.Itoa(r.Index) + "th "
}

type RecordingSource interface {
	Recording(ctx context.Context) (*Recording, error)
}

type EventConfig struct {
	FFmpeg string
	HEVC   bool // camera records in HEVC, recordings should be transcoded
}

// EventStream replays a recorded event to the RTSP server
type EventStream struct {
	conf       EventConfig
	recordings RecordingSource
	publish    func(Status)
	log        zerolog.Logger

	mu     sync.Mutex
	status Status
	proc   *process.Process
}

func NewEventStream(recordings RecordingSource, conf EventConfig, publish func(Status), log zerolog.Logger) *EventStream {
	return &EventStream{
		conf:       conf,
		recordings: recordings,
		publish:    publish,
		log:        log,
		status:     StatusInactive,
	}
}

func (e *EventStream) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *EventStream) Start(ctx context.Context, publishURL string) {
	e.mu.Lock()
	if e.proc != nil {
		e.mu.Unlock()
		e.publish(StatusActive)
		return
	}
	e.mu.Unlock()

	rec, err := e.recordings.Recording(ctx)
	if err != nil {
		e.log.Debug().Err(err).Msg("[stream] event recording")
	}

	if !rec.Available() {
		if rec != nil {
			e.log.Debug().Msgf("[stream] no recording available for the %smost recent %s event", rec.Ordinal(), rec.Kind)
		}
		e.fail()
		return
	}

	e.log.Debug().Msgf("[stream] streaming the %smost recently recorded %s event", rec.Ordinal(), rec.Kind)

	args := EventArgs(e.conf.FFmpeg, rec.URL, publishURL, rec.Transcoded || e.conf.HEVC)

	proc, err := process.Spawn(args.Command(), process.WithLogger(e.log))
	if err != nil {
		e.log.Warn().Err(err).Msg("[stream] event stream spawn")
		e.fail()
		return
	}

	e.mu.Lock()
	if e.proc != nil {
		// concurrent start won
		e.mu.Unlock()
		_ = proc.Kill()
		return
	}
	e.proc = proc
	e.status = StatusActive
	e.mu.Unlock()

	e.log.Debug().Msgf("[stream] the recorded %s event stream has started", rec.Kind)
	e.publish(StatusActive)

	go func() {
		<-proc.Done()

		e.mu.Lock()
		if e.proc != proc {
			e.mu.Unlock()
			return
		}
		e.proc = nil
		e.status = StatusInactive
		e.mu.Unlock()

		_ = proc.Kill()
		e.log.Debug().Err(proc.Err()).Msgf("[stream] the recorded %s event stream has ended", rec.Kind)
		e.publish(StatusInactive)
	}()
}

func (e *EventStream) fail() {
	e.mu.Lock()
	e.status = StatusFailed
	e.mu.Unlock()
	e.publish(StatusFailed)
}

// Stop kills the replay, inactive is published once
func (e *EventStream) Stop() {
	e.mu.Lock()
	proc := e.proc
	changed := e.status != StatusInactive
	e.proc = nil
	e.status = StatusInactive
	e.mu.Unlock()

	if proc != nil {
		_ = proc.Kill()
	}

	if changed {
		e.publish(StatusInactive)
	}
}
