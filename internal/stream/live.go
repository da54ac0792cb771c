package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/ringbridge/ringbridge/pkg/ring"
	"github.com/ringbridge/ringbridge/pkg/udp"
	"github.com/rs/zerolog"
)

type TicketSource interface {
	GetSocketTicket(ctx context.Context) (string, error)
}

// Live requests signaling tickets and drives the Worker
type Live struct {
	tickets TicketSource
	worker  *Worker
	publish func(Status)
	log     zerolog.Logger

	mu       sync.Mutex
	status   Status
	session  bool
	gen      int
	altMedia *ring.AltMedia
	relay    *udp.Relay

	exited chan struct{}
}

func NewLive(tickets TicketSource, worker *Worker, publish func(Status), log zerolog.Logger) *Live {
	l := &Live{
		tickets: tickets,
		worker:  worker,
		publish: publish,
		log:     log,
		status:  StatusInactive,
		exited:  make(chan struct{}),
	}
	go l.listen()
	return l
}

func (l *Live) Start(ctx context.Context, publishURL string) {
	l.mu.Lock()
	l.session = true
	l.gen++
	gen := l.gen
	l.mu.Unlock()

	l.log.Debug().Msg("[stream] acquiring a live stream signaling session ticket")

	ticket, err := l.tickets.GetSocketTicket(ctx)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		l.log.Debug().Msg("[stream] live stream start canceled")
		return
	}

	if err != nil {
		if errors.Is(err, ring.ErrForbidden) {
			l.log.Warn().Msg("[stream] camera returned 403 when starting a live stream, live streaming is probably blocked by Modes settings")
		} else {
			l.log.Warn().Err(err).Msg("[stream] live stream ticket")
		}
	}

	if ticket == "" {
		l.status = StatusFailed
		l.session = false
		l.mu.Unlock()

		l.log.Warn().Msg("[stream] live stream failed to initialize signaling session")
		l.publish(StatusFailed)
		return
	}
	l.mu.Unlock()

	l.log.Debug().Msg("[stream] live stream ticket acquired, starting live stream worker")
	l.worker.Send(Command{Command: CommandStart, StreamData: StreamData{Ticket: ticket, PublishURL: publishURL}})
}

func (l *Live) Stop() {
	l.mu.Lock()
	session := l.session
	l.gen++ // cancel pending start
	l.session = false
	l.status = StatusInactive
	l.mu.Unlock()

	if session {
		l.worker.Send(Command{Command: CommandStop})
	}
}

func (l *Live) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// AltMedia returns the second video copy of the active session or nil
func (l *Live) AltMedia() *ring.AltMedia {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.altMedia
}

// UnbindAltMedia frees alt media ports for a decoder
func (l *Live) UnbindAltMedia() {
	l.mu.Lock()
	relay := l.relay
	l.relay = nil
	l.mu.Unlock()

	if relay != nil {
		_ = relay.Close()
	}
}

// Wait returns when the worker exits
func (l *Live) Wait() {
	<-l.exited
}

func (l *Live) listen() {
	defer close(l.exited)
	defer l.UnbindAltMedia()

	for event := range l.worker.Events() {
		switch event.Type {
		case EventState:
			l.state(Status(event.Data), event.Extra)
		case EventLogInfo:
			l.log.Debug().Msg("[stream] " + event.Data)
		case EventLogError:
			l.log.Warn().Msg("[stream] " + event.Data)
		}
	}
}

func (l *Live) state(status Status, altMedia *ring.AltMedia) {
	l.mu.Lock()

	switch status {
	case StatusActive:
		l.status = StatusActive
		l.session = true
		if altMedia != nil && l.altMedia == nil {
			l.altMedia = altMedia
			relay, err := udp.Bind(altMedia.Port)
			if err != nil {
				l.log.Warn().Err(err).Msgf("[stream] bind alt media port %d", altMedia.Port)
			}
			l.relay = relay
		}

	case StatusInactive, StatusFailed:
		l.status = status
		l.session = false
		l.altMedia = nil

	default:
		l.mu.Unlock()
		return
	}

	var relay *udp.Relay
	if l.altMedia == nil {
		relay = l.relay
		l.relay = nil
	}
	l.mu.Unlock()

	if relay != nil {
		_ = relay.Close()
	}

	l.publish(status)
}
