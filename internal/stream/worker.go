package stream

import (
	"context"
	"time"

	"github.com/ringbridge/ringbridge/pkg/core"
	"github.com/ringbridge/ringbridge/pkg/ffmpeg"
	"github.com/ringbridge/ringbridge/pkg/ring"
)

// LiveSession is an established call with the camera
type LiveSession interface {
	OnConnectionState(f func(state ring.ConnectionState)) *core.Subscription
	OnCallEnded(f func()) *core.Subscription
	StartTranscoding(args *ffmpeg.Args) (*ring.AltMedia, error)
	Stop()
}

type Dialer interface {
	Dial(ctx context.Context, ticket string) (LiveSession, error)
}

type DialerFunc func(ctx context.Context, ticket string) (LiveSession, error)

func (f DialerFunc) Dial(ctx context.Context, ticket string) (LiveSession, error) {
	return f(ctx, ticket)
}

type WorkerConfig struct {
	FFmpeg      string
	DialTimeout time.Duration
	StopRetries int
	RetryDelay  time.Duration
	SettleDelay time.Duration
}

func (c *WorkerConfig) setDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 15 * time.Second
	}
	if c.StopRetries == 0 {
		c.StopRetries = 10
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 2 * time.Second
	}
}

// Worker owns the live session of one camera. Commands, session callbacks
// and timers are processed one at a time by a single goroutine,
// every result is reported as Event.
type Worker struct {
	conf   WorkerConfig
	dialer Dialer

	commands chan Command
	events   chan Event
	calls    chan func()
	done     chan struct{}
	exited   chan struct{}

	// owned by the loop goroutine
	session  LiveSession
	subs     []*core.Subscription
	gen      int
	altMedia *ring.AltMedia
	stopping bool
	retries  int
	retryC   <-chan time.Time
	settleC  <-chan time.Time
}

func NewWorker(dialer Dialer, conf WorkerConfig) *Worker {
	conf.setDefaults()

	w := &Worker{
		conf:     conf,
		dialer:   dialer,
		commands: make(chan Command, 8),
		events:   make(chan Event, 32),
		calls:    make(chan func(), 32),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Send queues the command, returns false after Close
func (w *Worker) Send(cmd Command) bool {
	select {
	case <-w.done:
		return false
	default:
	}

	select {
	case w.commands <- cmd:
		return true
	case <-w.done:
		return false
	}
}

// Events channel is closed when the worker exits
func (w *Worker) Events() <-chan Event {
	return w.events
}

// Close hangs up the session and terminates the worker
func (w *Worker) Close() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	<-w.exited
}

func (w *Worker) run() {
	defer close(w.exited)
	defer close(w.events)

	for {
		select {
		case cmd := <-w.commands:
			w.handle(cmd)
		case f := <-w.calls:
			f()
		case <-w.retryC:
			w.retryStop()
		case <-w.settleC:
			w.settleC = nil
			w.stopping = false
			w.clear()
		case <-w.done:
			if w.session != nil {
				w.session.Stop()
			}
			w.clear()
			return
		}
	}
}

// post runs f on the loop goroutine, if the session is still the same.
// Calls are buffered, so a session may fire callbacks from inside Stop.
func (w *Worker) post(gen int, f func()) {
	select {
	case w.calls <- func() {
		if gen == w.gen && w.session != nil {
			f()
		}
	}:
	case <-w.done:
	}
}

func (w *Worker) emit(event Event) {
	select {
	case w.events <- event:
	case <-w.done:
	}
}

func (w *Worker) state(status Status) {
	w.emit(Event{Type: EventState, Data: string(status), Extra: w.altMedia})
}

func (w *Worker) logInfo(msg string) {
	w.emit(Event{Type: EventLogInfo, Data: msg})
}

func (w *Worker) logError(msg string) {
	w.emit(Event{Type: EventLogError, Data: msg})
}

func (w *Worker) handle(cmd Command) {
	switch cmd.Command {
	case CommandStart:
		w.start(cmd.StreamData)
	case CommandStop:
		w.stop()
	default:
		w.logError("unknown command received: " + cmd.Command)
	}
}

func (w *Worker) start(data StreamData) {
	if w.stopping {
		w.logError("live stream could not be started because it is in stopping state")
		w.state(StatusFailed)
		return
	}

	if w.session != nil {
		w.logError("live stream could not be started because there is already an active stream")
		w.state(StatusActive)
		return
	}

	w.logInfo("live stream worker received start command")

	ctx, cancel := context.WithTimeout(context.Background(), w.conf.DialTimeout)
	go func() {
		select {
		case <-w.done:
		case <-ctx.Done():
		}
		cancel()
	}()

	session, err := w.dialer.Dial(ctx, data.Ticket)
	cancel()
	if err != nil {
		w.logError("live stream signaling failed: " + err.Error())
		w.state(StatusFailed)
		return
	}

	w.gen++
	gen := w.gen
	w.session = session
	w.subs = []*core.Subscription{
		session.OnConnectionState(func(state ring.ConnectionState) {
			w.post(gen, func() { w.connectionState(state) })
		}),
		session.OnCallEnded(func() {
			w.post(gen, w.callEnded)
		}),
	}

	w.logInfo("live stream transcoding process is starting")

	altMedia, err := session.StartTranscoding(LiveArgs(w.conf.FFmpeg, data.PublishURL))
	if err != nil {
		w.logError("live stream transcoding failed: " + err.Error())
		w.clear()
		session.Stop()
		w.state(StatusFailed)
		return
	}

	w.altMedia = altMedia
	w.logInfo("live stream transcoding process has started")
}

func (w *Worker) connectionState(state ring.ConnectionState) {
	switch state {
	case ring.StateConnected:
		w.state(StatusActive)
		w.logInfo("live stream WebRTC session is connected")

	case ring.StateFailed:
		w.state(StatusFailed)
		w.logInfo("live stream WebRTC connection has failed")

		// failed is final, call ended of this session must not report inactive
		for _, sub := range w.subs {
			sub.Unsubscribe()
		}
		w.subs = nil
		w.session.Stop()

		w.stopping = true
		w.retryC = nil
		w.settleC = time.After(w.conf.SettleDelay)
	}
}

func (w *Worker) callEnded() {
	w.logInfo("live stream WebRTC session has disconnected")
	w.clear()
	w.state(StatusInactive)
}

func (w *Worker) stop() {
	if w.stopping || w.session == nil {
		return
	}

	w.stopping = true
	w.retries = w.conf.StopRetries
	w.session.Stop()
	w.retryC = time.After(w.conf.RetryDelay)
}

func (w *Worker) retryStop() {
	w.retryC = nil

	if w.session == nil {
		w.stopping = false
		return
	}

	if w.retries--; w.retries > 0 {
		w.logInfo("live stream failed to stop on request, trying again...")
		w.session.Stop()
		w.retryC = time.After(w.conf.RetryDelay)
		return
	}

	w.logError("live stream failed to stop on request, deleting anyway...")
	w.clear()
	w.stopping = false
	w.state(StatusInactive)
}

// clear forgets the session and unsubscribes from its callbacks
func (w *Worker) clear() {
	for _, sub := range w.subs {
		sub.Unsubscribe()
	}
	w.subs = nil
	w.session = nil
	w.altMedia = nil
}
