package process

import (
	"io"
	"sync"
)

// Pipe copies data from the current source to the destination.
// Sources can be attached and switched at runtime, data from a non current
// source is read and discarded, so its producer never blocks.
type Pipe struct {
	dst io.Writer

	mu      sync.Mutex
	src     io.Reader
	err     error
	dropped map[io.Reader]bool

	onError func(err error)
}

func NewPipe(dst io.Writer) *Pipe {
	return &Pipe{dst: dst}
}

// Chain pipes upstream stdout into downstream stdin
func Chain(upstream, downstream *Process) *Pipe {
	p := NewPipe(downstream.Stdin)
	p.Splice(upstream.Stdout)
	return p
}

// OnError sets the handler for the first write error to the destination
func (p *Pipe) OnError(f func(err error)) {
	p.mu.Lock()
	p.onError = f
	p.mu.Unlock()
}

// Attach starts reading r, data is forwarded only while r is the current source
func (p *Pipe) Attach(r io.Reader) {
	go p.copy(r, false)
}

// Splice attaches r and makes it the current source when its first data arrives
func (p *Pipe) Splice(r io.Reader) {
	go p.copy(r, true)
}

// Switch makes r the current source immediately, nil pauses the pipe
func (p *Pipe) Switch(r io.Reader) {
	p.mu.Lock()
	p.src = r
	p.mu.Unlock()
}

// Drop discards all future data of r, even if r was spliced and not yet
// started. If r is the current source, fallback becomes current.
func (p *Pipe) Drop(r, fallback io.Reader) {
	p.mu.Lock()
	if p.dropped == nil {
		p.dropped = map[io.Reader]bool{}
	}
	p.dropped[r] = true
	if p.src == r {
		p.src = fallback
	}
	p.mu.Unlock()
}

// Source returns the current source
func (p *Pipe) Source() io.Reader {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

func (p *Pipe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Pipe) copy(r io.Reader, splice bool) {
	b := make([]byte, 64*1024)

	for {
		n, err := r.Read(b)
		if n > 0 {
			p.write(r, b[:n], splice)
			splice = false
		}
		if err != nil {
			p.mu.Lock()
			delete(p.dropped, r)
			p.mu.Unlock()
			return
		}
	}
}

func (p *Pipe) write(r io.Reader, b []byte, splice bool) {
	p.mu.Lock()

	if p.dropped[r] {
		p.mu.Unlock()
		return
	}

	if splice {
		p.src = r
	}

	if p.src != r || p.err != nil {
		p.mu.Unlock()
		return
	}

	// write under lock, so Switch never happens in the middle of a chunk
	if _, err := p.dst.Write(b); err != nil {
		p.err = err
		onError := p.onError
		p.mu.Unlock()

		if onError != nil {
			onError(err)
		}
		return
	}

	p.mu.Unlock()
}
