package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"

	"github.com/ringbridge/ringbridge/pkg/shell"
)

// StopTimeout is the default time for graceful stop before SIGKILL
const StopTimeout = 2 * time.Second

// Process is an external program with piped standard streams.
// Only the owner may call Stop or Kill, every exit path must call one of them.
type Process struct {
	Stdin  io.WriteCloser // nil without WithStdin
	Stdout io.ReadCloser  // nil without WithStdout
	Tap    io.ReadCloser  // file descriptor 3 (ffmpeg "pipe:3"), nil without WithTap

	cmd    *exec.Cmd
	stderr *limitBuffer
	log    zerolog.Logger

	done chan struct{}
	err  error

	stopMu sync.Mutex
}

type options struct {
	stdin, stdout, tap bool
	log                zerolog.Logger
}

type Option func(*options)

func WithStdin() Option {
	return func(o *options) { o.stdin = true }
}

func WithStdout() Option {
	return func(o *options) { o.stdout = true }
}

// WithTap opens additional output pipe on file descriptor 3
func WithTap() Option {
	return func(o *options) { o.tap = true }
}

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// Spawn starts the program args[0] with arguments args[1:]
func Spawn(args []string, opts ...Option) (p *Process, err error) {
	if len(args) == 0 {
		return nil, errors.New("process: empty command")
	}

	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = shell.ProcAttr()
	// don't hang in Wait if a grandchild holds stderr
	cmd.WaitDelay = time.Second

	p = &Process{
		cmd:    cmd,
		stderr: &limitBuffer{buf: make([]byte, 512)},
		log:    o.log,
		done:   make(chan struct{}),
	}
	cmd.Stderr = p.stderr

	// parent side of pipes, closed on any error below
	var parentFiles []io.Closer
	// child side of pipes, closed after start
	var childFiles []*os.File

	defer func() {
		for _, f := range childFiles {
			_ = f.Close()
		}
		if err != nil {
			for _, f := range parentFiles {
				_ = f.Close()
			}
		}
	}()

	if o.stdin {
		if p.Stdin, err = cmd.StdinPipe(); err != nil {
			return nil, err
		}
		parentFiles = append(parentFiles, p.Stdin)
	}

	if o.stdout {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		cmd.Stdout = w
		p.Stdout = r
		parentFiles = append(parentFiles, r)
		childFiles = append(childFiles, w)
	}

	if o.tap {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		cmd.ExtraFiles = []*os.File{w}
		p.Tap = r
		parentFiles = append(parentFiles, r)
		childFiles = append(childFiles, w)
	}

	p.log.Debug().Str("cmd", shellquote.Join(args...)).Msg("[process] run")

	if err = cmd.Start(); err != nil {
		p.log.Error().Err(err).Str("bin", args[0]).Msg("[process] spawn")
		return nil, err
	}

	go p.wait()

	return p, nil
}

func (p *Process) wait() {
	p.err = p.cmd.Wait()

	if p.err != nil {
		p.log.Debug().Err(p.err).Int("pid", p.PID()).Str("stderr", p.stderr.String()).Msg("[process] exit")
	} else {
		p.log.Trace().Int("pid", p.PID()).Msg("[process] exit")
	}

	close(p.done)
}

// Done is closed when the process has exited and was reaped
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the exit error, valid after Done
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Stderr returns the beginning of the process error output
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// Stop closes stdin (end of input), asks the process to terminate and waits for exit.
// After timeout the process is killed. Safe to call many times and from many places.
func (p *Process) Stop(timeout time.Duration) error {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()

	select {
	case <-p.done:
		p.closeReaders()
		return nil
	default:
	}

	if p.Stdin != nil {
		_ = p.Stdin.Close()
	}

	_ = p.cmd.Process.Signal(syscall.SIGTERM)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
	case <-timer.C:
		p.log.Debug().Int("pid", p.PID()).Stringer("timeout", timeout).Msg("[process] kill after timeout")
		_ = p.cmd.Process.Kill()
		<-p.done
	}

	p.closeReaders()
	return nil
}

// Kill terminates the process without waiting for graceful exit
func (p *Process) Kill() error {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()

	select {
	case <-p.done:
	default:
		if p.Stdin != nil {
			_ = p.Stdin.Close()
		}
		_ = p.cmd.Process.Kill()
		<-p.done
	}

	p.closeReaders()
	return nil
}

func (p *Process) closeReaders() {
	if p.Stdout != nil {
		_ = p.Stdout.Close()
	}
	if p.Tap != nil {
		_ = p.Tap.Close()
	}
}

// limitBuffer keeps only the first bytes of the output
type limitBuffer struct {
	mu  sync.Mutex
	buf []byte
	n   int
}

func (l *limitBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n == len(l.buf) {
		return string(l.buf) + "..."
	}
	return string(l.buf[:l.n])
}

func (l *limitBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	if l.n < cap(l.buf) {
		l.n += copy(l.buf[l.n:], p)
	}
	l.mu.Unlock()
	return len(p), nil
}
