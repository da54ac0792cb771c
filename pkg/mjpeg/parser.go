package mjpeg

import (
	"bytes"
	"io"
)

// MaxBufferSize limits the parser memory for a stream that never completes a frame
const MaxBufferSize = 1024 * 1024

// Parser extracts JPEG frames (SOI..EOI) from an arbitrary chunked byte stream.
// Not safe for concurrent use.
type Parser struct {
	buf   []byte
	start int // SOI offset inside buf or -1
	scan  int // EOI search position inside buf
	limit int
}

func NewParser() *Parser {
	return &Parser{start: -1, limit: MaxBufferSize}
}

// ProcessChunk appends chunk to the internal buffer and returns all completed frames.
// Returned frames don't share memory with the parser.
func (p *Parser) ProcessChunk(chunk []byte) (frames [][]byte) {
	p.buf = append(p.buf, chunk...)

	for {
		if p.start < 0 {
			i := bytes.Index(p.buf, soi)
			if i < 0 {
				// keep a trailing 0xFF, it can be the first half of SOI
				if n := len(p.buf); n > 0 && p.buf[n-1] == 0xFF {
					p.buf = append(p.buf[:0], 0xFF)
				} else {
					p.buf = p.buf[:0]
				}
				p.scan = 0
				break
			}

			// drop garbage before SOI
			p.buf = append(p.buf[:0], p.buf[i:]...)
			p.start = 0
			p.scan = len(soi)
		}

		i := bytes.Index(p.buf[p.scan:], eoi)
		if i < 0 {
			// next search starts from the last byte, EOI can be split between chunks
			if n := len(p.buf) - 1; n > p.scan {
				p.scan = n
			}
			break
		}

		end := p.scan + i + len(eoi)
		frames = append(frames, bytes.Clone(p.buf[p.start:end]))

		p.buf = append(p.buf[:0], p.buf[end:]...)
		p.start = -1
		p.scan = 0
	}

	if len(p.buf) > p.limit {
		p.Reset()
	}

	return
}

// Reset drops buffered bytes and the recorded start marker
func (p *Parser) Reset() {
	p.buf = nil
	p.start = -1
	p.scan = 0
}

// Buffered returns the number of bytes waiting for the end marker
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// ReadFrames reads r until error and calls handler for each frame.
// Returns nil on io.EOF.
func ReadFrames(r io.Reader, handler func(frame []byte)) error {
	p := NewParser()
	b := make([]byte, 64*1024)

	for {
		n, err := r.Read(b)
		if n > 0 {
			for _, frame := range p.ProcessChunk(b[:n]) {
				handler(frame)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
