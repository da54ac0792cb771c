package mjpeg

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func frame(payload ...byte) []byte {
	b := []byte{0xFF, markerSOI}
	b = append(b, payload...)
	return append(b, 0xFF, markerEOI)
}

func TestParserSingleFrame(t *testing.T) {
	f := frame(1, 2, 3, 4)
	stream := append([]byte{9, 9, 9}, f...) // SOI at offset 3
	stream = append(stream, 7, 7)

	p := NewParser()
	frames := p.ProcessChunk(stream)
	require.Len(t, frames, 1)
	require.Equal(t, stream[3:3+len(f)], frames[0])

	// trailing garbage without SOI is dropped
	require.Equal(t, 0, p.Buffered())
}

func TestParserSplitChunks(t *testing.T) {
	f1 := frame(bytes.Repeat([]byte{1}, 100)...)
	f2 := frame(bytes.Repeat([]byte{2}, 50)...)
	stream := append(append([]byte{}, f1...), f2...)

	// every possible split position, including inside the markers
	for i := 1; i < len(stream); i++ {
		p := NewParser()
		frames := p.ProcessChunk(stream[:i])
		frames = append(frames, p.ProcessChunk(stream[i:])...)
		require.Equal(t, [][]byte{f1, f2}, frames, "split at %d", i)
		require.Equal(t, 0, p.Buffered())
	}
}

func TestParserByteByByte(t *testing.T) {
	f := frame(0xFF, 0x00, 0xFF, 0xD8, 5) // stuffed bytes and nested SOI
	p := NewParser()

	var frames [][]byte
	for _, b := range f {
		frames = append(frames, p.ProcessChunk([]byte{b})...)
	}
	require.Equal(t, [][]byte{f}, frames)
}

func TestParserFrameNotShared(t *testing.T) {
	p := NewParser()
	frames := p.ProcessChunk(frame(1))
	require.Len(t, frames, 1)

	_ = p.ProcessChunk(frame(2))
	require.Equal(t, frame(1), frames[0])
}

func TestParserOverflow(t *testing.T) {
	p := NewParser()
	p.limit = 1024

	// SOI without EOI grows past the limit
	frames := p.ProcessChunk(append([]byte{0xFF, markerSOI}, make([]byte, 2048)...))
	require.Nil(t, frames)
	require.Equal(t, 0, p.Buffered())

	// the orphan EOI of the broken frame is ignored, next frame is found
	f := frame(3, 3)
	frames = p.ProcessChunk(append([]byte{0xFF, markerEOI}, f...))
	require.Equal(t, [][]byte{f}, frames)
}

func TestReadFrames(t *testing.T) {
	f1 := frame(1)
	f2 := frame(2, 2)
	r := bytes.NewReader(append(append([]byte{0}, f1...), f2...))

	var frames [][]byte
	err := ReadFrames(r, func(frame []byte) {
		frames = append(frames, frame)
	})
	require.Nil(t, err)
	require.Equal(t, [][]byte{f1, f2}, frames)
	require.True(t, IsJPEG(frames[0]))
}
