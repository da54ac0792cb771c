package app

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCircularBuffer(t *testing.T) {
	buf := newBuffer(2)

	_, _ = buf.Write([]byte("hello"))
	_, _ = buf.Write([]byte("world"))

	var out bytes.Buffer
	_, err := buf.WriteTo(&out)
	require.Nil(t, err)
	require.Equal(t, "helloworld", out.String())

	buf.Reset()
	out.Reset()
	_, _ = buf.WriteTo(&out)
	require.Zero(t, out.Len())
}

func TestCircularBufferOverflow(t *testing.T) {
	buf := newBuffer(2)

	a := strings.Repeat("a", chunkSize)
	b := strings.Repeat("b", chunkSize)
	c := strings.Repeat("c", 10)

	_, _ = buf.Write([]byte(a))
	_, _ = buf.Write([]byte(b))
	_, _ = buf.Write([]byte(c)) // overwrites first chunk

	var out bytes.Buffer
	_, _ = buf.WriteTo(&out)
	require.Equal(t, b+c, out.String())
}

func TestGetLogger(t *testing.T) {
	prev := modules
	t.Cleanup(func() { modules = prev })

	modules = map[string]string{
		"level":  "info",
		"stream": "debug",
		"ring":   "warn",
	}
	Logger = newLogger(modules)

	require.Equal(t, zerolog.DebugLevel, GetLogger("stream").GetLevel())
	require.Equal(t, zerolog.WarnLevel, GetLogger("ring").GetLevel())
	require.Equal(t, zerolog.InfoLevel, GetLogger("mqtt").GetLevel())
}

func TestMemoryOnlyLogger(t *testing.T) {
	MemoryLog.Reset()

	logger := newLogger(map[string]string{"level": "debug"})
	logger.Debug().Msg("[test] hello")

	var out bytes.Buffer
	_, _ = MemoryLog.WriteTo(&out)
	require.Contains(t, out.String(), `"message":"[test] hello"`)
}

func TestConsoleWriter(t *testing.T) {
	console := consoleWriter(os.Stderr, "text", false)
	require.True(t, console.NoColor)
	require.Equal(t, zerolog.MessageFieldName, console.PartsOrder[2])

	console = consoleWriter(os.Stderr, "color", true)
	require.False(t, console.NoColor)
	require.Equal(t, "15:04:05.000", console.TimeFormat)

	require.Nil(t, outputFile(""))
	require.Equal(t, os.Stdout, outputFile("stdout"))
}
