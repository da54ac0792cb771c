package app

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var MemoryLog = newBuffer(16)

// GetLogger returns logger with the level from the module key of the log section
func GetLogger(module string) zerolog.Logger {
	if s, ok := modules[module]; ok {
		lvl, err := zerolog.ParseLevel(s)
		if err == nil {
			return Logger.Level(lvl)
		}
		Logger.Warn().Err(err).Caller().Send()
	}

	return Logger
}

// initLogger support:
// - output: empty (only to memory), stderr, stdout
// - format: empty (autodetect color support), color, json, text
// - time:   empty (disable timestamp), UNIXMS, UNIXMICRO, UNIXNANO
// - level:  disabled, trace, debug, info, warn, error...
func initLogger() {
	var cfg struct {
		Mod map[string]string `yaml:"log"`
	}

	cfg.Mod = modules

	LoadConfig(&cfg)

	Logger = newLogger(modules)
}

func newLogger(mod map[string]string) zerolog.Logger {
	var writer io.Writer = MemoryLog

	if out := outputFile(mod["output"]); out != nil {
		if mod["format"] == "json" {
			writer = zerolog.MultiLevelWriter(out, MemoryLog)
		} else {
			writer = zerolog.MultiLevelWriter(consoleWriter(out, mod["format"], mod["time"] != ""), MemoryLog)
		}
	}

	lvl, _ := zerolog.ParseLevel(mod["level"])
	logger := zerolog.New(writer).Level(lvl)

	if timeFormat := mod["time"]; timeFormat != "" {
		zerolog.TimeFieldFormat = timeFormat
		logger = logger.With().Timestamp().Logger()
	}

	return logger
}

func outputFile(output string) *os.File {
	switch output {
	case "stderr":
		return os.Stderr
	case "stdout":
		return os.Stdout
	}
	return nil
}

func consoleWriter(out *os.File, format string, withTime bool) *zerolog.ConsoleWriter {
	console := &zerolog.ConsoleWriter{Out: out}

	switch format {
	case "text":
		console.NoColor = true
	case "color":
		console.NoColor = false
	default:
		console.NoColor = !isatty.IsTerminal(out.Fd()) && !isatty.IsCygwinTerminal(out.Fd())
	}

	if withTime {
		console.TimeFormat = "15:04:05.000"
	} else {
		console.PartsOrder = []string{
			zerolog.LevelFieldName,
			zerolog.CallerFieldName,
			zerolog.MessageFieldName,
		}
	}

	return console
}

var Logger = zerolog.Nop()

// modules holds the log section: output options and per module levels (stream: debug)
var modules = map[string]string{
	"format": "",
	"level":  "info",
	"output": "stdout",
	"time":   zerolog.TimeFormatUnixMs,
}

const chunkSize = 1 << 16

// circularBuffer keeps the last chunks of the log for the API
type circularBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	r, w   int
}

func newBuffer(chunks int) *circularBuffer {
	b := &circularBuffer{chunks: make([][]byte, 0, chunks)}
	b.chunks = append(b.chunks, make([]byte, 0, chunkSize))
	return b
}

func (b *circularBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n = len(p)

	if len(b.chunks[b.w])+n > chunkSize {
		if b.w++; b.w == cap(b.chunks) {
			b.w = 0
		}
		if b.r == b.w {
			if b.r++; b.r == cap(b.chunks) {
				b.r = 0
			}
		}
		if b.w == len(b.chunks) {
			b.chunks = append(b.chunks, make([]byte, 0, chunkSize))
		} else {
			b.chunks[b.w] = b.chunks[b.w][:0]
		}
	}

	b.chunks[b.w] = append(b.chunks[b.w], p...)
	return
}

func (b *circularBuffer) WriteTo(w io.Writer) (n int64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := b.r; ; {
		var nn int
		if nn, err = w.Write(b.chunks[i]); err != nil {
			return
		}
		n += int64(nn)

		if i == b.w {
			break
		}
		if i++; i == cap(b.chunks) {
			i = 0
		}
	}
	return
}

func (b *circularBuffer) Reset() {
	b.mu.Lock()
	b.chunks[0] = b.chunks[0][:0]
	b.r = 0
	b.w = 0
	b.mu.Unlock()
}
