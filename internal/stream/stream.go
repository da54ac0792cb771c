package stream

import (
	"time"

	"github.com/ringbridge/ringbridge/internal/app"
	"github.com/rs/zerolog"
)

// Config is the `stream` section, FFmpeg comes from `ffmpeg.bin`
type Config struct {
	FFmpeg           string        `yaml:"-"`
	StopTimeout      time.Duration `yaml:"stop_timeout"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	Overlay          string        `yaml:"overlay"`
	OverlayWait      time.Duration `yaml:"overlay_wait"`
}

func Init() {
	var cfg struct {
		Mod    Config `yaml:"stream"`
		FFmpeg struct {
			Bin string `yaml:"bin"`
		} `yaml:"ffmpeg"`
	}

	cfg.Mod = defaults
	cfg.FFmpeg.Bin = defaults.FFmpeg

	app.LoadConfig(&cfg)

	log = app.GetLogger("stream")

	if cfg.Mod.Overlay != OverlayVideo && cfg.Mod.Overlay != OverlayFrames {
		log.Warn().Msgf("[stream] unknown overlay mode %q, using %s", cfg.Mod.Overlay, OverlayVideo)
		cfg.Mod.Overlay = OverlayVideo
	}

	defaults = cfg.Mod
	defaults.FFmpeg = cfg.FFmpeg.Bin
}

// Defaults returns the config loaded by Init
func Defaults() Config {
	return defaults
}

var defaults = Config{
	FFmpeg:           "ffmpeg",
	StopTimeout:      2 * time.Second,
	SnapshotInterval: 50 * time.Millisecond,
	Overlay:          OverlayVideo,
	OverlayWait:      5 * time.Second,
}

var log = zerolog.Nop()
