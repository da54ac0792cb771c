package main

import (
	"github.com/ringbridge/ringbridge/internal/api"
	"github.com/ringbridge/ringbridge/internal/api/ws"
	"github.com/ringbridge/ringbridge/internal/app"
	"github.com/ringbridge/ringbridge/internal/mqtt"
	"github.com/ringbridge/ringbridge/internal/ring"
	"github.com/ringbridge/ringbridge/internal/stream"
	"github.com/ringbridge/ringbridge/pkg/shell"
)

func main() {
	// 1. Core modules: app, api/ws, stream

	app.Init() // init config and logs

	api.Init() // init API before all others
	ws.Init()  // init WS API endpoint

	stream.Init() // ffmpeg binary and engine timings

	// 2. Device modules

	ring.Init() // cameras and their stream registries
	mqtt.Init() // state and commands for every camera

	sig := shell.RunUntilSignal()

	app.Logger.Info().Str("signal", sig.String()).Msg("shutdown")

	mqtt.Close()
	ring.Close() // stops every stream, waits for publishers
}
