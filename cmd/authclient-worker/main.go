//go:build js && wasm

package main

import (
	"github.com/dvcrn/authclient/internal/app"
	"github.com/dvcrn/authclient/internal/config"
	"github.com/dvcrn/authclient/internal/logger"
	"github.com/dvcrn/authclient/internal/server"
	"github.com/syumai/workers"
)

func main() {
	log := logger.New()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	// Workers have no filesystem; the default file store becomes KV.
	if cfg.TokenStore.Kind == config.StoreFile {
		cfg.TokenStore.Kind = config.StoreKV
	}

	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create client")
	}

	workers.Serve(server.New(log, a.Client, a.Store))
}
