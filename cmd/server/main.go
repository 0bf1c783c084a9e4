package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bloggyhq/bloggy"
	"github.com/bloggyhq/bloggy/cmd"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := cmd.DefaultConfig()
	err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot read configuration")
	}
	logger := cmd.SetupLogger(cfg)

	// setup storage
	store, err := cmd.NewStore(context.Background(), cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.Store).Msg("Cannot setup store")
	}

	// setup authentication
	authService := cmd.NewAuthService(cfg, logger)

	// fire the server
	s := bloggy.NewServer(cfg.ServerConfig(), logger, store, authService)
	err = s.Prepare()
	if err != nil {
		logger.Fatal().Err(err).Msg("Cannot prepare server")
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info().Msg("Shutting down")
		s.Stop()
	}()

	err = s.Start()
	if err != nil {
		logger.Fatal().Err(err).Msg("Cannot start server")
	}
}
