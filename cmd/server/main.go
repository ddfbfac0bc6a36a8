package main

import (
	"github.com/joho/godotenv"

	"github.com/Afaqak/asr-worker/internal/config"
	httpserver "github.com/Afaqak/asr-worker/internal/http"
	"github.com/Afaqak/asr-worker/internal/logger"
)

func main() {
	_ = godotenv.Load()

	log := logger.New("asr-worker")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	srv, err := httpserver.NewServer(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create server")
	}

	if err := srv.Run(); err != nil {
		log.WithError(err).Fatal("server stopped with error")
	}
}
