package main

import (
	"log"
	"net/http"

	"assessflow/internal/api"
	"assessflow/internal/config"
	"assessflow/internal/logging"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	s := api.NewServer(cfg, logger)
	logger.Info("api listening",
		zap.String("addr", cfg.APIAddr),
		zap.String("queue", cfg.TemporalTaskQueue))
	if err := http.ListenAndServe(cfg.APIAddr, s.Routes()); err != nil {
		logger.Fatal("api server stopped", zap.Error(err))
	}
}
