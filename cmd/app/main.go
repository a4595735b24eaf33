package main

import (
	"flag"
	"os"

	"WalletWatch/internal/di"
	"WalletWatch/pkg/config"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	log.Info().Str("env", cfg.Environment).Msg("starting walletwatch")

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("app initialization failed")
	}
	log.Info().
		Str("database", cfg.ClickHouse.Database).
		Strs("brokers", cfg.Kafka.Brokers).
		Str("trades_topic", cfg.Kafka.TradesTopic).
		Msg("dependencies ready")

	if err := app.Run(); err != nil {
		log.Error().Err(err).Msg("app error")
		os.Exit(1)
	}
}
