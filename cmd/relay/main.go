package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foodflow/notifier/internal/config"
	"github.com/foodflow/notifier/internal/logging"
	"github.com/foodflow/notifier/internal/relay"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (yaml or toml)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	issue := flag.String("issue", "", "Print a token for this user id and exit")
	ttl := flag.Duration("ttl", 24*time.Hour, "Lifetime of tokens printed by -issue")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Relay.Addr = *addr
	}

	logger := logging.Init("relay", cfg.Log.Level)
	srv := relay.NewServer(relay.Options{
		Path:   cfg.Relay.Path,
		Secret: cfg.Relay.Secret,
		Logger: logger,
	})

	if *issue != "" {
		tok, err := srv.Auth().Issue(*issue, *ttl)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to issue token")
		}
		fmt.Println(tok)
		return
	}
	if cfg.Relay.Secret == "" {
		logger.Warn().Msg("relay secret is empty, tokens are not verified")
	}

	go func() {
		if err := srv.Start(cfg.Relay.Addr); err != nil {
			logger.Fatal().Err(err).Msg("relay server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("relay shutdown")
	}
}
