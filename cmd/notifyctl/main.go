package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foodflow/notifier/internal/config"
	"github.com/foodflow/notifier/internal/credential"
	"github.com/foodflow/notifier/internal/logging"
	"github.com/foodflow/notifier/internal/notify"
	"github.com/foodflow/notifier/internal/transport"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (yaml or toml)")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address (overrides config)")
	saveToken := flag.String("save-token", "", "Store a token in the token file and exit")
	logout := flag.Bool("logout", false, "Remove the stored token and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	logger := logging.Init("notifyctl", cfg.Log.Level)
	store := credential.NewFileStore(cfg.Notify.TokenFile)

	switch {
	case *saveToken != "":
		if err := store.Save(*saveToken); err != nil {
			logger.Fatal().Err(err).Str("path", store.Path()).Msg("failed to save token")
		}
		logger.Info().Str("path", store.Path()).Msg("token saved")
		return
	case *logout:
		if err := store.Clear(); err != nil {
			logger.Fatal().Err(err).Str("path", store.Path()).Msg("failed to clear token")
		}
		logger.Info().Msg("token cleared")
		return
	}

	if err := run(cfg, store, logger); err != nil {
		logger.Fatal().Err(err).Msg("notifyctl failed")
	}
}

func run(cfg *config.Config, store *credential.FileStore, logger zerolog.Logger) error {
	var metrics *notify.Metrics
	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		metrics = notify.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("serving metrics")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	m, err := notify.NewManager(notify.Options{
		Endpoint:    cfg.Notify.Endpoint,
		Credentials: credential.Expiring(store),
		Transport: transport.Websocket(transport.WebsocketOptions{
			Subprotocols: cfg.Notify.Subprotocols,
		}),
		Logger:            &logger,
		Metrics:           metrics,
		ReconnectDelay:    cfg.Notify.ReconnectDelay.D(),
		HeartbeatOutgoing: cfg.Notify.HeartbeatOutgoing.D(),
		HeartbeatIncoming: cfg.Notify.HeartbeatIncoming.D(),
		Hooks: notify.Hooks{
			OnConnect: func(s *notify.Session) {
				logger.Info().Str("session", s.ID()).Msg("listening for notifications")
			},
			OnTransportError: func(s *notify.Session, err error) {
				logger.Warn().Str("session", s.ID()).Err(err).Msg("transport error")
			},
			OnProtocolError: func(s *notify.Session, err error) {
				logger.Error().Str("session", s.ID()).Err(err).Msg("server rejected the session")
			},
			OnDisconnect: func(s *notify.Session, err error) {
				logger.Info().Str("session", s.ID()).AnErr("reason", err).Msg("disconnected")
			},
		},
		Unknown: logTo(logger),
	})
	if err != nil {
		return err
	}

	handlers := make(notify.Handlers)
	for _, ch := range notify.Channels() {
		handlers[ch] = logTo(logger)
	}
	if _, err := m.Connect(handlers); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("shutting down")
	m.Disconnect()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// logTo writes every notification as one structured event.
func logTo(logger zerolog.Logger) notify.Handler {
	return notify.Func(func(p notify.Payload) {
		logger.Info().
			Str("channel", p.Channel.Name()).
			Str("destination", string(p.Channel)).
			RawJSON("payload", p.Raw).
			Msg("notification")
	})
}
