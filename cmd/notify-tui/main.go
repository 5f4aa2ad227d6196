package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/foodflow/notifier/internal/config"
	"github.com/foodflow/notifier/internal/credential"
	"github.com/foodflow/notifier/internal/logging"
	"github.com/foodflow/notifier/internal/notify"
	"github.com/foodflow/notifier/internal/transport"
	"github.com/foodflow/notifier/internal/watch"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (yaml or toml)")
	endpoint := flag.String("url", "", "Notification endpoint (overrides config)")
	token := flag.String("token", "", "Bearer token (overrides the token file)")
	logFile := flag.String("log", "", "Write logs to this file instead of discarding them")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *endpoint != "" {
		cfg.Notify.Endpoint = *endpoint
	}

	// The terminal belongs to the program; logs go to a file or nowhere.
	var w io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	logger := logging.New("notify-tui", cfg.Log.Level, w)

	var creds credential.Provider = credential.Expiring(credential.NewFileStore(cfg.Notify.TokenFile))
	if *token != "" {
		creds = credential.Static(*token)
	}

	bridge := &watch.Bridge{}
	m, err := notify.NewManager(notify.Options{
		Endpoint:    cfg.Notify.Endpoint,
		Credentials: creds,
		Transport: transport.Websocket(transport.WebsocketOptions{
			Subprotocols: cfg.Notify.Subprotocols,
		}),
		Logger:            &logger,
		Hooks:             bridge.Hooks(),
		ReconnectDelay:    cfg.Notify.ReconnectDelay.D(),
		HeartbeatOutgoing: cfg.Notify.HeartbeatOutgoing.D(),
		HeartbeatIncoming: cfg.Notify.HeartbeatIncoming.D(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(watch.New(m, bridge, cfg.Notify.Endpoint), tea.WithAltScreen())
	bridge.Attach(p)

	if _, err := p.Run(); err != nil {
		m.Disconnect()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	m.Disconnect()
}
