package main

import (
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run keeps every defer executed before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Listener
	address := config.Address()
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	// 4. Supervision & Orchestration
	monitoring := observability.NewMonitoring()
	sup := workers.NewSupervisor(log, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(log, sup, monitoring,
		config.MailboxSize, config.StatsInterval,
		transport.WithMaxLineLength(config.MaxLineLength),
		transport.WithWriteTimeout(config.WriteTimeout),
	)
	if config.CensoredDir != "" {
		orchestrator.WithModeration(config.CensoredDir, config.CensorRune)
	}

	if config.DebugPort != nil {
		if err := internal.StartDebugServer(ctx, log, *config.DebugPort, orchestrator.Stats); err != nil {
			_ = listener.Close()
			return exitRuntime, err
		}
	}

	// 5. Serve until a signal arrives
	log.Info("Starting chat relay", "address", address, "at", time.Now().UTC())
	if err := orchestrator.Start(ctx, listener); err != nil {
		_ = listener.Close()
		return exitRuntime, fmt.Errorf("orchestrator failed: %w", err)
	}

	log.Info("Program stopped cleanly")
	return exitOK, nil
}
