// Package runtime holds the shared state of the relay (peer registry, broadcast)
// and wires it with the connection workers. It contains no wire formatting.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"chat-relay/transport"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// Orchestrator owns the registry and starts the supervised accept loop and stats reporter.
type Orchestrator struct {
	log              *slog.Logger
	supervisor       contract.ISupervisor
	registry         *Registry
	broadcaster      *Broadcaster
	monitoring       *observability.Monitoring
	mailboxSize      int
	statsInterval    time.Duration
	transportOptions []transport.Option
	censoredDir      string
	censoredChar     rune
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, monitoring *observability.Monitoring,
	mailboxSize int, statsInterval time.Duration, transportOptions ...transport.Option) *Orchestrator {
	registry := NewRegistry(log, monitoring)
	return &Orchestrator{
		log:              log,
		supervisor:       supervisor,
		registry:         registry,
		broadcaster:      NewBroadcaster(log, registry, monitoring),
		monitoring:       monitoring,
		mailboxSize:      mailboxSize,
		statsInterval:    statsInterval,
		transportOptions: transportOptions,
	}
}

// WithModeration enables chat censoring with the word lists found in dir.
func (o *Orchestrator) WithModeration(dir string, censoredChar rune) *Orchestrator {
	o.censoredDir = dir
	o.censoredChar = censoredChar
	return o
}

// Start serves listener until ctx is cancelled or Stop is called.
// It returns once the accept loop has stopped and every session has ended.
func (o *Orchestrator) Start(ctx context.Context, listener net.Listener) error {
	// Loading word lists and building the automaton happens before any lock.
	handler := workers.NewSessionHandler(o.log, o.registry, o.broadcaster, o.monitoring, o.mailboxSize)
	if o.censoredDir != "" {
		moderator, err := o.prepareModeration()
		if err != nil {
			return err
		}
		handler.WithCensor(moderator)
	}

	acceptor := workers.NewAcceptorWorker(o.log, listener, handler, o.monitoring, o.transportOptions...)

	o.supervisor.Add(acceptor)
	if o.statsInterval > 0 {
		o.supervisor.Add(workers.NewStatsWorker(o.log, o.statsInterval, o.registry, o.monitoring))
	}

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)

	// The listener is closed, sessions are closing their transports.
	acceptor.Wait()
	o.log.Info("All sessions closed")
	return nil
}

func (o *Orchestrator) prepareModeration() (*moderation.Moderator, error) {
	data, err := moderation.NewCensoredLoader(os.DirFS(o.censoredDir)).LoadAll(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load censored words from %s: %w", o.censoredDir, err)
	}

	o.log.Info(fmt.Sprintf("%d censored files loaded [%s]",
		len(data.Languages), strings.Join(data.Languages, ",")))
	o.log.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))

	return moderation.NewModerator(data.Words, o.censoredChar, o.log)
}

// Stats returns a snapshot of the counters with the usernames currently joined.
func (o *Orchestrator) Stats() observability.Stats {
	return o.monitoring.Snapshot(o.registry.Len(), o.registry.Usernames())
}

// Registry exposes the peer registry, read-only use only.
func (o *Orchestrator) Registry() contract.IRegistry {
	return o.registry
}

// Stop cancels the supervised workers. Start returns once sessions are drained.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
