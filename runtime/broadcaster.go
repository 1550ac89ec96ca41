package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"log/slog"
)

var _ contract.IBroadcaster = (*Broadcaster)(nil)

// Broadcaster publishes a message to every joined peer except its sender.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability, or retries. Each mailbox keeps the order it received messages in,
// there is no global order across peers.
type Broadcaster struct {
	log        *slog.Logger
	registry   contract.IRegistry
	monitoring *observability.Monitoring
}

func NewBroadcaster(log *slog.Logger, registry contract.IRegistry, monitoring *observability.Monitoring) *Broadcaster {
	return &Broadcaster{log: log, registry: registry, monitoring: monitoring}
}

func (b *Broadcaster) Publish(sender domain.PeerID, msg domain.Message) int {
	delivered := b.registry.BroadcastExcept(sender, msg)
	b.monitoring.AddDelivered(delivered)
	b.log.Info(msg.String(), "kind", msg.Kind(), "peer_id", sender, "delivered", delivered)
	return delivered
}
