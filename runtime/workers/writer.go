package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
)

var _ contract.Worker = (*WriterWorker)(nil)

// WriterWorker drains one peer's mailbox onto its transport.
// It is the only writer of that transport once the session has joined,
// so lines from different publishers never interleave.
type WriterWorker struct {
	log        *slog.Logger
	peerID     domain.PeerID
	mailbox    contract.Mailbox
	transport  contract.LineTransport
	monitoring *observability.Monitoring
}

func NewWriterWorker(
	log *slog.Logger,
	peerID domain.PeerID,
	mailbox contract.Mailbox,
	transport contract.LineTransport,
	monitoring *observability.Monitoring) *WriterWorker {
	return &WriterWorker{
		log:        log,
		peerID:     peerID,
		mailbox:    mailbox,
		transport:  transport,
		monitoring: monitoring,
	}
}

// Run returns nil once the mailbox is closed and drained.
// A write failure stops the worker, unregistering is left to the session.
func (w *WriterWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping writer", "peer_id", w.peerID)
			return ctx.Err()
		case msg, ok := <-w.mailbox.Messages():
			if !ok {
				w.log.Debug("Mailbox closed, stopping writer", "peer_id", w.peerID)
				return nil
			}
			if err := w.transport.WriteLine(msg.String()); err != nil {
				w.monitoring.IncrWriteErrors()
				w.log.Warn("Failed to send message",
					"peer_id", w.peerID,
					"kind", msg.Kind(),
					"error", err)
				return fmt.Errorf("write to peer %s: %w", w.peerID, err)
			}
		}
	}
}
