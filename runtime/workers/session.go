package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/mailbox"
	"chat-relay/observability"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
)

// SessionHandler runs the lifecycle of one accepted connection:
// username prompt, join, chat relay and departure.
//
// A failure only ever ends the session it belongs to. Read errors after the
// join are logged and turned into a regular departure.
type SessionHandler struct {
	log         *slog.Logger
	registry    contract.IRegistry
	broadcaster contract.IBroadcaster
	monitoring  *observability.Monitoring
	censor      contract.Censor
	mailboxSize int
}

func NewSessionHandler(
	log *slog.Logger,
	registry contract.IRegistry,
	broadcaster contract.IBroadcaster,
	monitoring *observability.Monitoring,
	mailboxSize int) *SessionHandler {
	return &SessionHandler{
		log:         log,
		registry:    registry,
		broadcaster: broadcaster,
		monitoring:  monitoring,
		mailboxSize: mailboxSize,
	}
}

// WithCensor filters chat content through censor before it is published.
func (h *SessionHandler) WithCensor(censor contract.Censor) *SessionHandler {
	h.censor = censor
	return h
}

// Handle blocks until the connection is gone.
// Cancelling ctx closes the transport, which ends the session like a disconnect.
func (h *SessionHandler) Handle(ctx context.Context, id domain.PeerID, transport contract.LineTransport) error {
	session := domain.NewSession(id, transport.RemoteAddr())
	log := h.log.With("peer_id", id, "remote_addr", session.RemoteAddr)

	stop := context.AfterFunc(ctx, func() { _ = transport.Close() })
	defer stop()

	session.Prompt()
	if err := transport.WriteLine(domain.UsernamePrompt); err != nil {
		session.Close()
		h.monitoring.IncrHandshakeAborted()
		return fmt.Errorf("failed to send username prompt: %w", err)
	}

	line, err := transport.ReadLine()
	if err != nil {
		session.Close()
		h.monitoring.IncrHandshakeAborted()
		if isDisconnect(ctx, err) {
			log.Debug("Connection closed before username was sent")
			return nil
		}
		h.monitoring.IncrReadErrors()
		return fmt.Errorf("failed to read username: %w", err)
	}

	session.Join(line)
	log = log.With("username", session.Username)
	writerDone := h.join(ctx, session, transport, log)

	if err := h.relay(session, transport, log); !isDisconnect(ctx, err) {
		h.monitoring.IncrReadErrors()
		log.Warn("Failed to read line", "error", err)
	}

	h.leave(session)
	<-writerDone
	log.Info("Session closed")
	return nil
}

// join registers the peer, starts its writer and announces it to everybody else.
// The returned channel is closed when the writer has stopped.
func (h *SessionHandler) join(ctx context.Context, session *domain.Session,
	transport contract.LineTransport, log *slog.Logger) <-chan struct{} {
	mb := mailbox.New(h.mailboxSize)
	h.registry.Register(&contract.Peer{
		ID:       session.ID,
		Username: session.Username,
		Mailbox:  mb,
		Hangup:   func() { _ = transport.Close() },
	})

	done := make(chan struct{})
	writer := NewWriterWorker(h.log, session.ID, mb, transport, h.monitoring)
	go func() {
		defer close(done)
		if err := writer.Run(ctx); err != nil && ctx.Err() == nil {
			// The stream is broken, make the read loop notice it too.
			_ = transport.Close()
		}
	}()

	h.monitoring.IncrJoined()
	log.Info("Peer joined")
	h.broadcaster.Publish(session.ID, domain.Joined{Username: session.Username})
	return done
}

// relay publishes every inbound line until the transport fails.
func (h *SessionHandler) relay(session *domain.Session, transport contract.LineTransport, log *slog.Logger) error {
	for {
		line, err := transport.ReadLine()
		if err != nil {
			return err
		}
		h.monitoring.IncrChats()
		h.broadcaster.Publish(session.ID, domain.Chat{
			Sender:  session.Username,
			Content: h.moderate(line, log),
		})
	}
}

func (h *SessionHandler) moderate(line string, log *slog.Logger) string {
	if h.censor == nil {
		return line
	}
	content, words := h.censor.Censor(line)
	if len(words) > 0 {
		h.monitoring.IncrCensored()
		log.Info("Chat line censored", "words", words)
	}
	return content
}

// leave unregisters the peer first so it cannot receive its own departure.
func (h *SessionHandler) leave(session *domain.Session) {
	h.registry.Unregister(session.ID)
	session.Close()
	h.monitoring.IncrLeft()
	h.broadcaster.Publish(session.ID, domain.Left{Username: session.Username})
}

// isDisconnect tells a regular hang-up (EOF, closed socket, shutdown) from a failure.
func isDisconnect(ctx context.Context, err error) bool {
	return err == nil ||
		ctx.Err() != nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
