package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/transport"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

const acceptRetryDelay = 50 * time.Millisecond

var _ contract.Worker = (*AcceptorWorker)(nil)

// AcceptorWorker accepts TCP connections and hands each one to its own session goroutine.
type AcceptorWorker struct {
	log        *slog.Logger
	listener   net.Listener
	handler    *SessionHandler
	monitoring *observability.Monitoring
	options    []transport.Option
	sessions   sync.WaitGroup
}

func NewAcceptorWorker(
	log *slog.Logger,
	listener net.Listener,
	handler *SessionHandler,
	monitoring *observability.Monitoring,
	options ...transport.Option) *AcceptorWorker {
	return &AcceptorWorker{
		log:        log,
		listener:   listener,
		handler:    handler,
		monitoring: monitoring,
		options:    options,
	}
}

// Run accepts until ctx is cancelled, which also closes the listener.
func (w *AcceptorWorker) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = w.listener.Close() })
	defer stop()

	w.log.Info("Listening", "address", w.listener.Addr().String())
	for {
		conn, err := w.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				w.log.Debug("Listener closed, stopping acceptor")
				return nil
			}
			w.log.Warn("Failed to accept connection", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(acceptRetryDelay):
			}
			continue
		}
		w.monitoring.IncrAccepted()
		w.serve(ctx, conn)
	}
}

func (w *AcceptorWorker) serve(ctx context.Context, conn net.Conn) {
	id := domain.NewPeerID()
	lineConn := transport.NewConn(conn, w.options...)
	remoteAddr := lineConn.RemoteAddr()
	w.log.Info("Accept connection", "peer_id", id, "remote_addr", remoteAddr)

	w.sessions.Add(1)
	go func() {
		defer w.sessions.Done()
		defer lineConn.Close()
		if err := w.handler.Handle(ctx, id, lineConn); err != nil {
			w.log.Warn("Failed to handle client", "peer_id", id, "remote_addr", remoteAddr, "error", err)
		}
	}()
}

// Wait blocks until every session started by this acceptor has ended.
func (w *AcceptorWorker) Wait() {
	w.sessions.Wait()
}

func (w *AcceptorWorker) Addr() net.Addr {
	return w.listener.Addr()
}
