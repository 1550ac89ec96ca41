package workers_test

import (
	"bufio"
	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport"
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestAcceptorWorker_Serves_Until_Cancelled(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitoring := observability.NewMonitoring()
	registry := runtime.NewRegistry(log, monitoring)
	broadcaster := runtime.NewBroadcaster(log, registry, monitoring)
	handler := workers.NewSessionHandler(log, registry, broadcaster, monitoring, 8)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	acceptor := workers.NewAcceptorWorker(log, listener, handler, monitoring,
		transport.WithWriteTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- acceptor.Run(ctx) }()

	// Given a client connected and joined
	conn, err := net.Dial("tcp", acceptor.Addr().String())
	req.NoError(err)
	defer conn.Close()
	reader := bufio.NewReader(conn)
	req.NoError(conn.SetReadDeadline(time.Now().Add(time.Second)))
	prompt, err := reader.ReadString('\n')
	req.NoError(err)
	req.Equal(domain.UsernamePrompt, strings.TrimSpace(prompt))
	_, err = conn.Write([]byte("alice\n"))
	req.NoError(err)
	req.Eventually(func() bool { return registry.Len() == 1 }, time.Second, time.Millisecond)

	// When the acceptor is cancelled
	cancel()

	// Then it stops accepting and every session ends
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("acceptor should have stopped")
	}
	acceptor.Wait()
	req.Zero(registry.Len())
	req.Equal(uint64(1), monitoring.Snapshot(0, nil).Accepted)

	// Then the client sees the stream closed
	_, err = reader.ReadString('\n')
	req.Error(err)
}
