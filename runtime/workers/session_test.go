package workers_test

import (
	"bufio"
	"chat-relay/domain"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type sessionFixture struct {
	registry   *runtime.Registry
	monitoring *observability.Monitoring
	handler    *workers.SessionHandler
}

func newSessionFixture() *sessionFixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitoring := observability.NewMonitoring()
	registry := runtime.NewRegistry(log, monitoring)
	broadcaster := runtime.NewBroadcaster(log, registry, monitoring)
	return &sessionFixture{
		registry:   registry,
		monitoring: monitoring,
		handler:    workers.NewSessionHandler(log, registry, broadcaster, monitoring, 16),
	}
}

// pipeClient is the remote end of a session served over net.Pipe.
type pipeClient struct {
	t      *testing.T
	id     domain.PeerID
	conn   net.Conn
	reader *bufio.Reader
	done   chan error
}

func (f *sessionFixture) connect(t *testing.T, ctx context.Context) *pipeClient {
	server, client := net.Pipe()
	c := &pipeClient{
		t:      t,
		id:     domain.NewPeerID(),
		conn:   client,
		reader: bufio.NewReader(client),
		done:   make(chan error, 1),
	}
	go func() { c.done <- f.handler.Handle(ctx, c.id, transport.NewConn(server)) }()
	t.Cleanup(func() { _ = client.Close() })
	return c
}

func (c *pipeClient) expectLine(want string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(time.Second)))
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	require.Equal(c.t, want, strings.TrimRight(line, "\n"))
}

func (c *pipeClient) send(line string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(time.Second)))
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *pipeClient) join(f *sessionFixture, username string) {
	c.t.Helper()
	c.expectLine(domain.UsernamePrompt)
	c.send(username)
	require.Eventually(c.t, func() bool { return f.registry.Contains(c.id) }, time.Second, time.Millisecond)
}

func (c *pipeClient) waitDone() error {
	c.t.Helper()
	select {
	case err := <-c.done:
		return err
	case <-time.After(time.Second):
		require.Fail(c.t, "session should have ended")
		return nil
	}
}

func TestSessionHandler_Join_Chat_Leave(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture()
	ctx := context.Background()

	// Given alice has joined
	alice := f.connect(t, ctx)
	alice.join(f, "alice")

	// When bob joins
	bob := f.connect(t, ctx)
	bob.join(f, "bob")

	// Then alice is told
	alice.expectLine("[bob] :)")

	// When bob chats
	bob.send("hello")

	// Then alice receives it
	alice.expectLine("bob: hello")

	// When alice answers with a Windows line ending
	alice.send("hi bob\r")
	bob.expectLine("alice: hi bob")

	// When bob disconnects
	req.NoError(bob.conn.Close())

	// Then alice is told exactly once and bob is gone
	alice.expectLine("[bob :(]")
	req.NoError(bob.waitDone())
	req.False(f.registry.Contains(bob.id))
	req.Equal([]string{"alice"}, f.registry.Usernames())

	stats := f.monitoring.Snapshot(f.registry.Len(), nil)
	req.Equal(uint64(2), stats.Joined)
	req.Equal(uint64(1), stats.Left)
	req.Equal(uint64(2), stats.Chats)
}

func TestSessionHandler_Username_Is_Trimmed(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()

	alice := f.connect(t, ctx)
	alice.join(f, "alice")

	// When bob sends his name surrounded by blanks
	bob := f.connect(t, ctx)
	bob.join(f, "  bob \r")

	// Then the join notice carries the trimmed name
	alice.expectLine("[bob] :)")
}

func TestSessionHandler_Handshake_Abort(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture()

	// Given a client hanging up right after the prompt
	client := f.connect(t, context.Background())
	client.expectLine(domain.UsernamePrompt)
	req.NoError(client.conn.Close())

	// Then the session ends cleanly and nothing was registered
	req.NoError(client.waitDone())
	req.Zero(f.registry.Len())
	stats := f.monitoring.Snapshot(0, nil)
	req.Equal(uint64(1), stats.HandshakeAborted)
	req.Zero(stats.Joined)
	req.Zero(stats.Left)
}

func TestSessionHandler_Shutdown_Closes_Sessions(t *testing.T) {
	req := require.New(t)
	f := newSessionFixture()
	ctx, cancel := context.WithCancel(context.Background())

	alice := f.connect(t, ctx)
	alice.join(f, "alice")

	// When the server shuts down
	cancel()

	// Then the session ends and the peer is unregistered
	req.NoError(alice.waitDone())
	req.Zero(f.registry.Len())
	req.Equal(uint64(1), f.monitoring.Snapshot(0, nil).Left)
}

func TestSessionHandler_Prompt_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	lineTransport := mocks.NewMockLineTransport(ctrl)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	registry := mocks.NewMockIRegistry(ctrl)
	monitoring := observability.NewMonitoring()
	handler := workers.NewSessionHandler(logs.GetLoggerFromLevel(slog.LevelDebug), registry, broadcaster, monitoring, 4)

	// Given a connection that cannot be written to
	lineTransport.EXPECT().RemoteAddr().Return("10.0.0.1:4242")
	lineTransport.EXPECT().WriteLine(domain.UsernamePrompt).Return(io.ErrClosedPipe)

	// When the session starts
	err := handler.Handle(context.Background(), domain.NewPeerID(), lineTransport)

	// Then nothing is registered nor published
	req.ErrorIs(err, io.ErrClosedPipe)
	req.Equal(uint64(1), monitoring.Snapshot(0, nil).HandshakeAborted)
}

func TestSessionHandler_Username_Read_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	lineTransport := mocks.NewMockLineTransport(ctrl)
	monitoring := observability.NewMonitoring()
	handler := workers.NewSessionHandler(logs.GetLoggerFromLevel(slog.LevelDebug),
		mocks.NewMockIRegistry(ctrl), mocks.NewMockIBroadcaster(ctrl), monitoring, 4)

	readErr := errors.New("connection reset by peer")
	lineTransport.EXPECT().RemoteAddr().Return("10.0.0.1:4242")
	lineTransport.EXPECT().WriteLine(domain.UsernamePrompt).Return(nil)
	lineTransport.EXPECT().ReadLine().Return("", readErr)

	// When reading the username fails
	err := handler.Handle(context.Background(), domain.NewPeerID(), lineTransport)

	// Then the error is returned and nothing is published
	req.ErrorIs(err, readErr)
	stats := monitoring.Snapshot(0, nil)
	req.Equal(uint64(1), stats.ReadErrors)
	req.Equal(uint64(1), stats.HandshakeAborted)
}

func TestSessionHandler_Censors_Chat(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	lineTransport := mocks.NewMockLineTransport(ctrl)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	censor := mocks.NewMockCensor(ctrl)
	monitoring := observability.NewMonitoring()
	registry := runtime.NewRegistry(log, monitoring)
	id := domain.NewPeerID()

	handler := workers.NewSessionHandler(log, registry, broadcaster, monitoring, 4).WithCensor(censor)

	lineTransport.EXPECT().RemoteAddr().Return("10.0.0.1:4242")
	lineTransport.EXPECT().WriteLine(domain.UsernamePrompt).Return(nil)
	lineTransport.EXPECT().Close().Return(nil).AnyTimes()
	gomock.InOrder(
		lineTransport.EXPECT().ReadLine().Return("bob", nil),
		lineTransport.EXPECT().ReadLine().Return("what the heck", nil),
		lineTransport.EXPECT().ReadLine().Return("", io.EOF),
	)
	censor.EXPECT().Censor("what the heck").Return("what the ****", []string{"heck"})

	// Then join, censored chat and departure are published in order
	gomock.InOrder(
		broadcaster.EXPECT().Publish(id, domain.Joined{Username: "bob"}).Return(0),
		broadcaster.EXPECT().Publish(id, domain.Chat{Sender: "bob", Content: "what the ****"}).Return(0),
		broadcaster.EXPECT().Publish(id, domain.Left{Username: "bob"}).Return(0),
	)

	// When the session runs to the end of the stream
	err := handler.Handle(context.Background(), id, lineTransport)

	req.NoError(err)
	req.Zero(registry.Len())
	req.Equal(uint64(1), monitoring.Snapshot(0, nil).Censored)
}

func TestSessionHandler_Evicted_Peer_Leaves(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitoring := observability.NewMonitoring()
	registry := runtime.NewRegistry(log, monitoring)
	broadcaster := runtime.NewBroadcaster(log, registry, monitoring)
	// A single slot mailbox saturates on the second undelivered line.
	handler := workers.NewSessionHandler(log, registry, broadcaster, monitoring, 1)
	f := &sessionFixture{registry: registry, monitoring: monitoring, handler: handler}

	// Given a slow client that never reads after joining
	slow := f.connect(t, context.Background())
	slow.join(f, "slow")

	fast := f.connect(t, context.Background())
	fast.join(f, "fast")

	// When the fast client keeps chatting
	for i := 0; i < 4; i++ {
		fast.send("spam")
	}

	// Then the slow client is evicted and its session ends
	require.Eventually(t, func() bool { return !registry.Contains(slow.id) }, time.Second, time.Millisecond)
	req.NoError(slow.waitDone())
	req.GreaterOrEqual(monitoring.Snapshot(0, nil).Evicted, uint64(1))
	req.True(registry.Contains(fast.id))
}
