package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/mailbox"
	"chat-relay/observability"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() (*Registry, *observability.Monitoring) {
	monitoring := observability.NewMonitoring()
	return NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), monitoring), monitoring
}

func newTestPeer(username string, size int) *contract.Peer {
	return &contract.Peer{
		ID:       domain.NewPeerID(),
		Username: username,
		Mailbox:  mailbox.New(size),
	}
}

func drain(mb contract.Mailbox) []domain.Message {
	var messages []domain.Message
	for {
		select {
		case msg, ok := <-mb.Messages():
			if !ok {
				return messages
			}
			messages = append(messages, msg)
		default:
			return messages
		}
	}
}

func TestRegistry_Register_One_Peer(t *testing.T) {
	req := require.New(t)
	registry, _ := newTestRegistry()
	peer := newTestPeer("alice", 8)

	// Given no peer is connected
	req.Zero(registry.Len())
	req.Empty(registry.Usernames())

	// When a peer registers
	registry.Register(peer)

	// Then
	req.Equal(1, registry.Len())
	req.True(registry.Contains(peer.ID))
	req.Equal([]string{"alice"}, registry.Usernames())
}

func TestRegistry_Register_Concurrent_Joins(t *testing.T) {
	req := require.New(t)
	registry, _ := newTestRegistry()
	const n = 64
	peers := make([]*contract.Peer, n)
	for i := range peers {
		peers[i] = newTestPeer(fmt.Sprintf("user-%02d", i), n)
	}

	// When every peer registers then announces itself concurrently
	wg := sync.WaitGroup{}
	for _, peer := range peers {
		wg.Add(1)
		go func(p *contract.Peer) {
			defer wg.Done()
			registry.Register(p)
		}(peer)
	}
	wg.Wait()
	for _, peer := range peers {
		wg.Add(1)
		go func(p *contract.Peer) {
			defer wg.Done()
			registry.BroadcastExcept(p.ID, domain.Joined{Username: p.Username})
		}(peer)
	}
	wg.Wait()

	// Then the registry holds exactly n peers
	req.Equal(n, registry.Len())

	// And each peer got one notice per other peer, never its own
	for _, peer := range peers {
		received := drain(peer.Mailbox)
		req.Len(received, n-1)
		req.NotContains(received, domain.Joined{Username: peer.Username})
	}
}

func TestRegistry_BroadcastExcept_Skips_Sender_And_Keeps_Order(t *testing.T) {
	req := require.New(t)
	registry, monitoring := newTestRegistry()
	alice := newTestPeer("alice", 8)
	bob := newTestPeer("bob", 8)
	carol := newTestPeer("carol", 8)
	registry.Register(alice)
	registry.Register(bob)
	registry.Register(carol)

	// When alice sends three lines
	for _, line := range []string{"one", "two", "three"} {
		delivered := registry.BroadcastExcept(alice.ID, domain.Chat{Sender: "alice", Content: line})
		req.Equal(2, delivered)
	}

	// Then bob and carol see them in order
	expected := []domain.Message{
		domain.Chat{Sender: "alice", Content: "one"},
		domain.Chat{Sender: "alice", Content: "two"},
		domain.Chat{Sender: "alice", Content: "three"},
	}
	req.Equal(expected, drain(bob.Mailbox))
	req.Equal(expected, drain(carol.Mailbox))

	// And alice never receives her own lines
	req.Empty(drain(alice.Mailbox))
	req.Zero(monitoring.Snapshot(0, nil).Evicted)
}

func TestRegistry_Unregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry, _ := newTestRegistry()
	alice := newTestPeer("alice", 8)
	bob := newTestPeer("bob", 8)
	registry.Register(alice)
	registry.Register(bob)

	// When alice is unregistered twice
	registry.Unregister(alice.ID)
	registry.Unregister(alice.ID)

	// Then only alice is gone and her mailbox is closed
	req.Equal(1, registry.Len())
	req.False(registry.Contains(alice.ID))
	req.True(registry.Contains(bob.ID))
	_, open := <-alice.Mailbox.Messages()
	req.False(open)

	// And later broadcasts never reach her: bob is the only peer left and he is the sender
	req.Equal(0, registry.BroadcastExcept(bob.ID, domain.Chat{Sender: "bob", Content: "still there?"}))
	req.Equal(1, registry.BroadcastExcept(domain.PeerID("nobody"), domain.Left{Username: "ghost"}))
}

func TestRegistry_Unregister_Unknown_Peer(t *testing.T) {
	req := require.New(t)
	registry, _ := newTestRegistry()

	req.NotPanics(func() { registry.Unregister(domain.NewPeerID()) })
	req.Zero(registry.Len())
}

func TestRegistry_Register_Replaces_Existing_Handle(t *testing.T) {
	req := require.New(t)
	registry, _ := newTestRegistry()
	first := newTestPeer("alice", 8)
	second := &contract.Peer{ID: first.ID, Username: "alice", Mailbox: mailbox.New(8)}

	// When the same id is registered twice
	registry.Register(first)
	registry.Register(second)

	// Then the newest handle wins and the old mailbox is closed
	req.Equal(1, registry.Len())
	_, open := <-first.Mailbox.Messages()
	req.False(open)
	req.Equal(1, registry.BroadcastExcept(domain.NewPeerID(), domain.Joined{Username: "bob"}))
	req.Equal([]domain.Message{domain.Joined{Username: "bob"}}, drain(second.Mailbox))
}

func TestRegistry_BroadcastExcept_Evicts_Saturated_Peer(t *testing.T) {
	req := require.New(t)
	registry, monitoring := newTestRegistry()
	var hangups atomic.Int32
	alice := newTestPeer("alice", 8)
	bob := newTestPeer("bob", 8)
	stalled := &contract.Peer{
		ID:       domain.NewPeerID(),
		Username: "stalled",
		Mailbox:  mailbox.New(2),
		Hangup:   func() { hangups.Add(1) },
	}
	registry.Register(alice)
	registry.Register(bob)
	registry.Register(stalled)

	// Given the stalled peer never drains its mailbox
	for i := 0; i < 2; i++ {
		req.Equal(2, registry.BroadcastExcept(alice.ID, domain.Chat{Sender: "alice", Content: fmt.Sprint(i)}))
	}

	// When alice keeps talking
	start := time.Now()
	delivered := registry.BroadcastExcept(alice.ID, domain.Chat{Sender: "alice", Content: "overflow"})

	// Then the call returns at once and bob still gets the message
	req.Less(time.Since(start), 100*time.Millisecond)
	req.Equal(1, delivered)

	// And the stalled peer was evicted and hung up exactly once
	req.False(registry.Contains(stalled.ID))
	req.Equal(int32(1), hangups.Load())
	stats := monitoring.Snapshot(registry.Len(), nil)
	req.Equal(uint64(1), stats.Evicted)
	req.Equal(uint64(1), stats.Dropped)

	// And subsequent broadcasts exclude it
	req.Equal(1, registry.BroadcastExcept(alice.ID, domain.Chat{Sender: "alice", Content: "after"}))
	req.Equal(int32(1), hangups.Load())
	req.Len(drain(bob.Mailbox), 4)
}

func TestRegistry_Evict_Does_Not_Remove_Newer_Handle(t *testing.T) {
	req := require.New(t)
	registry, _ := newTestRegistry()
	stale := newTestPeer("alice", 1)
	fresh := &contract.Peer{ID: stale.ID, Username: "alice", Mailbox: mailbox.New(1)}
	registry.Register(fresh)

	// When an eviction targets a handle that was already replaced
	registry.evict(stale)

	// Then the newer handle stays registered
	req.True(registry.Contains(fresh.ID))
}
