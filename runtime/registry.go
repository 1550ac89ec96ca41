package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"log/slog"
	"slices"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/samber/lo"
)

var _ contract.IRegistry = (*Registry)(nil)

// Registry is the single source of truth for who is currently joined.
//
// Entries live in a sharded map: each shard has its own RWMutex, so a join or a
// leave only contends with operations hashing to the same shard.
type Registry struct {
	log        *slog.Logger
	monitoring *observability.Monitoring
	peers      cmap.ConcurrentMap[string, *contract.Peer]
}

func NewRegistry(log *slog.Logger, monitoring *observability.Monitoring) *Registry {
	return &Registry{
		log:        log,
		monitoring: monitoring,
		peers:      cmap.New[*contract.Peer](),
	}
}

// Register inserts or replaces the peer stored under peer.ID.
// A replaced handle gets its mailbox closed so that its writer stops.
func (r *Registry) Register(peer *contract.Peer) {
	r.peers.Upsert(peer.ID.String(), peer, func(exists bool, current, incoming *contract.Peer) *contract.Peer {
		if exists && current != incoming {
			current.Mailbox.Close()
		}
		return incoming
	})
}

// Unregister removes the peer and closes its mailbox, ending its writer.
// Calling it for an unknown or already removed id does nothing.
func (r *Registry) Unregister(id domain.PeerID) {
	peer, ok := r.peers.Pop(id.String())
	if !ok {
		return
	}
	peer.Mailbox.Close()
}

type failedDelivery struct {
	peer *contract.Peer
	err  error
}

// BroadcastExcept pushes msg to every registered mailbox but the excluded one and
// returns how many accepted it. Pushes never wait: a peer whose mailbox is full or
// closed loses the message and is evicted once the iteration is over.
func (r *Registry) BroadcastExcept(excluded domain.PeerID, msg domain.Message) int {
	delivered := 0
	var failed []failedDelivery
	r.peers.IterCb(func(_ string, peer *contract.Peer) {
		if peer.ID == excluded {
			return
		}
		if err := peer.Mailbox.TryPush(msg); err != nil {
			failed = append(failed, failedDelivery{peer: peer, err: err})
			return
		}
		delivered++
	})

	for _, f := range failed {
		r.monitoring.IncrDropped()
		r.log.Warn("Failed to deliver message, evicting peer",
			"peer_id", f.peer.ID,
			"username", f.peer.Username,
			"kind", msg.Kind(),
			"error", f.err)
		r.evict(f.peer)
	}
	return delivered
}

// evict removes peer only if the registry still holds that exact handle,
// so a concurrent Unregister or re-Register is never undone.
func (r *Registry) evict(peer *contract.Peer) {
	removed := r.peers.RemoveCb(peer.ID.String(), func(_ string, current *contract.Peer, exists bool) bool {
		return exists && current == peer
	})
	if !removed {
		return
	}
	r.monitoring.IncrEvicted()
	peer.Mailbox.Close()
	if peer.Hangup != nil {
		peer.Hangup()
	}
}

func (r *Registry) Contains(id domain.PeerID) bool {
	return r.peers.Has(id.String())
}

func (r *Registry) Len() int {
	return r.peers.Count()
}

// Usernames returns a sorted snapshot of joined usernames.
func (r *Registry) Usernames() []string {
	names := lo.Map(lo.Values(r.peers.Items()), func(peer *contract.Peer, _ int) string {
		return peer.Username
	})
	slices.Sort(names)
	return names
}
