// Package mailbox implements the bounded outbound queue of a peer.
package mailbox

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"sync"
)

// DefaultSize is the number of messages a slow peer may lag behind before eviction.
const DefaultSize = 128

var _ contract.Mailbox = (*Mailbox)(nil)

// Mailbox is a bounded FIFO of messages for one peer.
//
// Producers push with TryPush and never block. The read lock lets any number of
// producers push concurrently while Close waits for them, so a push never hits a
// closed channel.
type Mailbox struct {
	mu     sync.RWMutex
	closed bool
	queue  chan domain.Message
}

func New(size int) *Mailbox {
	if size <= 0 {
		size = DefaultSize
	}
	return &Mailbox{queue: make(chan domain.Message, size)}
}

// TryPush enqueues msg without waiting.
// It fails with ErrMailboxClosed after Close and ErrMailboxFull when the consumer lags.
func (m *Mailbox) TryPush(msg domain.Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errors.ErrMailboxClosed
	}
	select {
	case m.queue <- msg:
		return nil
	default:
		return errors.ErrMailboxFull
	}
}

// Messages is drained by the writer; it is closed once Close was called
// and every pending message has been received.
func (m *Mailbox) Messages() <-chan domain.Message {
	return m.queue
}

// Close is idempotent.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.queue)
}

func (m *Mailbox) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Mailbox) Len() int {
	return len(m.queue)
}

func (m *Mailbox) Cap() int {
	return cap(m.queue)
}
