//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// LineTransport is a duplex stream of newline-delimited text.
// ReadLine returns io.EOF once the remote side has closed the stream.
type LineTransport interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	RemoteAddr() string
	Close() error
}

// Mailbox is the bounded outbound queue of one peer.
// Many goroutines push, a single writer consumes Messages().
type Mailbox interface {
	TryPush(msg domain.Message) error
	Messages() <-chan domain.Message
	Close()
	Len() int
}

// Peer is the registry handle of a joined connection.
// Hangup forcibly closes the connection, it is only used on eviction.
type Peer struct {
	ID       domain.PeerID
	Username string
	Mailbox  Mailbox
	Hangup   func()
}

type IRegistry interface {
	Register(peer *Peer)
	Unregister(id domain.PeerID)
	BroadcastExcept(excluded domain.PeerID, msg domain.Message) int
	Contains(id domain.PeerID) bool
	Len() int
	Usernames() []string
}

type IBroadcaster interface {
	Publish(sender domain.PeerID, msg domain.Message) int
}

// Censor masks forbidden words and reports the ones it found.
type Censor interface {
	Censor(content string) (string, []string)
}
