// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable and copied by value to every recipient.
package domain

import "fmt"

// Message is one line of server output, delivered to every peer but its author.
// Variants only carry strings, so a value handed to many writers is never shared mutably.
type Message interface {
	fmt.Stringer
	Kind() MessageKind
}

type MessageKind string

const (
	KindJoined MessageKind = "joined"
	KindLeft   MessageKind = "left"
	KindChat   MessageKind = "chat"
)

// Joined is published once a session has completed its username handshake.
type Joined struct {
	Username string
}

func (m Joined) Kind() MessageKind { return KindJoined }

func (m Joined) String() string {
	return fmt.Sprintf("[%s] :)", m.Username)
}

// Left is published once a joined session has gone away.
type Left struct {
	Username string
}

func (m Left) Kind() MessageKind { return KindLeft }

// String keeps the bracket after the frown on purpose, clients parse it that way.
func (m Left) String() string {
	return fmt.Sprintf("[%s :(]", m.Username)
}

// Chat is a single line typed by a joined peer.
type Chat struct {
	Sender  string
	Content string
}

func (m Chat) Kind() MessageKind { return KindChat }

func (m Chat) String() string {
	return fmt.Sprintf("%s: %s", m.Sender, m.Content)
}
