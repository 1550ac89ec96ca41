// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "github.com/google/uuid"

// PeerID identifies one accepted connection for its whole lifetime.
// Remote addresses are not unique enough (net.Pipe, NAT), so ids are random.
type PeerID string

func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}

func (id PeerID) String() string { return string(id) }
