package domain

import "strings"

// UsernamePrompt is the first line written to every new connection.
const UsernamePrompt = "Enter your username:"

type SessionState int

const (
	Connected SessionState = iota
	AwaitingUsername
	SessionJoined
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Connected:
		return "connected"
	case AwaitingUsername:
		return "awaiting_username"
	case SessionJoined:
		return "joined"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is owned by a single session handler and never shared.
type Session struct {
	ID         PeerID
	RemoteAddr string
	Username   string
	State      SessionState
}

func NewSession(id PeerID, remoteAddr string) *Session {
	return &Session{ID: id, RemoteAddr: remoteAddr, State: Connected}
}

// Prompt marks the username prompt as sent.
func (s *Session) Prompt() {
	s.State = AwaitingUsername
}

// Join moves the session to SessionJoined. The username is the trimmed handshake
// line; an empty result is accepted.
func (s *Session) Join(line string) {
	s.Username = strings.TrimSpace(line)
	s.State = SessionJoined
}

func (s *Session) Close() {
	s.State = Closed
}

func (s *Session) Joined() bool {
	return s.State == SessionJoined
}
