package observability

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time copy of the server counters, served by the debug endpoint.
type Stats struct {
	StartedAt        time.Time `json:"started_at"`
	Uptime           string    `json:"uptime"`
	PeersOnline      int       `json:"peers_online"`
	Usernames        []string  `json:"usernames"`
	Accepted         uint64    `json:"accepted"`
	HandshakeAborted uint64    `json:"handshake_aborted"`
	Joined           uint64    `json:"joined"`
	Left             uint64    `json:"left"`
	Chats            uint64    `json:"chats"`
	Censored         uint64    `json:"censored"`
	Delivered        uint64    `json:"delivered"`
	Dropped          uint64    `json:"dropped"`
	Evicted          uint64    `json:"evicted"`
	ReadErrors       uint64    `json:"read_errors"`
	WriteErrors      uint64    `json:"write_errors"`
}

// Monitoring aggregates counters updated from every session without locking.
type Monitoring struct {
	startedAt time.Time

	accepted         atomic.Uint64
	handshakeAborted atomic.Uint64
	joined           atomic.Uint64
	left             atomic.Uint64
	chats            atomic.Uint64
	censored         atomic.Uint64
	delivered        atomic.Uint64
	dropped          atomic.Uint64
	evicted          atomic.Uint64
	readErrors       atomic.Uint64
	writeErrors      atomic.Uint64
}

func NewMonitoring() *Monitoring {
	return &Monitoring{startedAt: time.Now().UTC()}
}

func (m *Monitoring) IncrAccepted()         { m.accepted.Add(1) }
func (m *Monitoring) IncrHandshakeAborted() { m.handshakeAborted.Add(1) }
func (m *Monitoring) IncrJoined()           { m.joined.Add(1) }
func (m *Monitoring) IncrLeft()             { m.left.Add(1) }
func (m *Monitoring) IncrChats()            { m.chats.Add(1) }
func (m *Monitoring) IncrCensored()         { m.censored.Add(1) }
func (m *Monitoring) IncrDropped()          { m.dropped.Add(1) }
func (m *Monitoring) IncrEvicted()          { m.evicted.Add(1) }
func (m *Monitoring) IncrReadErrors()       { m.readErrors.Add(1) }
func (m *Monitoring) IncrWriteErrors()      { m.writeErrors.Add(1) }

func (m *Monitoring) AddDelivered(n int) {
	if n > 0 {
		m.delivered.Add(uint64(n))
	}
}

// Snapshot reads every counter; peers and usernames come from the registry.
func (m *Monitoring) Snapshot(peersOnline int, usernames []string) Stats {
	if usernames == nil {
		usernames = []string{}
	}
	return Stats{
		StartedAt:        m.startedAt,
		Uptime:           time.Since(m.startedAt).Truncate(time.Second).String(),
		PeersOnline:      peersOnline,
		Usernames:        usernames,
		Accepted:         m.accepted.Load(),
		HandshakeAborted: m.handshakeAborted.Load(),
		Joined:           m.joined.Load(),
		Left:             m.left.Load(),
		Chats:            m.chats.Load(),
		Censored:         m.censored.Load(),
		Delivered:        m.delivered.Load(),
		Dropped:          m.dropped.Load(),
		Evicted:          m.evicted.Load(),
		ReadErrors:       m.readErrors.Load(),
		WriteErrors:      m.writeErrors.Load(),
	}
}

func (m *Monitoring) LogAttrs(s Stats) []any {
	return []any{
		"peers_online", s.PeersOnline,
		"accepted", s.Accepted,
		"joined", s.Joined,
		"left", s.Left,
		"chats", s.Chats,
		"delivered", s.Delivered,
		"dropped", s.Dropped,
		"evicted", s.Evicted,
		"uptime", s.Uptime,
	}
}
