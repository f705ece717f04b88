// Package sessions tracks live calls for correlation and metrics.
//
// Turns stay self-contained: nothing in the registry changes how a turn is
// processed. It records how many turns a call has taken and whether it has
// reached a terminal instruction, so logs, metrics and the call log can say
// "turn 3 of CA..." and the status callback can close the call out.
package sessions

import (
	"sync"
	"time"
)

// Session is a snapshot of one call.
type Session struct {
	CallID    string
	From      string
	To        string
	Turns     int
	Terminal  bool
	EndReason string
	StartedAt time.Time
	LastSeen  time.Time
}

// Config configures the registry.
type Config struct {
	// TTL evicts sessions idle for longer than this (default 2h).
	TTL time.Duration `yaml:"ttl"`
	// MaxSessions caps the registry; the least recently seen sessions are
	// evicted first (default 10000).
	MaxSessions int `yaml:"max_sessions"`
	// PruneSchedule is the cron spec for evicting idle sessions between
	// turns (default "@every 1m").
	PruneSchedule string `yaml:"prune_schedule"`
}

// Registry is an in-memory call session map.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	maxSize  int
	now      func() time.Time

	// OnEnd is called, outside the lock, when a session ends or is evicted.
	OnEnd func(Session)
}

// NewRegistry creates a registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Hour
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 10000
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      cfg.TTL,
		maxSize:  cfg.MaxSessions,
		now:      time.Now,
	}
}

// BeginTurn records a new turn for callID, creating the session on first
// sight. It returns the updated snapshot and whether the session is new.
func (r *Registry) BeginTurn(callID, from, to string) (Session, bool) {
	r.mu.Lock()
	now := r.now()
	s, ok := r.sessions[callID]
	if !ok {
		s = &Session{CallID: callID, From: from, To: to, StartedAt: now}
		r.sessions[callID] = s
	}
	s.Turns++
	s.LastSeen = now
	snapshot := *s
	evicted := r.pruneLocked(now)
	r.mu.Unlock()

	r.notifyEnded(evicted)
	return snapshot, !ok
}

// MarkTerminal flags a call whose last instruction ended it.
func (r *Registry) MarkTerminal(callID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[callID]; ok {
		s.Terminal = true
		s.EndReason = reason
		s.LastSeen = r.now()
	}
}

// End removes the session after the provider reports the call finished.
// It returns the final snapshot, or false if the call was unknown.
func (r *Registry) End(callID, reason string) (Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[callID]
	if !ok {
		r.mu.Unlock()
		return Session{}, false
	}
	delete(r.sessions, callID)
	s.Terminal = true
	if s.EndReason == "" {
		s.EndReason = reason
	}
	s.LastSeen = r.now()
	snapshot := *s
	r.mu.Unlock()

	r.notifyEnded([]Session{snapshot})
	return snapshot, true
}

// Get returns a snapshot of the session.
func (r *Registry) Get(callID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Prune evicts idle sessions and returns how many were removed.
func (r *Registry) Prune() int {
	r.mu.Lock()
	evicted := r.pruneLocked(r.now())
	r.mu.Unlock()

	r.notifyEnded(evicted)
	return len(evicted)
}

func (r *Registry) pruneLocked(now time.Time) []Session {
	var evicted []Session
	cutoff := now.Add(-r.ttl)
	for id, s := range r.sessions {
		if s.LastSeen.Before(cutoff) {
			delete(r.sessions, id)
			s.EndReason = orDefault(s.EndReason, "expired")
			evicted = append(evicted, *s)
		}
	}

	for len(r.sessions) > r.maxSize {
		var oldest *Session
		for _, s := range r.sessions {
			if oldest == nil || s.LastSeen.Before(oldest.LastSeen) {
				oldest = s
			}
		}
		delete(r.sessions, oldest.CallID)
		oldest.EndReason = orDefault(oldest.EndReason, "evicted")
		evicted = append(evicted, *oldest)
	}
	return evicted
}

func (r *Registry) notifyEnded(ended []Session) {
	if r.OnEnd == nil {
		return
	}
	for _, s := range ended {
		r.OnEnd(s)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
