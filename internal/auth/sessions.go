package auth

import (
	"sync"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// EventKind distinguishes session events.
type EventKind string

const (
	EventLogin  EventKind = "login"
	EventLogout EventKind = "logout"
)

// Event reports a session starting or ending.
type Event struct {
	Kind    EventKind
	Session graffiti.Session
}

// Sessions tracks the logged-in actors of this process and tells
// subscribers when that changes.
//
// Thread-safety: safe for concurrent use. Subscribers are called outside
// the lock, in registration order.
type Sessions struct {
	issuer *Issuer
	base   graffiti.Transport

	mu       sync.Mutex
	sessions map[string]graffiti.Session
	subs     map[int]func(Event)
	nextSub  int
}

// NewSessions creates a session registry. base carries the authorized
// requests; nil means http.DefaultClient.
func NewSessions(issuer *Issuer, base graffiti.Transport) *Sessions {
	return &Sessions{
		issuer:   issuer,
		base:     base,
		sessions: make(map[string]graffiti.Session),
		subs:     make(map[int]func(Event)),
	}
}

// Login issues a token for actor and returns a session writing to source
// by default. Logging in again replaces the previous session.
func (s *Sessions) Login(actor, source string) (graffiti.Session, error) {
	token, err := s.issuer.Issue(actor)
	if err != nil {
		return graffiti.Session{}, err
	}
	sess := graffiti.Session{
		Actor:     actor,
		Transport: &Transport{Base: s.base, Token: token},
		Source:    source,
	}

	s.mu.Lock()
	s.sessions[actor] = sess
	subs := s.subscribers()
	s.mu.Unlock()

	notify(subs, Event{Kind: EventLogin, Session: sess})
	return sess, nil
}

// Logout ends actor's session and reports whether there was one.
func (s *Sessions) Logout(actor string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[actor]
	delete(s.sessions, actor)
	subs := s.subscribers()
	s.mu.Unlock()

	if ok {
		notify(subs, Event{Kind: EventLogout, Session: sess})
	}
	return ok
}

// Get returns actor's session.
func (s *Sessions) Get(actor string) (graffiti.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[actor]
	return sess, ok
}

// Subscribe registers fn for every later event and returns a function
// that unregisters it.
func (s *Sessions) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// subscribers returns the callbacks in registration order. Callers hold
// s.mu.
func (s *Sessions) subscribers() []func(Event) {
	out := make([]func(Event), 0, len(s.subs))
	for id := range s.nextSub {
		if fn, ok := s.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
