package httpserver

import (
	"sync"
	"time"

	"github.com/ruteri/cdsi-client/cryptoutils"
)

type sessionState int

const (
	// sessionAttested is a session waiting for its request.
	sessionAttested sessionState = iota
	// sessionRequested is a session holding a result waiting for acknowledgement.
	sessionRequested
)

type session struct {
	id      string
	created time.Time

	// mu serializes the messages of a session; the cipher counters depend on it.
	mu     sync.Mutex
	state  sessionState
	cipher *cryptoutils.SessionCipher
	token  []byte
	result []byte
}

// sessionStore holds open sessions and drops those older than ttl.
type sessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*session
	now      func() time.Time
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		ttl:      ttl,
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

func (s *sessionStore) put(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.created = s.now()
	s.sessions[sess.id] = sess
}

// get returns a live session. Expired sessions are removed on access.
func (s *sessionStore) get(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.ttl > 0 && s.now().Sub(sess.created) > s.ttl {
		delete(s.sessions, id)
		return nil, false
	}
	return sess, true
}

func (s *sessionStore) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// expire drops every session older than ttl and returns how many were dropped.
func (s *sessionStore) expire() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	now := s.now()
	for id, sess := range s.sessions {
		if now.Sub(sess.created) > s.ttl {
			delete(s.sessions, id)
			dropped++
		}
	}
	return dropped
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
