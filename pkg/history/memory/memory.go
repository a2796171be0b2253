// Package memory provides an in-memory history.Store for testing and
// single-process deployments. Sessions are lost on restart. Optional
// LRU eviction and a TTL bound memory usage for long-running agents.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/anfrage-dev/anfrage/pkg/api"
	"github.com/anfrage-dev/anfrage/pkg/history"
)

// session holds one conversation's items and its eviction metadata.
type session struct {
	items     []api.Item
	touchedAt time.Time
	lruElem   *list.Element
}

// Store is an in-memory history.Store with optional LRU eviction and
// idle-session expiry.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	lruList  *list.List // front = most recently used
	maxSize  int        // 0 = unlimited sessions
	ttl      time.Duration

	nowFunc func() time.Time
}

var _ history.Store = (*Store)(nil)

// New creates an in-memory store. maxSize bounds the number of live
// sessions (0 = unlimited); the least recently touched session is
// evicted at capacity. ttl expires sessions idle longer than the given
// duration (0 = never).
func New(maxSize int, ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*session),
		lruList:  list.New(),
		maxSize:  maxSize,
		ttl:      ttl,
		nowFunc:  time.Now,
	}
}

// Append adds items to the session, creating it if needed.
func (s *Store) Append(_ context.Context, id string, items []api.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()

	sess, ok := s.sessions[id]
	if !ok {
		if s.maxSize > 0 && len(s.sessions) >= s.maxSize {
			s.evictOldestLocked()
		}
		sess = &session{lruElem: s.lruList.PushFront(id)}
		s.sessions[id] = sess
	} else {
		s.lruList.MoveToFront(sess.lruElem)
	}

	sess.items = append(sess.items, items...)
	sess.touchedAt = s.nowFunc()
	return nil
}

// Load returns a copy of the session's history in append order.
func (s *Store) Load(_ context.Context, id string) ([]api.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, history.ErrSessionNotFound
	}

	s.lruList.MoveToFront(sess.lruElem)
	sess.touchedAt = s.nowFunc()

	items := make([]api.Item, len(sess.items))
	copy(items, sess.items)
	return items, nil
}

// Reset discards the session's history.
func (s *Store) Reset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	s.lruList.Remove(sess.lruElem)
	delete(s.sessions, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// evictOldestLocked removes the least recently touched session.
// Must be called with s.mu held.
func (s *Store) evictOldestLocked() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.sessions, id)
}

// expireLocked drops sessions idle beyond the TTL, scanning from the
// least recently used end. Must be called with s.mu held.
func (s *Store) expireLocked() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.nowFunc().Add(-s.ttl)
	for {
		back := s.lruList.Back()
		if back == nil {
			return
		}
		id := back.Value.(string)
		sess := s.sessions[id]
		if sess.touchedAt.After(cutoff) {
			return
		}
		s.lruList.Remove(back)
		delete(s.sessions, id)
	}
}
