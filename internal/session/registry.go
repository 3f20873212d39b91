package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("session not found")

// Registry holds active sessions keyed by call id. Concurrent sessions are
// fully independent; the registry only guards insert/remove/lookup.
type Registry struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewRegistry(inactivityTimeout time.Duration) *Registry {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Registry{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

func (r *Registry) SetExpireHook(hook func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = hook
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.CallID] = s
}

func (r *Registry) Get(callID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, s := range r.sessions {
		if s.IsActive() {
			count++
		}
	}
	return count
}

// StartJanitor reaps sessions with no inbound media for the inactivity
// timeout. Expired sessions are closed and removed.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.expireInactive()
			}
		}
	}()
}

func (r *Registry) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.LastActivityAt()) < r.inactivityTimeout {
			continue
		}
		expired = append(expired, s)
		delete(r.sessions, id)
	}
	hook := r.onExpire
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
		if hook != nil {
			hook(s)
		}
	}
}
