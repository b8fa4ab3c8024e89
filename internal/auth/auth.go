// Package auth exposes the signed-in user to the log stores.
package auth

import (
	"context"
	"sync"

	"alcyxob/setpad/internal/domain"
)

// Provider reports the currently signed-in user, if any.
type Provider interface {
	CurrentUser(ctx context.Context) (domain.AuthUser, bool)
}

type ctxKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u domain.AuthUser) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext extracts the user stored by WithUser.
func UserFromContext(ctx context.Context) (domain.AuthUser, bool) {
	u, ok := ctx.Value(ctxKey{}).(domain.AuthUser)
	if !ok || u.ID == "" {
		return domain.AuthUser{}, false
	}
	return u, true
}

// ContextProvider reads the user injected into the request context by the
// HTTP auth middleware.
type ContextProvider struct{}

func (ContextProvider) CurrentUser(ctx context.Context) (domain.AuthUser, bool) {
	return UserFromContext(ctx)
}

// Session holds process-wide sign-in state, as used by the CLI.
// Listeners registered with OnChange are called synchronously on every
// SignIn and SignOut, outside the session lock.
type Session struct {
	mu        sync.RWMutex
	user      *domain.AuthUser
	nextID    int
	listeners map[int]func(*domain.AuthUser)
}

// NewSession returns a signed-out session.
func NewSession() *Session {
	return &Session{listeners: make(map[int]func(*domain.AuthUser))}
}

// CurrentUser ignores ctx; the session is not request scoped.
func (s *Session) CurrentUser(_ context.Context) (domain.AuthUser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.AuthUser{}, false
	}
	return *s.user, true
}

func (s *Session) SignIn(u domain.AuthUser) {
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
	s.notify(&u)
}

func (s *Session) SignOut() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	s.notify(nil)
}

// OnChange registers cb and returns a function that unregisters it.
func (s *Session) OnChange(cb func(*domain.AuthUser)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = cb
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) notify(u *domain.AuthUser) {
	s.mu.RLock()
	cbs := make([]func(*domain.AuthUser), 0, len(s.listeners))
	for _, cb := range s.listeners {
		cbs = append(cbs, cb)
	}
	s.mu.RUnlock()

	for _, cb := range cbs {
		if u == nil {
			cb(nil)
			continue
		}
		cp := *u
		cb(&cp)
	}
}
