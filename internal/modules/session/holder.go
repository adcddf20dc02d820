// Package session holds the current authentication token for the backend.
// Set once at startup or on explicit re-auth; read by every network call.
package session

import "sync"

// Holder is the process-wide session token holder. It also tracks whether
// the backend has declared the session expired, which the host surfaces as a
// "must re-authenticate" state; the client never re-authenticates itself.
type Holder struct {
	mu      sync.RWMutex
	token   string
	expired bool
}

// NewHolder creates an empty holder
func NewHolder() *Holder {
	return &Holder{}
}

// Set stores a fresh token and clears the expired flag
func (h *Holder) Set(token string) {
	h.mu.Lock()
	h.token = token
	h.expired = false
	h.mu.Unlock()
}

// Get returns the current token and whether one is set
func (h *Holder) Get() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token, h.token != ""
}

// Clear drops the token
func (h *Holder) Clear() {
	h.mu.Lock()
	h.token = ""
	h.mu.Unlock()
}

// MarkExpired records that the backend rejected the session
func (h *Holder) MarkExpired() {
	h.mu.Lock()
	h.expired = true
	h.mu.Unlock()
}

// Expired reports whether the session needs re-authentication
func (h *Holder) Expired() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.expired
}
