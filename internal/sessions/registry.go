// Package sessions tracks the continuation token issued by the remote agent
// for each conversation.
package sessions

import (
	"sort"
	"sync"
)

// Store maps a conversation identifier to the agent's continuation token.
type Store interface {
	// Get returns the token for id and whether one is recorded.
	Get(id string) (string, bool)
	// Set records token for id, replacing any previous value.
	Set(id, token string)
	// Clear forgets id and reports whether a token was recorded.
	Clear(id string) bool
}

// Registry is an in-memory Store safe for concurrent use.
//
// Entries live for the lifetime of the process. There is no expiry and no
// persistence; concurrent writers for the same conversation resolve as
// last-write-wins.
type Registry struct {
	mu     sync.RWMutex
	tokens map[string]string

	// OnChange, if set, is called with the new size after every mutation
	// that changes the number of entries. It runs under the write lock so
	// sizes arrive in mutation order, and must not call back into the
	// Registry.
	OnChange func(size int)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tokens: map[string]string{}}
}

func (r *Registry) Get(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.tokens[id]
	return token, ok
}

func (r *Registry) Set(id, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.tokens[id]
	r.tokens[id] = token
	if !existed {
		r.notify(len(r.tokens))
	}
}

func (r *Registry) Clear(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.tokens[id]
	delete(r.tokens, id)
	if existed {
		r.notify(len(r.tokens))
	}
	return existed
}

// Len returns the number of conversations with a recorded token.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

// Snapshot returns the conversation identifiers currently tracked, sorted.
// Tokens are not included.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.tokens))
	for id := range r.tokens {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) notify(size int) {
	if r.OnChange != nil {
		r.OnChange(size)
	}
}
