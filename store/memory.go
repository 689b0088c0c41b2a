// Package store provides TokenStore implementations for the authflow
// lifecycle manager. The in-memory store lives here; encrypted file and
// PostgreSQL backends live in the file and postgres subpackages.
package store

import (
	"context"
	"sync"

	"github.com/adeilh/go-vigil/authflow"
)

// Memory keeps the TokenSet in process memory only. Useful for tests and for
// callers that deliberately do not persist sessions across restarts.
type Memory struct {
	mu     sync.Mutex
	tokens authflow.TokenSet
	held   bool
}

// NewMemory returns an empty in-memory token store.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Save(_ context.Context, tokens authflow.TokenSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = tokens
	m.held = true
	return nil
}

func (m *Memory) Load(context.Context) (authflow.TokenSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held {
		return authflow.TokenSet{}, authflow.ErrNoTokens
	}
	return m.tokens, nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = authflow.TokenSet{}
	m.held = false
	return nil
}
