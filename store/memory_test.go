package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adeilh/go-vigil/authflow"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	t.Run("empty store", func(t *testing.T) {
		if _, err := m.Load(ctx); !errors.Is(err, authflow.ErrNoTokens) {
			t.Fatalf("Load() error = %v, want ErrNoTokens", err)
		}
		if err := m.Clear(ctx); err != nil {
			t.Fatalf("Clear() on an empty store error = %v", err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		tokens := authflow.TokenSet{
			AccessToken:      "a",
			RefreshToken:     "r",
			SessionID:        "s",
			AccessExpiresAt:  time.Now().Add(time.Hour),
			RefreshExpiresAt: time.Now().Add(24 * time.Hour),
		}
		if err := m.Save(ctx, tokens); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, err := m.Load(ctx)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != tokens {
			t.Fatalf("Load() = %+v, want %+v", got, tokens)
		}
	})

	t.Run("clear", func(t *testing.T) {
		if err := m.Clear(ctx); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if _, err := m.Load(ctx); !errors.Is(err, authflow.ErrNoTokens) {
			t.Fatalf("Load() after Clear error = %v, want ErrNoTokens", err)
		}
	})
}
