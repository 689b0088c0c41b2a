package authflow

import (
	"testing"
	"time"
)

func TestTokenSetValid(t *testing.T) {
	now := time.Now()
	base := TokenSet{
		AccessToken:      "a",
		RefreshToken:     "r",
		SessionID:        "s",
		AccessExpiresAt:  now.Add(time.Hour),
		RefreshExpiresAt: now.Add(24 * time.Hour),
	}

	tests := []struct {
		name   string
		mutate func(*TokenSet)
		want   bool
	}{
		{"complete set", func(*TokenSet) {}, true},
		{"missing access token", func(ts *TokenSet) { ts.AccessToken = "" }, false},
		{"missing refresh token", func(ts *TokenSet) { ts.RefreshToken = "" }, false},
		{"zero access expiry", func(ts *TokenSet) { ts.AccessExpiresAt = time.Time{} }, false},
		{"zero refresh expiry", func(ts *TokenSet) { ts.RefreshExpiresAt = time.Time{} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := base
			tt.mutate(&ts)
			if got := ts.Valid(); got != tt.want {
				t.Fatalf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenSetExpiry(t *testing.T) {
	now := time.Now()
	ts := TokenSet{
		AccessExpiresAt:  now.Add(time.Minute),
		RefreshExpiresAt: now.Add(time.Hour),
	}

	if ts.AccessExpired(now) {
		t.Fatal("access token should not be expired before its deadline")
	}
	if !ts.AccessExpired(now.Add(time.Minute)) {
		t.Fatal("access token should be expired exactly at its deadline")
	}
	if ts.RefreshExpired(now.Add(59 * time.Minute)) {
		t.Fatal("refresh token should not be expired before its deadline")
	}
	if !ts.RefreshExpired(now.Add(2 * time.Hour)) {
		t.Fatal("refresh token should be expired after its deadline")
	}
}
