package authflow

import "testing"

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusUnknown, "unknown"},
		{StatusUnauthenticated, "unauthenticated"},
		{StatusAuthenticated, "authenticated"},
		{StatusExpiringSoon, "expiringSoon"},
		{StatusRefreshing, "refreshing"},
		{StatusSessionInvalid, "sessionInvalid"},
		{Status(99), "invalid"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status   Status
		live     bool
		terminal bool
	}{
		{StatusUnknown, false, false},
		{StatusUnauthenticated, false, true},
		{StatusAuthenticated, true, false},
		{StatusExpiringSoon, true, false},
		{StatusRefreshing, true, false},
		{StatusSessionInvalid, false, true},
	}
	for _, tt := range tests {
		if got := tt.status.Live(); got != tt.live {
			t.Errorf("%v.Live() = %v, want %v", tt.status, got, tt.live)
		}
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%v.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}
