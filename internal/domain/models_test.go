package domain

import "testing"

func TestAccessInfoMaskedToken(t *testing.T) {
	t.Parallel()

	a := AccessInfo{Mode: AccessToken, Token: "abcdef1234567890"}
	m := a.Masked()
	if m.Token != "abc***90" {
		t.Fatalf("got %q", m.Token)
	}
	if a.Token != "abcdef1234567890" {
		t.Fatal("Masked must not mutate the receiver")
	}
}

func TestAccessInfoMaskedShortSecret(t *testing.T) {
	t.Parallel()

	a := AccessInfo{Mode: AccessBasic, Password: "abcd"}
	if got := a.Masked().Password; got != "***" {
		t.Fatalf("got %q, want ***", got)
	}
}

func TestSessionStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := []SessionStatus{StatusStopped, StatusError, StatusExpired}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	nonTerminal := []SessionStatus{StatusStarting, StatusRunning}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Fatalf("expected %s not to be terminal", s)
		}
	}
}

func TestSessionSnapshotMasksAccess(t *testing.T) {
	t.Parallel()

	s := &Session{
		ID:     "port_abc_000001",
		Type:   SessionTypePort,
		Status: StatusRunning,
		Access: AccessInfo{Mode: AccessToken, Token: "0123456789abcdef"},
	}
	snap := s.Snapshot()
	if snap.Access.Token == s.Access.Token {
		t.Fatal("expected Snapshot to mask the token")
	}
}
