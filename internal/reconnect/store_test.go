package reconnect

import (
	"context"
	"testing"
)

func testCipher(t *testing.T) SessionCipher {
	t.Helper()
	c, err := NewSessionCipher([]byte("a-test-session-key"))
	if err != nil {
		t.Fatalf("NewSessionCipher: %v", err)
	}
	return c
}

// TestFileSessionStoreRoundTrip reproduces spec §8's literal persistence
// property: sessionId, authToken, serverAddress, port, sessionBlob,
// clientStateBlob all survive a save/load round trip exactly.
func TestFileSessionStoreRoundTrip(t *testing.T) {
	store, err := NewFileSessionStore(t.TempDir(), testCipher(t))
	if err != nil {
		t.Fatalf("NewFileSessionStore: %v", err)
	}

	want := SetupSession("sess-1", "tok-abc", "10.0.0.5", 7777,
		[]byte{1, 2, 3, 4, 5}, []byte("client state blob"))

	ctx := context.Background()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.SessionID != want.SessionID ||
		got.AuthToken != want.AuthToken ||
		got.ServerAddress != want.ServerAddress ||
		got.Port != want.Port {
		t.Fatalf("scalar fields mismatch: got %+v, want %+v", got, want)
	}
	if string(got.SessionBlob) != string(want.SessionBlob) {
		t.Fatalf("SessionBlob mismatch: got %v, want %v", got.SessionBlob, want.SessionBlob)
	}
	if string(got.ClientStateBlob) != string(want.ClientStateBlob) {
		t.Fatalf("ClientStateBlob mismatch: got %v, want %v", got.ClientStateBlob, want.ClientStateBlob)
	}
}

func TestFileSessionStoreDeleteRemovesSession(t *testing.T) {
	store, err := NewFileSessionStore(t.TempDir(), testCipher(t))
	if err != nil {
		t.Fatalf("NewFileSessionStore: %v", err)
	}
	ctx := context.Background()

	s := SetupSession("sess-2", "tok", "host", 1, nil, nil)
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, "sess-2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx, "sess-2"); err == nil {
		t.Fatal("expected Load to fail after Delete")
	}
}

func TestClearSessionZeroesSensitiveBytes(t *testing.T) {
	s := SetupSession("sess-3", "secret-token", "host", 1, []byte{9, 9, 9}, []byte{8, 8})
	s.ClearSession()

	if s.AuthToken != "" {
		t.Fatalf("expected AuthToken cleared, got %q", s.AuthToken)
	}
	for _, b := range s.SessionBlob {
		if b != 0 {
			t.Fatal("expected SessionBlob zeroed")
		}
	}
	for _, b := range s.ClientStateBlob {
		if b != 0 {
			t.Fatal("expected ClientStateBlob zeroed")
		}
	}
}

func TestUpdateSessionStateAdvancesTimestamp(t *testing.T) {
	s := SetupSession("sess-4", "tok", "host", 1, []byte{1}, []byte{2})
	before := s.LastUpdateTime
	s.UpdateSessionState([]byte{5, 6}, []byte{7})
	if !s.LastUpdateTime.After(before) && s.LastUpdateTime != before {
		t.Fatal("expected LastUpdateTime to advance or stay equal, never regress")
	}
	if string(s.SessionBlob) != string([]byte{5, 6}) {
		t.Fatalf("expected SessionBlob updated, got %v", s.SessionBlob)
	}
}
