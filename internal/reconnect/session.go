// Package reconnect implements the core's reconnection controller:
// session persistence, connection-quality monitoring, and a
// backoff-driven reconnect state machine.
package reconnect

import "time"

// Session is the opaque-to-callers state a client needs to resume a
// connection after a drop or process restart. SessionBlob and
// ClientStateBlob are handled as opaque bytes by this package; callers
// own their meaning.
type Session struct {
	SessionID       string
	AuthToken       string
	ServerAddress   string
	Port            uint16
	SessionBlob     []byte
	ClientStateBlob []byte
	LastUpdateTime  time.Time
}

// SetupSession initializes a fresh Session with the given opaque
// material and a LastUpdateTime of now.
func SetupSession(sessionID, authToken, serverAddress string, port uint16, sessionBlob, clientStateBlob []byte) *Session {
	return &Session{
		SessionID:       sessionID,
		AuthToken:       authToken,
		ServerAddress:   serverAddress,
		Port:            port,
		SessionBlob:     append([]byte(nil), sessionBlob...),
		ClientStateBlob: append([]byte(nil), clientStateBlob...),
		LastUpdateTime:  time.Now(),
	}
}

// UpdateSessionState replaces the session's blobs and advances
// LastUpdateTime.
func (s *Session) UpdateSessionState(sessionBlob, clientStateBlob []byte) {
	s.SessionBlob = append([]byte(nil), sessionBlob...)
	s.ClientStateBlob = append([]byte(nil), clientStateBlob...)
	s.LastUpdateTime = time.Now()
}

// ClearSession zeroes the session's sensitive byte material in place.
// The struct itself remains valid but carries no recoverable secrets.
func (s *Session) ClearSession() {
	zero(s.SessionBlob)
	zero(s.ClientStateBlob)
	s.AuthToken = ""
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
