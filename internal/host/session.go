package host

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is the context built for one start-session and torn down on logout.
type Session struct {
	ID        string
	Messenger Messenger
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(parent context.Context, factory MessengerFactory, now time.Time) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:        id,
		Messenger: factory(id),
		StartedAt: now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) Close() error {
	s.cancel()
	return s.Messenger.Close()
}

// SessionInfo is the JSON view of the current session.
type SessionInfo struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	State     string    `json:"state,omitempty"`
	Pairing   string    `json:"pairing_token,omitempty"`
}

func (s *Session) info() SessionInfo {
	out := SessionInfo{ID: s.ID, StartedAt: s.StartedAt}
	if st, ok := s.Messenger.(interface{ Status() (string, string) }); ok {
		out.State, out.Pairing = st.Status()
	}
	return out
}
