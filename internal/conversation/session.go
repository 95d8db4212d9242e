package conversation

import (
	"sync"
	"time"

	"github.com/studyshelf/catalogbot/internal/catalog"
)

// Session is the context collected for one user across the steps of a flow.
type Session struct {
	UserID           int64
	State            State
	SubjectID        int64
	TopicID          int64
	Action           Action
	PendingFile      *catalog.File
	TargetMaterialID int64
	UpdatedAt        time.Time
}

// Active reports whether the user is in the middle of a flow.
func (s Session) Active() bool {
	return s.State != StateIdle
}

// reset drops everything but the user id.
func (s *Session) reset() {
	*s = Session{UserID: s.UserID}
}

// SessionTable holds the in-flight sessions keyed by user id.
type SessionTable struct {
	mu       sync.Mutex
	sessions map[int64]Session
	now      func() time.Time
}

func NewSessionTable() *SessionTable {
	return &SessionTable{
		sessions: make(map[int64]Session),
		now:      time.Now,
	}
}

// Get returns a copy of the user's session, or an idle one.
func (t *SessionTable) Get(userID int64) Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[userID]; ok {
		return s
	}
	return Session{UserID: userID}
}

// Put stores s. Idle sessions are removed instead of stored.
func (t *SessionTable) Put(s Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !s.Active() {
		delete(t.sessions, s.UserID)
		return
	}
	s.UpdatedAt = t.now()
	if s.PendingFile != nil {
		f := *s.PendingFile
		s.PendingFile = &f
	}
	t.sessions[s.UserID] = s
}

// Clear discards the user's session.
func (t *SessionTable) Clear(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, userID)
}

func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Sweep drops sessions untouched for longer than idle and returns how many
// were removed. A non-positive idle keeps everything.
func (t *SessionTable) Sweep(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-idle)
	removed := 0
	for id, s := range t.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(t.sessions, id)
			removed++
		}
	}
	return removed
}
