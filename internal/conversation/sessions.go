package conversation

import (
	"sync"
	"time"
)

// Session is the per-conversation state threaded through the pipeline.
type Session struct {
	ID      string
	Owner   string
	Context *Context
	Created time.Time

	mu           sync.RWMutex
	activeListID string
	language     string
}

// ActiveList returns the ID of the list commands apply to by default.
func (s *Session) ActiveList() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeListID
}

// SetActiveList changes the default list.
func (s *Session) SetActiveList(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeListID = id
}

// Language returns the language of the last accepted utterance.
func (s *Session) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// SetLanguage records the language replies should use.
func (s *Session) SetLanguage(lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = lang
}

// Sessions is a registry of live sessions. It is owned by the caller and
// passed down explicitly.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxTurns int
	enabled  bool
	language string
}

// NewSessions creates a registry whose sessions keep maxTurns turns of
// context when enabled, and start in language.
func NewSessions(maxTurns int, enabled bool, language string) *Sessions {
	return &Sessions{
		sessions: make(map[string]*Session),
		maxTurns: maxTurns,
		enabled:  enabled,
		language: language,
	}
}

// Get returns an existing session.
func (r *Sessions) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// GetOrCreate returns the session for id, creating it for owner if needed.
func (r *Sessions) GetOrCreate(id, owner string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := &Session{
		ID:       id,
		Owner:    owner,
		Context:  NewContext(r.maxTurns, r.enabled),
		Created:  time.Now(),
		language: r.language,
	}
	r.sessions[id] = s
	return s
}
