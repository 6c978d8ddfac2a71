package session

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voice-intake/internal/llm"
)

var ErrNotFound = errors.New("session not found")

// Session is the server-side state of one outbound call. Turns are only
// reachable through Store.Update, which holds the session lock.
type Session struct {
	ID        string
	CallerID  string
	CreatedAt time.Time

	// connectionID is set outside the session lock so that recording it
	// never waits on an in-flight turn.
	connectionID atomic.Value // string

	mu        sync.Mutex
	turns     []llm.Message
	updatedAt time.Time
	ended     bool
}

// Snapshot is an immutable copy of a session.
type Snapshot struct {
	ID               string        `json:"session_id"`
	CallerID         string        `json:"caller_id"`
	CallConnectionID string        `json:"call_connection_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	Turns            []llm.Message `json:"turns"`
}

// Conversation is the mutable view handed to Store.Update callbacks.
// It must not be retained after the callback returns.
type Conversation struct {
	s   *Session
	now func() time.Time
}

func (c *Conversation) ID() string       { return c.s.ID }
func (c *Conversation) CallerID() string { return c.s.CallerID }
func (c *Conversation) Len() int         { return len(c.s.turns) }

// Messages returns a copy of the turns in conversational order.
func (c *Conversation) Messages() []llm.Message {
	out := make([]llm.Message, len(c.s.turns))
	copy(out, c.s.turns)
	return out
}

// LastAssistant returns the most recent assistant turn, if any.
func (c *Conversation) LastAssistant() (string, bool) {
	for i := len(c.s.turns) - 1; i >= 0; i-- {
		if c.s.turns[i].Role == llm.RoleAssistant {
			return c.s.turns[i].Content, true
		}
	}
	return "", false
}

func (c *Conversation) AppendUser(content string) {
	c.append(llm.Message{Role: llm.RoleUser, Content: content})
}

func (c *Conversation) AppendAssistant(content string) {
	c.append(llm.Message{Role: llm.RoleAssistant, Content: content})
}

func (c *Conversation) append(msg llm.Message) {
	c.s.turns = append(c.s.turns, msg)
	c.s.updatedAt = c.now()
}

func (c *Conversation) CallConnectionID() string { return c.s.callConnectionID() }

func (c *Conversation) SetCallConnectionID(id string) { c.s.setCallConnectionID(id) }

// Store maps session ids to sessions. Inserts and removals take the store
// lock; turn mutation takes only the owning session's lock, so distinct
// sessions never block each other.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
	newID    func() string
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Create registers a new session whose only turn is the system prompt.
func (s *Store) Create(prompt, callerID string) string {
	now := s.now()
	sess := &Session{
		CallerID:  callerID,
		CreatedAt: now,
		turns:     []llm.Message{{Role: llm.RoleSystem, Content: prompt}},
		updatedAt: now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		id := s.newID()
		if _, exists := s.sessions[id]; !exists {
			sess.ID = id
			s.sessions[id] = sess
			return id
		}
	}
}

func (s *Store) lookup(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Update runs fn while holding the session's exclusive lock. Every event that
// reads and then appends turns must go through Update so that a whole
// read-generate-append cycle is atomic with respect to the same session.
func (s *Store) Update(id string, fn func(c *Conversation) error) error {
	sess, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ended {
		return ErrNotFound
	}
	return fn(&Conversation{s: sess, now: s.now})
}

// Get returns a snapshot of the session.
func (s *Store) Get(id string) (Snapshot, error) {
	sess, ok := s.lookup(id)
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ended {
		return Snapshot{}, ErrNotFound
	}
	return sess.snapshot(), nil
}

// SetCallConnectionID records the call connection of a session without
// taking the session lock.
func (s *Store) SetCallConnectionID(id, callConnectionID string) error {
	sess, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}
	sess.setCallConnectionID(callConnectionID)
	return nil
}

// End removes the session and returns its final state. It waits for any
// in-flight Update on the same session to finish.
func (s *Store) End(id string) (Snapshot, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.ended = true
	return sess.snapshot(), nil
}

// Expire ends every session not updated since now-ttl and returns them.
func (s *Store) Expire(ttl time.Duration) []Snapshot {
	cutoff := s.now().Add(-ttl)

	s.mu.RLock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	var out []Snapshot
	for _, sess := range all {
		sess.mu.Lock()
		stale := !sess.ended && sess.updatedAt.Before(cutoff)
		sess.mu.Unlock()
		if !stale {
			continue
		}
		if snap, err := s.End(sess.ID); err == nil {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (sess *Session) snapshot() Snapshot {
	turns := make([]llm.Message, len(sess.turns))
	copy(turns, sess.turns)
	return Snapshot{
		ID:               sess.ID,
		CallerID:         sess.CallerID,
		CallConnectionID: sess.callConnectionID(),
		CreatedAt:        sess.CreatedAt,
		UpdatedAt:        sess.updatedAt,
		Turns:            turns,
	}
}

func (sess *Session) callConnectionID() string {
	id, _ := sess.connectionID.Load().(string)
	return id
}

// setCallConnectionID ignores empty ids; events without one keep the known id.
func (sess *Session) setCallConnectionID(id string) {
	if id != "" {
		sess.connectionID.Store(id)
	}
}
