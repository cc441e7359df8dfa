package llm

import (
	"sync"
	"time"
)

// conversationMemory retains recent exchanges per approval session so
// follow-up questions reach the model with their context. Entries expire
// after the TTL; the gateway's janitor sweeps them out.
type conversationMemory struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
	maxTurns int
	ttl      time.Duration
	now      func() time.Time
}

// memoryEntry is one session's remembered turns. touched is bumped on every
// read or write so active conversations outlive the TTL.
type memoryEntry struct {
	turns   []Message
	touched time.Time
}

func newConversationMemory(maxTurns int, ttl time.Duration) *conversationMemory {
	return &conversationMemory{
		sessions: make(map[string]*memoryEntry),
		maxTurns: maxTurns,
		ttl:      ttl,
		now:      time.Now,
	}
}

// history returns a copy of the session's remembered turns.
func (m *conversationMemory) history(sessionID string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	entry.touched = m.now()
	out := make([]Message, len(entry.turns))
	copy(out, entry.turns)
	return out
}

// record appends one user/assistant exchange, trimming the oldest exchanges
// beyond the turn cap.
func (m *conversationMemory) record(sessionID string, user, assistant Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[sessionID]
	if !ok {
		entry = &memoryEntry{}
		m.sessions[sessionID] = entry
	}
	entry.turns = append(entry.turns, user, assistant)
	if over := len(entry.turns) - 2*m.maxTurns; over > 0 {
		entry.turns = append([]Message(nil), entry.turns[over:]...)
	}
	entry.touched = m.now()
}

// adopt moves a session's remembered turns to a new session ID. Used when a
// follow-up analysis opens a fresh approval session that continues an
// earlier conversation.
func (m *conversationMemory) adopt(oldID, newID string) {
	if oldID == "" || newID == "" || oldID == newID {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[oldID]
	if !ok {
		return
	}
	delete(m.sessions, oldID)
	entry.touched = m.now()
	m.sessions[newID] = entry
}

// drop discards a session's remembered turns.
func (m *conversationMemory) drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// sweep removes entries idle past the TTL and reports how many were
// removed.
func (m *conversationMemory) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	removed := 0
	for id, entry := range m.sessions {
		if entry.touched.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *conversationMemory) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
