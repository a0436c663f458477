package survival

import (
	"sync"
	"time"
)

// RestStatus is the rest bookkeeping consulted by the forced-rest rule.
type RestStatus struct {
	LastRestAt       time.Time
	LastForcedRestAt time.Time
	PromptOpen       bool
}

// RestGuard tracks rest timing per character. It is safe for use by
// several character workers at once.
type RestGuard struct {
	mu     sync.Mutex
	states map[string]RestStatus
	now    func() time.Time
}

// NewRestGuard creates a guard. A nil clock uses time.Now.
func NewRestGuard(now func() time.Time) *RestGuard {
	if now == nil {
		now = time.Now
	}
	return &RestGuard{
		states: make(map[string]RestStatus),
		now:    now,
	}
}

// Now returns the guard's clock reading.
func (g *RestGuard) Now() time.Time {
	return g.now()
}

// Status returns the current rest status for a character.
func (g *RestGuard) Status(characterID string) RestStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.states[characterID]
}

// MarkForced records that a forced rest prompt was raised and is open.
func (g *RestGuard) MarkForced(characterID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.states[characterID]
	st.LastForcedRestAt = g.now()
	st.PromptOpen = true
	g.states[characterID] = st
}

// MarkRested records a completed voluntary rest and closes any prompt.
func (g *RestGuard) MarkRested(characterID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.states[characterID]
	st.LastRestAt = g.now()
	st.PromptOpen = false
	g.states[characterID] = st
}

// DismissPrompt closes an open prompt without resting.
// The forced-rest cooldown still applies.
func (g *RestGuard) DismissPrompt(characterID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.states[characterID]
	st.PromptOpen = false
	g.states[characterID] = st
}

// Forget drops all state for a character.
func (g *RestGuard) Forget(characterID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.states, characterID)
}
