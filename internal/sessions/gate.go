package sessions

import "sync"

// Gate admits at most one in-flight flow per portal session, keyed by the
// session DID. The portal serializes work per session, and an overlapping
// flow would tear down the other's connection state.
type Gate struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{inFlight: make(map[string]struct{})}
}

// Acquire claims sessionDID. It returns false when it is already held.
func (g *Gate) Acquire(sessionDID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[sessionDID]; busy {
		return false
	}
	g.inFlight[sessionDID] = struct{}{}
	return true
}

// Release frees sessionDID.
func (g *Gate) Release(sessionDID string) {
	g.mu.Lock()
	delete(g.inFlight, sessionDID)
	g.mu.Unlock()
}
