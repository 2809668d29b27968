package services

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrRunInUse is returned when a run ID is already running, finished
	// recently, or was reserved by another user.
	ErrRunInUse = errors.New("run ID is already in use")
	// ErrRunForbidden is returned when a user asks for a run owned by someone else.
	ErrRunForbidden = errors.New("run belongs to another user")
)

type runState int

const (
	runReserved runState = iota
	runActive
	runDone
)

type runEntry struct {
	owner      string
	state      runState
	reservedBy string
	since      time.Time
}

// RunRegistry tracks which run IDs are reserved, running or recently
// finished, and who owns them. Reserved and finished entries expire after
// the retention period; running entries never do.
type RunRegistry struct {
	mu     sync.Mutex
	runs   map[string]*runEntry
	retain time.Duration
	now    func() time.Time
}

// DefaultRunRetention is how long a finished or reserved run ID stays taken.
const DefaultRunRetention = 15 * time.Minute

// NewRunRegistry creates a RunRegistry keeping finished run IDs for retain.
// A non-positive retain uses DefaultRunRetention.
func NewRunRegistry(retain time.Duration) *RunRegistry {
	if retain <= 0 {
		retain = DefaultRunRetention
	}
	return &RunRegistry{
		runs:   make(map[string]*runEntry),
		retain: retain,
		now:    time.Now,
	}
}

// Reserve records userID as the observer of runID before its upload starts.
// It fails with ErrRunForbidden when the run is owned by another user.
func (r *RunRegistry) Reserve(runID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()

	if e, ok := r.runs[runID]; ok {
		if e.owner != userID {
			return ErrRunForbidden
		}
		return nil
	}
	r.runs[runID] = &runEntry{owner: userID, state: runReserved, reservedBy: userID, since: r.now()}
	return nil
}

// Claim marks runID as running for userID. A run reserved by the same user
// can be claimed; anything else already known fails with ErrRunInUse.
func (r *RunRegistry) Claim(runID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()

	reservedBy := ""
	if e, ok := r.runs[runID]; ok {
		if e.state != runReserved || e.owner != userID {
			return ErrRunInUse
		}
		reservedBy = e.reservedBy
	}
	r.runs[runID] = &runEntry{owner: userID, state: runActive, reservedBy: reservedBy, since: r.now()}
	return nil
}

// Finish marks a claimed run as done. Its ID stays taken for the retention
// period.
func (r *RunRegistry) Finish(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.runs[runID]; ok && e.state == runActive {
		e.state = runDone
		e.since = r.now()
	}
}

// Abandon releases a claimed run that never started, restoring its
// reservation if it had one.
func (r *RunRegistry) Abandon(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.runs[runID]
	if !ok || e.state != runActive {
		return
	}
	if e.reservedBy == "" {
		delete(r.runs, runID)
		return
	}
	e.owner = e.reservedBy
	e.state = runReserved
	e.since = r.now()
}

// Owner reports who owns runID, if anyone.
func (r *RunRegistry) Owner(runID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()
	e, ok := r.runs[runID]
	if !ok {
		return "", false
	}
	return e.owner, true
}

// prune must be called with mu held.
func (r *RunRegistry) prune() {
	cutoff := r.now().Add(-r.retain)
	for id, e := range r.runs {
		if e.state != runActive && e.since.Before(cutoff) {
			delete(r.runs, id)
		}
	}
}
