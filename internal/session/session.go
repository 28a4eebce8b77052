// Package session keeps the short-lived per-user state of the two-step
// start flow: pick a category, then type the task name.
package session

import (
	"time"

	"timebot/internal/cache"
	"timebot/internal/core"
)

type Step int

const (
	StepIdle Step = iota
	StepPickingCategory
	StepAwaitingTask
)

func (s Step) String() string {
	switch s {
	case StepPickingCategory:
		return "picking_category"
	case StepAwaitingTask:
		return "awaiting_task"
	default:
		return "idle"
	}
}

// State is what the front-end remembers between turns for one user.
type State struct {
	Step         Step
	CategoryID   int64
	CategoryName string
}

const defaultMaxSessions = 10000

// Store holds session state with an expiry. An expired or missing entry
// reads as idle.
type Store struct {
	states *cache.LRUCache[core.UserID, State]
}

func NewStore(ttl time.Duration) *Store {
	return &Store{states: cache.NewLRUCache[core.UserID, State](defaultMaxSessions, ttl)}
}

// WithClock swaps the time source used for expiry.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.states.WithClock(now)
	return s
}

// Cleaner exposes the backing cache so a cache.Manager can sweep it.
func (s *Store) Cleaner() cache.Cleaner {
	return s.states
}

func (s *Store) Get(user core.UserID) State {
	st, ok := s.states.Get(user)
	if !ok {
		return State{Step: StepIdle}
	}
	return st
}

// BeginPick moves the user into category selection, dropping any earlier choice.
func (s *Store) BeginPick(user core.UserID) {
	s.states.Set(user, State{Step: StepPickingCategory})
}

// ChooseCategory records the selection and waits for the task name.
func (s *Store) ChooseCategory(user core.UserID, categoryID int64, name string) {
	s.states.Set(user, State{
		Step:         StepAwaitingTask,
		CategoryID:   categoryID,
		CategoryName: name,
	})
}

// Cancel returns the user to idle and reports whether anything was pending.
func (s *Store) Cancel(user core.UserID) bool {
	pending := s.Get(user).Step != StepIdle
	s.states.Delete(user)
	return pending
}

// Complete clears the session once the entry has been created.
func (s *Store) Complete(user core.UserID) {
	s.states.Delete(user)
}
