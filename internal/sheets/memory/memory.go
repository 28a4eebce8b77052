package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"timebot/internal/core"
	ports "timebot/internal/sheets"
)

// Store is an in-process exporter used when no spreadsheet is configured
// and in tests.
type Store struct {
	mu    sync.Mutex
	items []core.Entry
	fail  error
}

var _ ports.EntryExporter = (*Store)(nil)

var errEntryActive = errors.New("cannot export an active entry")

func New() *Store {
	return &Store{}
}

// Export stores the completed entry and returns a synthetic row reference.
func (s *Store) Export(_ context.Context, e core.Entry) (string, error) {
	if e.Active() {
		return "", fmt.Errorf("entry %d: %w", e.ID, errEntryActive)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.items = append(s.items, e)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// FailWith makes subsequent exports return err; nil restores normal behavior.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Entries returns a copy of everything exported so far.
func (s *Store) Entries() []core.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Entry(nil), s.items...)
}
