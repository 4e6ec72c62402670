// Package store owns the authoritative in-memory suggestion collection.
// It is the only component permitted to mutate the canonical list; every
// read hands back clones, never views into the backing storage.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/coursedesk/deadline-cli/internal/model"
)

// Sentinel errors callers branch on.
var (
	ErrNotFound    = eris.New("store: suggestion not found")
	ErrIDMismatch  = eris.New("store: update must not change suggestion id")
	ErrDuplicateID = eris.New("store: suggestion id already present")
)

// Store holds suggestions in insertion order with id-indexed lookup.
//
// A single mutex guards every operation. The service itself is
// single-writer, but the guard makes the store safe if the surrounding
// application ever drives it from more than one goroutine. Atomicity is
// per call only; batch operations above this layer are not transactions.
type Store struct {
	mu    sync.Mutex
	byID  map[string]*model.Suggestion
	order []string
}

// New creates an empty store.
func New() *Store {
	return &Store{byID: make(map[string]*model.Suggestion)}
}

// NewID returns a fresh collision-resistant suggestion identifier.
func NewID() string {
	return uuid.NewString()
}

// Add appends suggestions to the collection. Duplicate titles are allowed
// here; the validator flags them with a warning instead. A repeated id is
// a caller bug and is rejected.
func (st *Store) Add(suggestions ...model.Suggestion) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, s := range suggestions {
		if _, exists := st.byID[s.ID]; exists {
			return eris.Wrap(ErrDuplicateID, s.ID)
		}
	}
	for _, s := range suggestions {
		stored := s.Clone()
		st.byID[s.ID] = &stored
		st.order = append(st.order, s.ID)
	}
	return nil
}

// Get returns a copy of the suggestion with the given id.
func (st *Store) Get(id string) (model.Suggestion, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.byID[id]
	if !ok {
		return model.Suggestion{}, eris.Wrap(ErrNotFound, id)
	}
	return s.Clone(), nil
}

// Update fully replaces the record at id. The replacement must carry the
// same id; identity changes through update are rejected.
func (st *Store) Update(id string, updated model.Suggestion) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.byID[id]; !ok {
		return eris.Wrap(ErrNotFound, id)
	}
	if updated.ID != id {
		return eris.Wrap(ErrIDMismatch, id)
	}
	stored := updated.Clone()
	st.byID[id] = &stored
	return nil
}

// List returns copies of all suggestions in insertion order.
func (st *Store) List() []model.Suggestion {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshot(func(*model.Suggestion) bool { return true })
}

// Len returns the number of stored suggestions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.order)
}

// ClearAll empties the collection. Used for restart-style workflows, e.g.
// discarding an extraction attempt before retrying with a different prompt.
func (st *Store) ClearAll() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.byID = make(map[string]*model.Suggestion)
	st.order = nil
}

// BySource returns copies of suggestions with the given provenance category.
func (st *Store) BySource(source model.SourceType) []model.Suggestion {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshot(func(s *model.Suggestion) bool { return s.Source == source })
}

// ByConfirmed returns copies of suggestions matching the confirmation state.
func (st *Store) ByConfirmed(confirmed bool) []model.Suggestion {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshot(func(s *model.Suggestion) bool { return s.Confirmed == confirmed })
}

// ByMethod returns copies of suggestions with the given extraction method.
func (st *Store) ByMethod(method model.ExtractionMethod) []model.Suggestion {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshot(func(s *model.Suggestion) bool { return s.Method == method })
}

// ByConfidenceRange returns copies of suggestions whose confidence lies in
// [min, max]. Suggestions without a confidence score count as 1.0.
func (st *Store) ByConfidenceRange(min, max float64) []model.Suggestion {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshot(func(s *model.Suggestion) bool {
		c := s.ConfidenceValue()
		return c >= min && c <= max
	})
}

// ByDueRange returns copies of suggestions due in [from, to).
func (st *Store) ByDueRange(from, to time.Time) []model.Suggestion {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshot(func(s *model.Suggestion) bool {
		return !s.Due.Before(from) && s.Due.Before(to)
	})
}

// snapshot collects clones of suggestions matching keep, in insertion
// order. Callers must hold st.mu.
func (st *Store) snapshot(keep func(*model.Suggestion) bool) []model.Suggestion {
	var out []model.Suggestion
	for _, id := range st.order {
		if s := st.byID[id]; keep(s) {
			out = append(out, s.Clone())
		}
	}
	return out
}
