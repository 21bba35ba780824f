package report

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrNotFound is returned when a report does not exist.
var ErrNotFound = errors.New("report not found")

// Store persists round reports.
type Store interface {
	// SaveRound stores a report, replacing an earlier one for the same round.
	SaveRound(ctx context.Context, r *RoundReport) error

	// Rounds returns all reports of a session ordered by round.
	Rounds(ctx context.Context, sessionID string) ([]*RoundReport, error)

	// Round returns one report or ErrNotFound.
	Round(ctx context.Context, sessionID string, round int) (*RoundReport, error)

	// Sessions returns the ids of all sessions with reports, sorted.
	Sessions(ctx context.Context) ([]string, error)
}

// InMemoryStore implements Store without a database.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[int]*RoundReport
}

// NewInMemoryStore creates an in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]map[int]*RoundReport),
	}
}

// SaveRound stores a report in memory.
func (s *InMemoryStore) SaveRound(_ context.Context, r *RoundReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rounds, ok := s.sessions[r.SessionID]
	if !ok {
		rounds = make(map[int]*RoundReport)
		s.sessions[r.SessionID] = rounds
	}
	rounds[r.Round] = r
	return nil
}

// Rounds returns the stored reports of a session.
func (s *InMemoryStore) Rounds(_ context.Context, sessionID string) ([]*RoundReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rounds, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	result := make([]*RoundReport, 0, len(rounds))
	for _, r := range rounds {
		result = append(result, r)
	}
	slices.SortFunc(result, func(a, b *RoundReport) int { return a.Round - b.Round })
	return result, nil
}

// Round returns one stored report.
func (s *InMemoryStore) Round(_ context.Context, sessionID string, round int) (*RoundReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.sessions[sessionID][round]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// Sessions returns the ids of stored sessions.
func (s *InMemoryStore) Sessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
