// Package history keeps the most recent analysis reports of a watch
// session in memory, with an optional JSON dump for inspection.
package history

import (
	"encoding/json"
	"os"
	"sync"

	"kubecase/pkg/report"
)

// Store holds a bounded, newest-last list of reports
type Store struct {
	mu    sync.RWMutex // Protects runs from concurrent watch ticks
	runs  []*report.Report
	limit int
}

// NewStore creates a store keeping at most limit reports; 0 means
// unbounded
func NewStore(limit int) *Store {
	return &Store{limit: limit}
}

// Add appends a report, evicting the oldest when over the limit
func (s *Store) Add(r *report.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, r)
	if s.limit > 0 && len(s.runs) > s.limit {
		s.runs = s.runs[len(s.runs)-s.limit:]
	}
}

// Latest returns the most recent report, or nil when empty
func (s *Store) Latest() *report.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return nil
	}
	return s.runs[len(s.runs)-1]
}

// Len returns the number of stored reports
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// SaveToFile writes the stored reports to a JSON file
func (s *Store) SaveToFile(filename string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(s.runs, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// LoadFromFile restores reports from a JSON file; a missing file is not
// an error
func (s *Store) LoadFromFile(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &s.runs)
}
