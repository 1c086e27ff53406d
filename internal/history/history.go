// Package history keeps a bounded, newest-first list of completed analyses.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/spigell/jojun/internal/ai"
)

const (
	DefaultCapacity = 20
	UntitledEntry   = "Untitled analysis"
)

var ErrIndexOutOfRange = errors.New("history index out of range")

type Entry struct {
	Title    string                `json:"title"`
	FitScore int                   `json:"fit_score"`
	Data     ai.FullAnalysisResult `json:"data"`
}

// NewEntry derives an entry from a completed result. The title is the first
// competency name, or UntitledEntry when there is none.
func NewEntry(result ai.FullAnalysisResult) Entry {
	title := UntitledEntry
	if len(result.Categories) > 0 && strings.TrimSpace(result.Categories[0]) != "" {
		title = strings.TrimSpace(result.Categories[0])
	}
	return Entry{
		Title:    title,
		FitScore: result.FitScore,
		Data:     result,
	}
}

// Store is safe for concurrent use. Index 0 is always the newest entry.
type Store struct {
	mu       sync.Mutex
	capacity int
	// oldest first, so insert is an append
	items []Entry
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

// Insert puts e at index 0 and returns the number of evicted entries.
func (s *Store) Insert(e Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, e)
	evicted := len(s.items) - s.capacity
	if evicted <= 0 {
		return 0
	}
	s.items = slices.Delete(s.items, 0, evicted)
	return evicted
}

func (s *Store) Get(index int) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.position(index)
	if err != nil {
		return Entry{}, err
	}
	return s.items[pos], nil
}

// Delete removes the entry at index; later entries shift down by one.
func (s *Store) Delete(index int) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.position(index)
	if err != nil {
		return Entry{}, err
	}
	removed := s.items[pos]
	s.items = slices.Delete(s.items, pos, pos+1)
	return removed, nil
}

// List returns a newest-first copy of all entries.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.items))
	for i := range s.items {
		out[i] = s.items[len(s.items)-1-i]
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) Capacity() int {
	return s.capacity
}

// DumpToTmpFile writes the newest-first list as indented JSON to a
// temporary file and returns its path.
func (s *Store) DumpToTmpFile() (string, error) {
	entries := s.List()

	file, err := os.CreateTemp("", "jojun_history_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return "", err
	}
	return file.Name(), nil
}

func (s *Store) position(index int) (int, error) {
	if index < 0 || index >= len(s.items) {
		return 0, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(s.items))
	}
	return len(s.items) - 1 - index, nil
}
