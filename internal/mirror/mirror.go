// Package mirror holds parsed emails for the duration of a run so threads can
// be read back by origin file.
package mirror

import (
	"context"
	"sync"

	"github.com/tmskss/portfolio-health-report/internal/models"
)

// DefaultMemoryRuns bounds how many runs a Memory store holds at once.
const DefaultMemoryRuns = 16

// Store indexes the emails of a run and returns them grouped by origin file.
// EmailsByOrigin returns emails in the order they were indexed.
type Store interface {
	IndexEmails(ctx context.Context, runID string, docs []models.EmailDocument) error
	EmailsByOrigin(ctx context.Context, runID, originFile string) ([]models.ParsedEmail, error)
}

// Releaser is implemented by stores that can drop a run once it has been
// read back.
type Releaser interface {
	ReleaseRun(ctx context.Context, runID string) error
}

// Memory is a process-local Store. Runs are kept apart so overlapping runs
// never see each other's documents; the oldest run is evicted once more than
// maxRuns are held.
type Memory struct {
	mu      sync.Mutex
	runs    map[string][]models.EmailDocument
	order   []string
	maxRuns int
}

// NewMemory returns an empty in-memory store holding DefaultMemoryRuns runs.
func NewMemory() *Memory {
	return NewMemoryWithLimit(DefaultMemoryRuns)
}

// NewMemoryWithLimit returns an empty in-memory store holding up to maxRuns runs.
func NewMemoryWithLimit(maxRuns int) *Memory {
	if maxRuns <= 0 {
		maxRuns = 1
	}
	return &Memory{
		runs:    make(map[string][]models.EmailDocument),
		maxRuns: maxRuns,
	}
}

// IndexEmails appends docs to runID.
func (m *Memory) IndexEmails(_ context.Context, runID string, docs []models.EmailDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[runID]; !ok {
		m.order = append(m.order, runID)
	}
	m.runs[runID] = append(m.runs[runID], docs...)

	for len(m.order) > m.maxRuns {
		delete(m.runs, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

// EmailsByOrigin returns the emails of originFile indexed under runID.
func (m *Memory) EmailsByOrigin(_ context.Context, runID, originFile string) ([]models.ParsedEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ParsedEmail
	for _, d := range m.runs[runID] {
		if d.OriginFile == originFile {
			out = append(out, d.Email())
		}
	}
	return out, nil
}

// ReleaseRun drops every document of runID.
func (m *Memory) ReleaseRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[runID]; !ok {
		return nil
	}
	delete(m.runs, runID)
	for i, id := range m.order {
		if id == runID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Runs returns the number of runs currently held.
func (m *Memory) Runs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}
