// Package journal stores feedback-loop trajectories. Entries are append
// only: once written they are never mutated, so the remediation-hint
// collaborator can replay them safely.
package journal

import (
	"context"
	"sync"

	"github.com/aurumdesk/riskgate/models"
)

// Journal is the trajectory store consumed by the feedback loop controller.
type Journal interface {
	Append(ctx context.Context, entry models.TrajectoryEntry) error
	List(ctx context.Context, lineage string) ([]models.TrajectoryEntry, error)
	Close() error
}

// Memory is an in-process journal used by tests and one-shot CLI runs.
type Memory struct {
	mu      sync.Mutex
	entries []models.TrajectoryEntry
}

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{}
}

// Append stores a copy of the entry.
func (m *Memory) Append(_ context.Context, entry models.TrajectoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// List returns the entries for a lineage in append order.
func (m *Memory) List(_ context.Context, lineage string) ([]models.TrajectoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TrajectoryEntry
	for _, entry := range m.entries {
		if entry.Lineage == lineage {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory journal.
func (m *Memory) Close() error { return nil }
