package assessment

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/mind-engage/markingsheet/internal/apperr"
)

// MemoryStore keeps assessments in process memory. Data is lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Assessment
	acks []Acknowledgment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]Assessment{}}
}

func (m *MemoryStore) Create(_ context.Context, a Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[a.ID]; ok {
		return apperr.Conflict("assessment already exists")
	}
	m.byID[a.ID] = a
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	if !ok {
		return Assessment{}, apperr.NotFound("assessment")
	}
	return a, nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := lo.Filter(lo.Values(m.byID), func(a Assessment, _ int) bool {
		switch {
		case f.MarkingSheetID != "" && a.MarkingSheetID != f.MarkingSheetID:
			return false
		case !f.StartDate.IsZero() && a.CreatedAt.Before(f.StartDate):
			return false
		case !f.EndDate.IsZero() && a.CreatedAt.After(f.EndDate):
			return false
		case f.Status != "" && a.Status != f.Status:
			return false
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Acknowledge(_ context.Context, ack Acknowledgment) (Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[ack.AssessmentID]
	if !ok {
		return Assessment{}, apperr.NotFound("assessment")
	}
	if a.Acknowledged() {
		return Assessment{}, apperr.Conflict("This assessment has already been acknowledged")
	}
	at := ack.AcknowledgmentDate
	a.AcknowledgedAt = &at
	a.AcknowledgedBy = ack.StudentSignature
	a.UpdatedAt = at
	m.byID[a.ID] = a
	m.acks = append(m.acks, ack)
	return a, nil
}

func (m *MemoryStore) Acknowledgments(_ context.Context, assessmentID string) ([]Acknowledgment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Filter(m.acks, func(a Acknowledgment, _ int) bool { return a.AssessmentID == assessmentID }), nil
}

// DeleteBySheet removes every assessment of a sheet and their
// acknowledgments.
func (m *MemoryStore) DeleteBySheet(_ context.Context, sheetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := map[string]bool{}
	for id, a := range m.byID {
		if a.MarkingSheetID == sheetID {
			removed[id] = true
			delete(m.byID, id)
		}
	}
	m.acks = lo.Reject(m.acks, func(a Acknowledgment, _ int) bool { return removed[a.AssessmentID] })
	return nil
}
