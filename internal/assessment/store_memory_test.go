package assessment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/markingsheet/internal/apperr"
)

func TestMemoryStoreListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	day := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)

	seed := []Assessment{
		{ID: "a", MarkingSheetID: "cpr", Status: StatusPassed, CreatedAt: day.Add(-48 * time.Hour)},
		{ID: "b", MarkingSheetID: "cpr", Status: StatusFailed, CreatedAt: day.Add(2 * time.Hour)},
		{ID: "c", MarkingSheetID: "iv", Status: StatusPassed, CreatedAt: day.Add(5 * time.Hour)},
	}
	for _, a := range seed {
		require.NoError(t, s.Create(ctx, a))
	}
	assert.True(t, apperr.Is(s.Create(ctx, seed[0]), apperr.CodeConflict))

	tests := []struct {
		name string
		f    Filter
		want []string
	}{
		{"all newest first", Filter{}, []string{"c", "b", "a"}},
		{"by sheet", Filter{MarkingSheetID: "cpr"}, []string{"b", "a"}},
		{"by status", Filter{Status: StatusPassed}, []string{"c", "a"}},
		{"date window", Filter{StartDate: day, EndDate: day.Add(3 * time.Hour)}, []string{"b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.f)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, a := range got {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemoryStoreDeleteBySheet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	at := time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, Assessment{ID: "a", MarkingSheetID: "cpr", CreatedAt: at}))
	require.NoError(t, s.Create(ctx, Assessment{ID: "b", MarkingSheetID: "iv", CreatedAt: at}))
	_, err := s.Acknowledge(ctx, Acknowledgment{ID: "k1", AssessmentID: "a", StudentSignature: "Ana", AcknowledgmentDate: at})
	require.NoError(t, err)
	_, err = s.Acknowledge(ctx, Acknowledgment{ID: "k2", AssessmentID: "b", StudentSignature: "Ben", AcknowledgmentDate: at})
	require.NoError(t, err)

	require.NoError(t, s.DeleteBySheet(ctx, "cpr"))

	_, err = s.Get(ctx, "a")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	acks, err := s.Acknowledgments(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, acks)

	left, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].ID)
	acks, err = s.Acknowledgments(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, acks, 1)
}
