package sheet

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mind-engage/markingsheet/internal/scoring"
)

type Item struct {
	ID                string `json:"id"`
	SheetID           string `json:"marking_sheet_id"`
	Text              string `json:"text"`
	Category          string `json:"category,omitempty"`
	OrderIndex        int    `json:"order_index"`
	Points            int    `json:"points"`
	IsCritical        bool   `json:"is_critical"`
	CriticalCondition string `json:"critical_condition,omitempty"`
}

// Sheet is a marking sheet: a named checklist with a passing score and an
// access password for assessors.
type Sheet struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	PassingScore float64   `json:"passing_score"`
	TotalPoints  int       `json:"total_points"`
	IsEnabled    bool      `json:"is_enabled"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Items        []Item    `json:"checklist_items,omitempty"`
}

// Summary strips the items, for public listings.
func (s Sheet) Summary() Sheet {
	s.Items = nil
	return s
}

// ScoringItems converts the sheet's checklist for scoring.Calculate.
func ScoringItems(s Sheet) []scoring.Item {
	return lo.Map(s.Items, func(it Item, _ int) scoring.Item {
		return scoring.Item{
			ID:                it.ID,
			Text:              it.Text,
			Points:            it.Points,
			IsCritical:        it.IsCritical,
			CriticalCondition: it.CriticalCondition,
		}
	})
}

type ListOpts struct {
	IncludeDisabled bool
}

// Draft is the create/update payload for a sheet.
type Draft struct {
	Name         string      `json:"name" yaml:"name" validate:"required"`
	Description  string      `json:"description" yaml:"description"`
	PassingScore *float64    `json:"passing_score" yaml:"passing_score" validate:"omitempty,gte=0,lte=100"`
	Password     string      `json:"password,omitempty" yaml:"password"`
	IsEnabled    *bool       `json:"is_enabled" yaml:"is_enabled"`
	Items        []DraftItem `json:"checklist_items" yaml:"checklist_items" validate:"dive"`
}

type DraftItem struct {
	// ID keeps an existing item's identity across updates so stored
	// responses still match. Unknown ids are replaced.
	ID                string `json:"id,omitempty" yaml:"id"`
	Text              string `json:"text" yaml:"text"`
	Category          string `json:"category" yaml:"category"`
	Points            int    `json:"points" yaml:"points" validate:"gte=0"`
	IsCritical        bool   `json:"is_critical" yaml:"is_critical"`
	CriticalCondition string `json:"critical_condition" yaml:"critical_condition"`
}

// Normalize trims the name, drops items with blank text and defaults
// missing points to 1.
func (d Draft) Normalize() Draft {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	d.Items = lo.FilterMap(d.Items, func(it DraftItem, _ int) (DraftItem, bool) {
		it.Text = strings.TrimSpace(it.Text)
		if it.Text == "" {
			return it, false
		}
		it.Points = scoring.EffectivePoints(it.Points)
		return it, true
	})
	return d
}

func (d Draft) passingScore() float64 {
	if d.PassingScore == nil {
		return scoring.DefaultPassingScore
	}
	return *d.PassingScore
}

func (d Draft) enabled() bool {
	return d.IsEnabled == nil || *d.IsEnabled
}

// items builds stored items for sheetID, numbering them 1..n in draft order.
// Draft item ids are reused only when present in existing.
func (d Draft) items(sheetID string, existing map[string]bool, newID func() string) []Item {
	seen := map[string]bool{}
	return lo.Map(d.Items, func(it DraftItem, i int) Item {
		id := it.ID
		if !existing[id] || seen[id] {
			id = newID()
		}
		seen[id] = true
		return Item{
			ID:                id,
			SheetID:           sheetID,
			Text:              it.Text,
			Category:          it.Category,
			OrderIndex:        i + 1,
			Points:            it.Points,
			IsCritical:        it.IsCritical,
			CriticalCondition: it.CriticalCondition,
		}
	})
}

func totalPoints(items []Item) int {
	return lo.SumBy(items, func(it Item) int { return it.Points })
}
