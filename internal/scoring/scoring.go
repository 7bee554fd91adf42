package scoring

import (
	"math"
)

// DefaultPassingScore replaces passing scores outside [0,100].
const DefaultPassingScore = 70.0

// Item is the minimal view of a checklist item needed for scoring.
type Item struct {
	ID                string `json:"id"`
	Text              string `json:"text"`
	Points            int    `json:"points"`
	IsCritical        bool   `json:"is_critical"`
	CriticalCondition string `json:"critical_condition,omitempty"` // display only
}

// Responses maps checklist item id -> checked.
type Responses map[string]bool

type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPassed, StatusFailed:
		return true
	}
	return false
}

// Result is the outcome of scoring one filled-out checklist.
type Result struct {
	TotalScore       int     `json:"total_score"`
	MaxPossibleScore int     `json:"max_possible_score"`
	PercentageScore  float64 `json:"percentage_score"`
	Status           Status  `json:"status"`
	Remarks          string  `json:"remarks"`
	Remark           Remark  `json:"remark"`
}

// Calculate scores responses against items. Items without an id are
// skipped, non-positive points count as 1 and an invalid passing score is
// replaced by DefaultPassingScore. An unchecked critical item fails the
// assessment whatever the percentage.
func Calculate(items []Item, responses Responses, passingScore float64) Result {
	passingScore = NormalizePassingScore(passingScore)

	var (
		total, max int
		critical   []string
	)
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		pts := EffectivePoints(it.Points)
		max += pts

		if responses[it.ID] {
			total += pts
		} else if it.IsCritical {
			critical = append(critical, it.label())
		}
	}

	pct := 0.0
	if max > 0 {
		pct = Round2(float64(total) / float64(max) * 100)
	}

	var rm Remark
	switch {
	case len(critical) > 0:
		rm = Remark{Kind: RemarkCriticalFailure, CriticalFailures: critical, Percentage: pct, Required: passingScore}
	case pct >= passingScore:
		rm = Remark{Kind: RemarkPassed, Percentage: pct, Required: passingScore}
	default:
		rm = Remark{Kind: RemarkBelowPassing, Percentage: pct, Required: passingScore}
	}

	return Result{
		TotalScore:       total,
		MaxPossibleScore: max,
		PercentageScore:  pct,
		Status:           rm.Status(),
		Remarks:          rm.String(),
		Remark:           rm,
	}
}

// NormalizePassingScore returns p when it is a finite number in [0,100],
// DefaultPassingScore otherwise.
func NormalizePassingScore(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 100 {
		return DefaultPassingScore
	}
	return p
}

// EffectivePoints is the weight an item contributes to the totals.
func EffectivePoints(p int) int {
	if p <= 0 {
		return 1
	}
	return p
}

// Round2 rounds half up to two decimal places.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

func (it Item) label() string {
	if it.Text == "" {
		return "Item " + it.ID
	}
	return it.Text
}
