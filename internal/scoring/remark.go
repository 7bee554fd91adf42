package scoring

import (
	"math"
	"strconv"
	"strings"
)

type RemarkKind string

const (
	RemarkPassed          RemarkKind = "passed"
	RemarkBelowPassing    RemarkKind = "below_passing"
	RemarkCriticalFailure RemarkKind = "critical_failure"
)

// Remark is the structured form of Result.Remarks. String renders the
// prose stored with assessments and shown in exports.
type Remark struct {
	Kind             RemarkKind `json:"kind"`
	CriticalFailures []string   `json:"critical_failures,omitempty"`
	Percentage       float64    `json:"percentage"`
	Required         float64    `json:"required"`
}

func (r Remark) Status() Status {
	if r.Kind == RemarkPassed {
		return StatusPassed
	}
	return StatusFailed
}

func (r Remark) String() string {
	switch r.Kind {
	case RemarkCriticalFailure:
		return "Critical failure: " + strings.Join(r.CriticalFailures, ", ")
	case RemarkPassed:
		return "Excellent performance! Score: " + FormatFixed1(r.Percentage) + "%"
	default:
		return "Below passing score. Required: " + FormatNumber(r.Required) +
			"%, Achieved: " + FormatFixed1(r.Percentage) + "%"
	}
}

// FormatFixed1 formats v with one decimal. Exact binary ties round away
// from zero, matching Number.prototype.toFixed; everything else rounds to
// the nearest representation.
func FormatFixed1(v float64) string {
	scaled := v * 10
	if frac := math.Abs(scaled - math.Trunc(scaled)); frac == 0.5 {
		// v*10 is exact here only when v is a multiple of 0.05 with an
		// exact binary form (x.25, x.75).
		if v*4 == math.Trunc(v*4) {
			if v >= 0 {
				return strconv.FormatFloat(math.Ceil(scaled)/10, 'f', 1, 64)
			}
			return strconv.FormatFloat(math.Floor(scaled)/10, 'f', 1, 64)
		}
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// FormatNumber prints the shortest decimal that round-trips: 70, 72.5.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
