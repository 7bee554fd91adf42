package scoring

import (
	"errors"
	"math"

	"github.com/tidwall/gjson"
)

// ErrInvalidInput is the only failure of the scoring contract: the
// checklist items were not supplied as a list.
var ErrInvalidInput = errors.New("checklistItems must be an array")

// Input is a decoded scoring request.
type Input struct {
	Items        []Item    `json:"checklist_items"`
	Responses    Responses `json:"responses"`
	PassingScore float64   `json:"passing_score"`
}

// Decode reads a scoring request leniently:
//
//	{"checklist_items": [...], "responses": {"id": true}, "passing_score": 70}
//
// Only a non-array checklist_items is rejected. Malformed items are
// dropped, a malformed responses value becomes an empty map and a missing
// or non-numeric passing score becomes DefaultPassingScore.
func Decode(raw []byte) (Input, error) {
	if !gjson.ValidBytes(raw) {
		return Input{}, ErrInvalidInput
	}
	doc := gjson.ParseBytes(raw)

	itemsRes := doc.Get("checklist_items")
	if !itemsRes.IsArray() {
		return Input{}, ErrInvalidInput
	}

	in := Input{
		Items:        decodeItems(itemsRes),
		Responses:    decodeResponses(doc.Get("responses")),
		PassingScore: DefaultPassingScore,
	}
	if ps := doc.Get("passing_score"); ps.Type == gjson.Number {
		in.PassingScore = NormalizePassingScore(ps.Float())
	}
	return in, nil
}

// CalculateJSON decodes raw and scores it.
func CalculateJSON(raw []byte) (Result, error) {
	in, err := Decode(raw)
	if err != nil {
		return Result{}, err
	}
	return Calculate(in.Items, in.Responses, in.PassingScore), nil
}

func decodeItems(arr gjson.Result) []Item {
	out := make([]Item, 0, len(arr.Array()))
	arr.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		id := v.Get("id")
		if id.Type != gjson.String && id.Type != gjson.Number {
			return true
		}
		if id.String() == "" {
			return true
		}
		out = append(out, Item{
			ID:                id.String(),
			Text:              stringOf(v.Get("text")),
			Points:            decodePoints(v.Get("points")),
			IsCritical:        v.Get("is_critical").Type == gjson.True,
			CriticalCondition: stringOf(v.Get("critical_condition")),
		})
		return true
	})
	return out
}

func decodeResponses(v gjson.Result) Responses {
	out := Responses{}
	if !v.IsObject() {
		return out
	}
	v.ForEach(func(k, val gjson.Result) bool {
		out[k.String()] = val.Type == gjson.True
		return true
	})
	return out
}

func decodePoints(v gjson.Result) int {
	if v.Type != gjson.Number {
		return 1
	}
	f := v.Float()
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 1 || f != math.Trunc(f) {
		return 1
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

func stringOf(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.Str
	}
	return ""
}
