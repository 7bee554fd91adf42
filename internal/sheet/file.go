package sheet

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/mind-engage/markingsheet/internal/scoring"
)

// LoadFile reads a sheet definition from a YAML file. JSON is valid YAML,
// so .json files load too.
func LoadFile(path string) (Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Draft{}, fmt.Errorf("sheet.LoadFile: %w", err)
	}
	if err := ValidateDefinition(data); err != nil {
		return Draft{}, fmt.Errorf("sheet.LoadFile: %q: %w", path, err)
	}
	var d Draft
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Draft{}, fmt.Errorf("sheet.LoadFile: parse %q: %w", path, err)
	}
	return d.Normalize(), nil
}

//go:embed schema.json
var definitionSchema string

var definitionSchemaLoader = gojsonschema.NewStringLoader(definitionSchema)

// ValidateDefinition checks a YAML or JSON sheet definition against the
// definition schema.
func ValidateDefinition(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	res, err := gojsonschema.Validate(definitionSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if !res.Valid() {
		msgs := lo.Map(res.Errors(), func(e gojsonschema.ResultError, _ int) string { return e.String() })
		return fmt.Errorf("invalid definition: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// ScoringItems converts draft items for offline scoring. Items without an
// id are keyed by their 1-based position.
func (d Draft) ScoringItems() []scoring.Item {
	return lo.Map(d.Items, func(it DraftItem, i int) scoring.Item {
		id := it.ID
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		return scoring.Item{
			ID:                id,
			Text:              it.Text,
			Points:            it.Points,
			IsCritical:        it.IsCritical,
			CriticalCondition: it.CriticalCondition,
		}
	})
}

// PassingScoreOrDefault is the draft's passing score, DefaultPassingScore when unset.
func (d Draft) PassingScoreOrDefault() float64 { return d.passingScore() }
