package fields

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/springcomet/kabalot/internal/common"
)

// ValidatorDate selects the built-in calendar-checked date matcher. An entry
// carries either a regex or a validator, never both.
const ValidatorDate = "date"

type patternFile struct {
	Patterns []patternEntry `yaml:"patterns"`
}

type patternEntry struct {
	Name      string `yaml:"name"`
	Regex     string `yaml:"regex"`
	Validator string `yaml:"validator"`
}

var patternFileSchema = map[string]any{
	"type":     "object",
	"required": []string{"patterns"},
	"properties": map[string]any{
		"patterns": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":                 "object",
				"required":             []string{"name"},
				"additionalProperties": false,
				"properties": map[string]any{
					"name":      map[string]any{"type": "string", "minLength": 1},
					"regex":     map[string]any{"type": "string", "minLength": 1},
					"validator": map[string]any{"enum": []string{ValidatorDate}},
				},
				"oneOf": []any{
					map[string]any{"required": []string{"regex"}},
					map[string]any{"required": []string{"validator"}},
				},
			},
		},
	},
}

// LoadSet returns DefaultSet when path is empty, otherwise the patterns in the YAML file at path.
//
//	patterns:
//	  - name: sum
//	    regex: 'סה"כ\s*(?P<value>\d+)'
//	  - name: date
//	    validator: date
func LoadSet(path string) (Set, error) {
	if path == "" {
		return DefaultSet(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, "read patterns file", err)
	}
	return ParseSet(b)
}

// ParseSet decodes and validates a YAML pattern file.
func ParseSet(b []byte) (Set, error) {
	var raw any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, common.NewAppError(common.CodeConfig, "parse patterns file", err)
	}
	js, err := json.Marshal(raw)
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, "patterns file is not a json-compatible document", err)
	}
	if err := common.ValidateJSONAgainstSchema(patternFileSchema, js); err != nil {
		return nil, common.NewAppError(common.CodeConfig, "invalid patterns file", err)
	}

	var pf patternFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return nil, common.NewAppError(common.CodeConfig, "parse patterns file", err)
	}
	set := make(Set, 0, len(pf.Patterns))
	seen := map[string]struct{}{}
	for _, e := range pf.Patterns {
		if _, dup := seen[e.Name]; dup {
			return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("duplicate pattern %q", e.Name), common.ErrValidation)
		}
		seen[e.Name] = struct{}{}

		m, err := buildMatcher(e)
		if err != nil {
			return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("pattern %q", e.Name), err)
		}
		set = append(set, Pattern{Name: e.Name, Matcher: m})
	}
	return set, nil
}

func buildMatcher(e patternEntry) (Matcher, error) {
	if e.Validator == ValidatorDate {
		return NewDateMatcher(), nil
	}
	return NewRegexMatcher(e.Regex)
}
