// Package validation checks the structure of model replies before they are trusted.
package validation

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/xeipuuv/gojsonschema"

	"github.com/spigell/jojun/internal/ai"
)

const (
	CategoryCount = 5
	MinScore      = 1
	MaxScore      = 100
)

// RequiredKeys lists the competency reply keys in canonical order.
var RequiredKeys = []string{"categories", "job_scores", "user_scores", "fit_score", "overall_comment"}

//go:embed competency.schema.json
var competencySchema string

var schema = mustSchema(competencySchema)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile embedded schema: %v", err))
	}
	return s
}

// ValidateCompetency parses raw as a competency reply. Missing keys and
// non-JSON text are always rejected. Range and length problems are attached
// as warnings, or rejected when strict is set.
func ValidateCompetency(raw string, strict bool) (*ai.CompetencyResult, error) {
	cleaned := ExtractJSON(raw)
	if cleaned == "" {
		return nil, &MalformedResponseError{Message: "empty response"}
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, &MalformedResponseError{Message: "not a JSON object", Cause: err}
	}
	if doc == nil {
		return nil, &MalformedResponseError{Message: "not a JSON object"}
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, &MalformedResponseError{Message: "schema validation", Cause: err}
	}
	if !res.Valid() {
		if missing := missingKeys(res.Errors()); len(missing) > 0 {
			return nil, &IncompleteResponseError{Missing: missing}
		}
		descs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			descs = append(descs, e.String())
		}
		return nil, &MalformedResponseError{Message: strings.Join(descs, "; ")}
	}

	result := &ai.CompetencyResult{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           result,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(doc); err != nil {
		return nil, &MalformedResponseError{Message: "unexpected field types", Cause: err}
	}

	problems := Consistency(result)
	if len(problems) > 0 && strict {
		return nil, &InconsistentResponseError{Problems: problems}
	}
	result.Warnings = problems

	return result, nil
}

// Consistency reports count, length and range problems of r.
func Consistency(r *ai.CompetencyResult) []string {
	var problems []string

	if len(r.Categories) != CategoryCount {
		problems = append(problems, fmt.Sprintf("expected %d categories, got %d", CategoryCount, len(r.Categories)))
	}
	if len(r.JobScores) != len(r.Categories) {
		problems = append(problems, fmt.Sprintf("job_scores has %d values for %d categories", len(r.JobScores), len(r.Categories)))
	}
	if len(r.UserScores) != len(r.Categories) {
		problems = append(problems, fmt.Sprintf("user_scores has %d values for %d categories", len(r.UserScores), len(r.Categories)))
	}

	problems = append(problems, outOfRange("job_scores", r.JobScores)...)
	problems = append(problems, outOfRange("user_scores", r.UserScores)...)
	if !inRange(r.FitScore) {
		problems = append(problems, fmt.Sprintf("fit_score %d is outside [%d,%d]", r.FitScore, MinScore, MaxScore))
	}

	return problems
}

// ExtractJSON strips surrounding whitespace and markdown code fences.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func missingKeys(errs []gojsonschema.ResultError) []string {
	found := map[string]bool{}
	for _, e := range errs {
		if e.Type() != "required" {
			continue
		}
		if prop, ok := e.Details()["property"].(string); ok {
			found[prop] = true
		}
	}

	missing := make([]string, 0, len(found))
	for _, key := range RequiredKeys {
		if found[key] {
			missing = append(missing, key)
		}
	}
	// Keys the schema requires but RequiredKeys does not know about.
	for key := range found {
		if !slices.Contains(RequiredKeys, key) {
			missing = append(missing, key)
		}
	}
	return missing
}

func outOfRange(name string, scores []int) []string {
	var problems []string
	for i, s := range scores {
		if !inRange(s) {
			problems = append(problems, fmt.Sprintf("%s[%d] %d is outside [%d,%d]", name, i, s, MinScore, MaxScore))
		}
	}
	return problems
}

func inRange(score int) bool {
	return score >= MinScore && score <= MaxScore
}
