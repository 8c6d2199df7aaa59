package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fitcoach/plan-engine/internal/domain"
	"fitcoach/plan-engine/internal/llm"
)

// RequirementExtractor merges a free-text turn into the structured
// requirements via the model.
type RequirementExtractor interface {
	Extract(ctx context.Context, userID string, existing domain.Requirements, message string) (domain.Requirements, []string, error)
}

// requirementExtractor implements RequirementExtractor.
type requirementExtractor struct {
	invoker llm.Invoker
}

// NewRequirementExtractor creates an extractor backed by the given invoker.
func NewRequirementExtractor(invoker llm.Invoker) RequirementExtractor {
	return &requirementExtractor{invoker: invoker}
}

const extractSystemPrompt = `You extract workout-plan requirements from user messages.
Respond with ONLY a JSON object, no prose, using exactly these keys:
{
  "goal": string or null,
  "duration_weeks": integer or null,
  "frequency_per_week": integer or null,
  "equipment": array of strings or null,
  "injury_notes": array of strings or null,
  "experience_level": string or null
}
Include a key only when the latest message states or clearly implies a value for it.
Use null (or omit the key) for anything the message does not mention. Never guess.`

// extractedFields mirrors the schema the model is instructed to produce.
// Pointers distinguish "not mentioned" from explicit values.
type extractedFields struct {
	Goal             *string  `json:"goal"`
	DurationWeeks    *int     `json:"duration_weeks"`
	FrequencyPerWeek *int     `json:"frequency_per_week"`
	Equipment        []string `json:"equipment"`
	InjuryNotes      []string `json:"injury_notes"`
	ExperienceLevel  *string  `json:"experience_level"`
}

// Extract prompts the model with the existing requirements plus the new
// message, parses the strict-schema JSON reply, and merges it monotonically:
// explicit new values overwrite, absent fields keep their prior values. On a
// parse failure it re-prompts once with a corrective instruction; if that
// also fails it surfaces ErrUserInput so the orchestrator asks the user to
// rephrase without committing the turn.
func (e *requirementExtractor) Extract(ctx context.Context, userID string, existing domain.Requirements, message string) (domain.Requirements, []string, error) {
	if strings.TrimSpace(message) == "" {
		return existing, existing.MissingFields(), fmt.Errorf("%w: empty message", ErrUserInput)
	}

	existingJSON, _ := json.Marshal(existing)
	userPrompt := fmt.Sprintf("Known requirements so far:\n%s\n\nLatest user message:\n%s", existingJSON, message)

	fields, err := e.invokeAndParse(ctx, userID, extractSystemPrompt, userPrompt)
	if err != nil {
		if llm.IsFatal(err) || !isParseError(err) {
			return existing, existing.MissingFields(), fmt.Errorf("%w: %v", ErrModel, err)
		}
		// One corrective re-prompt for malformed output.
		repair := userPrompt + "\n\nYour previous reply was not valid JSON. Reply with only the JSON object described in the instructions."
		fields, err = e.invokeAndParse(ctx, userID, extractSystemPrompt, repair)
		if err != nil {
			return existing, existing.MissingFields(), fmt.Errorf("%w: %v", ErrUserInput, err)
		}
	}

	merged := mergeRequirements(existing, fields)
	return merged, merged.MissingFields(), nil
}

// parseError tags malformed model output so the caller can tell it apart
// from transport failures.
type parseError struct{ err error }

func (p *parseError) Error() string { return p.err.Error() }
func (p *parseError) Unwrap() error { return p.err }

func isParseError(err error) bool {
	var pe *parseError
	return errors.As(err, &pe)
}

func (e *requirementExtractor) invokeAndParse(ctx context.Context, userID, system, user string) (extractedFields, error) {
	var fields extractedFields

	content, err := e.invoker.Invoke(ctx, llm.Request{
		Endpoint: llm.EndpointExtract,
		UserID:   userID,
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return fields, err
	}

	raw := llm.ExtractJSON(content)
	if raw == "" {
		return fields, &parseError{fmt.Errorf("no JSON object in model reply")}
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return fields, &parseError{fmt.Errorf("invalid requirements JSON: %w", err)}
	}
	return fields, nil
}

// mergeRequirements applies extracted fields on top of existing ones.
// A field the model omitted (nil) never regresses previously gathered
// information. Numeric fields are clamped to supported bounds; free-text
// values (goals, equipment) pass through unvalidated.
func mergeRequirements(existing domain.Requirements, fields extractedFields) domain.Requirements {
	merged := existing

	if fields.Goal != nil && *fields.Goal != "" {
		merged.Goal = *fields.Goal
	}
	if fields.DurationWeeks != nil && *fields.DurationWeeks != 0 {
		merged.DurationWeeks = clamp(*fields.DurationWeeks, domain.MinDurationWeeks, domain.MaxDurationWeeks)
	}
	if fields.FrequencyPerWeek != nil && *fields.FrequencyPerWeek != 0 {
		merged.FrequencyPerWeek = clamp(*fields.FrequencyPerWeek, domain.MinFrequencyPerWeek, domain.MaxFrequencyPerWeek)
	}
	if len(fields.Equipment) > 0 {
		merged.Equipment = appendMissing(merged.Equipment, fields.Equipment)
	}
	if len(fields.InjuryNotes) > 0 {
		merged.InjuryNotes = appendMissing(merged.InjuryNotes, fields.InjuryNotes)
	}
	if fields.ExperienceLevel != nil && *fields.ExperienceLevel != "" {
		merged.ExperienceLevel = *fields.ExperienceLevel
	}

	return merged
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// appendMissing adds values not already present (case-insensitively).
func appendMissing(existing, add []string) []string {
	out := existing
	for _, v := range add {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		dup := false
		for _, have := range out {
			if strings.EqualFold(have, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}
