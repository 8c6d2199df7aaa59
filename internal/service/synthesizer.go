package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fitcoach/plan-engine/internal/domain"
	"fitcoach/plan-engine/internal/llm"
)

// PlanSynthesizer turns completed requirements into a structured multi-week
// plan preview via the model.
type PlanSynthesizer interface {
	// Synthesize builds a preview for the requirements. modificationRequest
	// is the user's change request when regenerating an existing preview,
	// empty on first synthesis.
	Synthesize(ctx context.Context, userID string, req domain.Requirements, modificationRequest string) (*domain.PlanPreview, error)
}

// planSynthesizer implements PlanSynthesizer.
type planSynthesizer struct {
	invoker llm.Invoker
}

// NewPlanSynthesizer creates a synthesizer backed by the given invoker.
func NewPlanSynthesizer(invoker llm.Invoker) PlanSynthesizer {
	return &planSynthesizer{invoker: invoker}
}

const synthesizeSystemPrompt = `You are a strength and conditioning coach generating periodized workout plans.
Respond with ONLY a JSON object, no prose, using exactly this structure:
{
  "name": string,
  "description": string,
  "duration_weeks": integer,
  "frequency_per_week": integer,
  "weeks": [
    {
      "number": integer,
      "sessions": [
        {
          "name": string,
          "focus": string,
          "exercises": [
            {"name": string, "sets": integer, "reps": string, "rest_seconds": integer}
          ]
        }
      ]
    }
  ]
}
duration_weeks and frequency_per_week must match the requirements exactly.
Every week must contain exactly frequency_per_week sessions and every exercise
must include sets, reps and rest_seconds. Respect listed injuries and use only
the listed equipment (bodyweight is always available).`

// Synthesize embeds the requirements (and any modification request) in a
// fixed-structure prompt, validates the returned JSON against the
// requirements, and retries once with a repair prompt describing what was
// wrong. A second malformed result is a hard ErrModel failure; the
// orchestrator leaves conversation state untouched in that case.
//
// Synthesis is non-deterministic: two calls with identical requirements may
// legitimately differ.
func (s *planSynthesizer) Synthesize(ctx context.Context, userID string, req domain.Requirements, modificationRequest string) (*domain.PlanPreview, error) {
	userPrompt := buildSynthesisPrompt(req, modificationRequest)

	preview, invokeErr, validationErr := s.invokeAndValidate(ctx, userID, userPrompt, req)
	if invokeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, invokeErr)
	}
	if validationErr != nil {
		repair := userPrompt + fmt.Sprintf("\n\nYour previous plan was rejected: %v. Produce a corrected JSON plan.", validationErr)
		preview, invokeErr, validationErr = s.invokeAndValidate(ctx, userID, repair, req)
		if invokeErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrModel, invokeErr)
		}
		if validationErr != nil {
			return nil, fmt.Errorf("%w: plan failed validation after repair: %v", ErrModel, validationErr)
		}
	}
	return preview, nil
}

func buildSynthesisPrompt(req domain.Requirements, modificationRequest string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", req.Goal)
	fmt.Fprintf(&b, "Duration: %d weeks\n", req.DurationWeeks)
	fmt.Fprintf(&b, "Frequency: %d sessions per week\n", req.FrequencyPerWeek)
	if req.ExperienceLevel != "" {
		fmt.Fprintf(&b, "Experience level: %s\n", req.ExperienceLevel)
	}
	if len(req.Equipment) > 0 {
		fmt.Fprintf(&b, "Available equipment: %s\n", strings.Join(req.Equipment, ", "))
	}
	if len(req.InjuryNotes) > 0 {
		fmt.Fprintf(&b, "Injuries / limitations: %s\n", strings.Join(req.InjuryNotes, "; "))
	}
	if modificationRequest != "" {
		fmt.Fprintf(&b, "\nThe user reviewed a previous version and asked for this change:\n%s\n", modificationRequest)
	}
	return b.String()
}

// invokeAndValidate performs one synthesis round trip. It separates
// transport errors (invokeErr, not worth re-prompting) from structural
// problems (validationErr, candidate for one repair retry).
func (s *planSynthesizer) invokeAndValidate(ctx context.Context, userID, userPrompt string, req domain.Requirements) (*domain.PlanPreview, error, error) {
	content, err := s.invoker.Invoke(ctx, llm.Request{
		Endpoint: llm.EndpointSynthesize,
		UserID:   userID,
		Messages: []llm.Message{
			{Role: "system", Content: synthesizeSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return nil, err, nil
	}

	raw := llm.ExtractJSON(content)
	if raw == "" {
		return nil, nil, fmt.Errorf("no JSON object in model reply")
	}

	var wire planWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, nil, fmt.Errorf("invalid plan JSON: %w", err)
	}

	preview := wire.toPreview()
	if err := validatePreview(preview, req); err != nil {
		return nil, nil, err
	}
	return preview, nil, nil
}

// planWire mirrors the fixed-key JSON structure requested from the model.
type planWire struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	DurationWeeks    int    `json:"duration_weeks"`
	FrequencyPerWeek int    `json:"frequency_per_week"`
	Weeks            []struct {
		Number   int `json:"number"`
		Sessions []struct {
			Name      string `json:"name"`
			Focus     string `json:"focus"`
			Exercises []struct {
				Name        string `json:"name"`
				Sets        int    `json:"sets"`
				Reps        string `json:"reps"`
				RestSeconds int    `json:"rest_seconds"`
			} `json:"exercises"`
		} `json:"sessions"`
	} `json:"weeks"`
}

func (w planWire) toPreview() *domain.PlanPreview {
	preview := &domain.PlanPreview{
		Name:             w.Name,
		Description:      w.Description,
		DurationWeeks:    w.DurationWeeks,
		FrequencyPerWeek: w.FrequencyPerWeek,
	}
	for _, wk := range w.Weeks {
		week := domain.PlanWeek{Number: wk.Number}
		for _, sess := range wk.Sessions {
			session := domain.PlanSession{Name: sess.Name, Focus: sess.Focus}
			for _, ex := range sess.Exercises {
				session.Exercises = append(session.Exercises, domain.PlanExercise{
					Name:        ex.Name,
					Sets:        ex.Sets,
					Reps:        ex.Reps,
					RestSeconds: ex.RestSeconds,
				})
			}
			week.Sessions = append(week.Sessions, session)
		}
		preview.Weeks = append(preview.Weeks, week)
	}
	return preview
}

// validatePreview checks the structural invariants before the preview is
// shown to the user: duration and frequency must match the requirements,
// every week must carry the agreed number of sessions, and every exercise
// must include sets, reps and rest.
func validatePreview(p *domain.PlanPreview, req domain.Requirements) error {
	if p.Name == "" {
		return fmt.Errorf("plan name is empty")
	}
	if p.DurationWeeks != req.DurationWeeks {
		return fmt.Errorf("duration_weeks is %d, requirements say %d", p.DurationWeeks, req.DurationWeeks)
	}
	if p.FrequencyPerWeek != req.FrequencyPerWeek {
		return fmt.Errorf("frequency_per_week is %d, requirements say %d", p.FrequencyPerWeek, req.FrequencyPerWeek)
	}
	if len(p.Weeks) != req.DurationWeeks {
		return fmt.Errorf("plan has %d weeks, requirements say %d", len(p.Weeks), req.DurationWeeks)
	}
	for _, week := range p.Weeks {
		if len(week.Sessions) != req.FrequencyPerWeek {
			return fmt.Errorf("week %d has %d sessions, requirements say %d", week.Number, len(week.Sessions), req.FrequencyPerWeek)
		}
		for _, session := range week.Sessions {
			if len(session.Exercises) == 0 {
				return fmt.Errorf("week %d session %q has no exercises", week.Number, session.Name)
			}
			for _, ex := range session.Exercises {
				if ex.Name == "" {
					return fmt.Errorf("week %d session %q has an unnamed exercise", week.Number, session.Name)
				}
				if ex.Sets <= 0 || ex.Reps == "" || ex.RestSeconds < 0 {
					return fmt.Errorf("exercise %q is missing sets, reps or rest", ex.Name)
				}
			}
		}
	}
	return nil
}
