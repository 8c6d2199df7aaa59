package service

import (
	"context"
	"errors"
	"testing"

	"fitcoach/plan-engine/internal/domain"
	"fitcoach/plan-engine/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedInvoker returns queued responses in order and records requests.
type scriptedInvoker struct {
	responses []string
	errs      []error
	requests  []llm.Request
}

func (s *scriptedInvoker) Invoke(_ context.Context, req llm.Request) (string, error) {
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("scriptedInvoker: no response queued")
}

func TestExtractMergesNewFields(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{
		`{"goal": "muscle", "duration_weeks": 12}`,
	}}
	ex := NewRequirementExtractor(inv)

	merged, missing, err := ex.Extract(context.Background(), "u1", domain.Requirements{}, "I want to build muscle over 12 weeks")
	require.NoError(t, err)
	assert.Equal(t, "muscle", merged.Goal)
	assert.Equal(t, 12, merged.DurationWeeks)
	assert.Equal(t, []string{"frequency_per_week"}, missing)
}

func TestExtractMissingFieldDetection(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{`{}`}}
	ex := NewRequirementExtractor(inv)

	existing := domain.Requirements{Goal: "muscle", DurationWeeks: 12, ExperienceLevel: "beginner"}
	_, missing, err := ex.Extract(context.Background(), "u1", existing, "anything else?")
	require.NoError(t, err)
	assert.Equal(t, []string{"frequency_per_week"}, missing)
}

func TestExtractNeverRegressesGatheredFields(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{
		`{"frequency_per_week": 4, "goal": null, "duration_weeks": null}`,
	}}
	ex := NewRequirementExtractor(inv)

	existing := domain.Requirements{
		Goal:          "muscle",
		DurationWeeks: 12,
		Equipment:     []string{"dumbbells"},
	}
	merged, _, err := ex.Extract(context.Background(), "u1", existing, "4 days a week")
	require.NoError(t, err)

	assert.Equal(t, "muscle", merged.Goal, "field set earlier must survive a turn not mentioning it")
	assert.Equal(t, 12, merged.DurationWeeks)
	assert.Equal(t, 4, merged.FrequencyPerWeek)
	assert.Equal(t, []string{"dumbbells"}, merged.Equipment)
}

func TestExtractClampsNumericFields(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{
		`{"duration_weeks": 200, "frequency_per_week": 9}`,
	}}
	ex := NewRequirementExtractor(inv)

	merged, _, err := ex.Extract(context.Background(), "u1", domain.Requirements{}, "200 weeks, 9 days a week")
	require.NoError(t, err)
	assert.Equal(t, domain.MaxDurationWeeks, merged.DurationWeeks)
	assert.Equal(t, domain.MaxFrequencyPerWeek, merged.FrequencyPerWeek)
}

func TestExtractRepairsMalformedOutputOnce(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{
		"Sure! Your goal is building muscle.", // no JSON
		`{"goal": "muscle"}`,
	}}
	ex := NewRequirementExtractor(inv)

	merged, _, err := ex.Extract(context.Background(), "u1", domain.Requirements{}, "muscle please")
	require.NoError(t, err)
	assert.Equal(t, "muscle", merged.Goal)
	assert.Len(t, inv.requests, 2, "expected one corrective re-prompt")
}

func TestExtractSurfacesClarificationAfterRepairFails(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{
		"not json",
		"still not json",
	}}
	ex := NewRequirementExtractor(inv)

	existing := domain.Requirements{Goal: "muscle"}
	merged, _, err := ex.Extract(context.Background(), "u1", existing, "???")
	require.ErrorIs(t, err, ErrUserInput)
	assert.Equal(t, existing, merged, "failed extraction must not touch existing requirements")
}

func TestExtractModelErrorPropagates(t *testing.T) {
	inv := &scriptedInvoker{errs: []error{llm.NewTransientError(errors.New("timeout"))}}
	ex := NewRequirementExtractor(inv)

	_, _, err := ex.Extract(context.Background(), "u1", domain.Requirements{}, "hello")
	require.ErrorIs(t, err, ErrModel)
}

func TestExtractEquipmentAppendsWithoutDuplicates(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{
		`{"equipment": ["Dumbbells", "barbell"]}`,
	}}
	ex := NewRequirementExtractor(inv)

	existing := domain.Requirements{Equipment: []string{"dumbbells"}}
	merged, _, err := ex.Extract(context.Background(), "u1", existing, "I also have a barbell")
	require.NoError(t, err)
	assert.Equal(t, []string{"dumbbells", "barbell"}, merged.Equipment)
}
