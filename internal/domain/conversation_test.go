package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissingFieldsFollowsMandatoryOrder(t *testing.T) {
	assert.Equal(t, MandatoryFields, Requirements{}.MissingFields())

	r := Requirements{Goal: "muscle", DurationWeeks: 12}
	assert.Equal(t, []string{"frequency_per_week"}, r.MissingFields())

	r.FrequencyPerWeek = 4
	assert.Empty(t, r.MissingFields())
}

func TestCompleteEnforcesBounds(t *testing.T) {
	r := Requirements{Goal: "muscle", DurationWeeks: 12, FrequencyPerWeek: 4}
	assert.True(t, r.Complete())

	r.DurationWeeks = 53
	assert.False(t, r.Complete())

	r.DurationWeeks = 12
	r.FrequencyPerWeek = 8
	assert.False(t, r.Complete())
}

func TestAppendTurnOrdersHistory(t *testing.T) {
	var c Conversation
	c.AppendTurn(RoleUser, "hello")
	c.AppendTurn(RoleAssistant, "hi")

	assert.Len(t, c.Turns, 2)
	assert.Equal(t, RoleUser, c.Turns[0].Role)
	assert.Equal(t, "hi", c.Turns[1].Text)
}
