package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyUsesModelVerdict(t *testing.T) {
	tests := []struct {
		response string
		want     Intent
	}{
		{`{"intent": "approve"}`, IntentApprove},
		{`{"intent": "reject"}`, IntentReject},
		{`{"intent": "modify"}`, IntentModify},
		{"```json\n{\"intent\": \"approve\"}\n```", IntentApprove},
	}
	for _, tt := range tests {
		inv := &scriptedInvoker{responses: []string{tt.response}}
		c := NewIntentClassifier(inv)
		got := c.Classify(context.Background(), "u1", "whatever the user said")
		assert.Equal(t, tt.want, got, tt.response)
	}
}

func TestClassifyFallsBackToKeywords(t *testing.T) {
	tests := []struct {
		message string
		want    Intent
	}{
		{"yes", IntentApprove},
		{"Looks good, let's go", IntentApprove},
		{"scrap it, start over", IntentReject},
		{"can you swap the squats for leg press?", IntentModify},
		{"make week 1 easier", IntentModify},
	}
	for _, tt := range tests {
		inv := &scriptedInvoker{errs: []error{errors.New("model down")}}
		c := NewIntentClassifier(inv)
		got := c.Classify(context.Background(), "u1", tt.message)
		assert.Equal(t, tt.want, got, tt.message)
	}
}

func TestClassifyUnknownLabelFallsBack(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{`{"intent": "maybe"}`}}
	c := NewIntentClassifier(inv)
	assert.Equal(t, IntentApprove, c.Classify(context.Background(), "u1", "yes"))
}
