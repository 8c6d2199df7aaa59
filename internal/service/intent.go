package service

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"fitcoach/plan-engine/internal/llm"
)

// Intent is the closed set of decisions a user can make about a preview.
type Intent string

const (
	IntentApprove Intent = "approve"
	IntentModify  Intent = "modify"
	IntentReject  Intent = "reject"
)

// IntentClassifier decides whether a reply to a plan preview approves,
// rejects, or asks to modify it.
type IntentClassifier interface {
	Classify(ctx context.Context, userID, message string) Intent
}

// intentClassifier asks the model for a constrained single-label
// classification and falls back to a keyword heuristic when the model is
// unavailable. A wrong guess is recoverable either way: modify regenerates
// the preview and approve/reject are explicit the next turn.
type intentClassifier struct {
	invoker llm.Invoker
}

// NewIntentClassifier creates a classifier backed by the given invoker.
func NewIntentClassifier(invoker llm.Invoker) IntentClassifier {
	return &intentClassifier{invoker: invoker}
}

const classifySystemPrompt = `The user was shown a workout plan and replied.
Classify the reply as exactly one of: "approve" (accept the plan as is),
"reject" (discard it and start over), or "modify" (request any change).
Respond with ONLY a JSON object: {"intent": "approve"|"reject"|"modify"}.`

func (c *intentClassifier) Classify(ctx context.Context, userID, message string) Intent {
	content, err := c.invoker.Invoke(ctx, llm.Request{
		Endpoint: llm.EndpointClassify,
		UserID:   userID,
		Messages: []llm.Message{
			{Role: "system", Content: classifySystemPrompt},
			{Role: "user", Content: message},
		},
	})
	if err == nil {
		var parsed struct {
			Intent string `json:"intent"`
		}
		if raw := llm.ExtractJSON(content); raw != "" {
			if json.Unmarshal([]byte(raw), &parsed) == nil {
				switch Intent(strings.ToLower(strings.TrimSpace(parsed.Intent))) {
				case IntentApprove:
					return IntentApprove
				case IntentReject:
					return IntentReject
				case IntentModify:
					return IntentModify
				}
			}
		}
	} else {
		log.Printf("intent classification failed, using keyword fallback: %v", err)
	}

	return keywordIntent(message)
}

// keywordIntent is the legacy string-matching heuristic, kept only as the
// fallback when classification itself fails.
func keywordIntent(message string) Intent {
	msg := strings.ToLower(strings.TrimSpace(message))

	approvals := []string{"yes", "yep", "yeah", "sure", "ok", "okay", "approve", "approved", "looks good", "lgtm", "sounds good", "perfect", "let's do it", "lets do it", "go ahead", "confirm"}
	for _, a := range approvals {
		if msg == a || strings.HasPrefix(msg, a+" ") || strings.HasPrefix(msg, a+",") ||
			strings.HasPrefix(msg, a+".") || strings.HasPrefix(msg, a+"!") {
			return IntentApprove
		}
	}

	rejections := []string{"no thanks", "start over", "scrap it", "cancel", "reject", "forget it", "discard"}
	for _, r := range rejections {
		if strings.Contains(msg, r) {
			return IntentReject
		}
	}

	// Any other free text is treated as a change request.
	return IntentModify
}
