package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"fitcoach/plan-engine/internal/domain"
	"fitcoach/plan-engine/internal/repository"
	"fitcoach/plan-engine/internal/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TurnResult is what one processed turn reports back to the API layer.
type TurnResult struct {
	ConversationID string
	Stage          domain.ConversationState
	Reply          string
	MissingFields  []string
	PlanPreview    *domain.PlanPreview
	PlanID         string
}

// ConversationOrchestrator drives the turn-based state machine across the
// extractor, synthesizer, reconciler and persister.
type ConversationOrchestrator interface {
	// HandleTurn processes one user message. An empty or unknown
	// conversationID starts a new conversation in the gathering state.
	HandleTurn(ctx context.Context, userID, conversationID, message string) (*TurnResult, error)

	// GetConversation returns the stored state for re-rendering after a
	// reconnect. Unlike HandleTurn it never creates anything.
	GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)
}

// conversationOrchestrator implements ConversationOrchestrator.
type conversationOrchestrator struct {
	conversations repository.ConversationRepository
	extractor     RequirementExtractor
	synthesizer   PlanSynthesizer
	classifier    IntentClassifier
	reconciler    ExerciseReconciler
	persister     PlanPersister
	archive       storage.PlanArchive // optional, may be nil
	locks         *conversationLocks
}

// NewConversationOrchestrator wires the orchestrator. archive may be nil
// when plan snapshot archival is not configured.
func NewConversationOrchestrator(
	conversations repository.ConversationRepository,
	extractor RequirementExtractor,
	synthesizer PlanSynthesizer,
	classifier IntentClassifier,
	reconciler ExerciseReconciler,
	persister PlanPersister,
	archive storage.PlanArchive,
) ConversationOrchestrator {
	return &conversationOrchestrator{
		conversations: conversations,
		extractor:     extractor,
		synthesizer:   synthesizer,
		classifier:    classifier,
		reconciler:    reconciler,
		persister:     persister,
		archive:       archive,
		locks:         newConversationLocks(),
	}
}

const retryReply = "Sorry, something went wrong on my end while working on that. Please send your last message again."

func (o *conversationOrchestrator) HandleTurn(ctx context.Context, userID, conversationID, message string) (*TurnResult, error) {
	if userID == "" {
		return nil, errors.New("user ID is required")
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrUserInput)
	}

	conv, err := o.loadOrCreate(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	unlock := o.locks.Lock(conv.ID.Hex())
	defer unlock()

	// Reload under the lock: another turn may have committed while this one
	// queued behind it.
	conv, err = o.conversations.GetByID(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv.UserID != userID {
		return nil, ErrConversationNotFound
	}

	// No lock is held across what follows in the sense that matters: the
	// repository copy stays untouched until the final save, so a failed
	// turn leaves the stored state exactly as it was.
	baseVersion := conv.Version
	conv.AppendTurn(domain.RoleUser, message)

	var result *TurnResult
	switch conv.State {
	case domain.StateGathering:
		result, err = o.handleGathering(ctx, conv, message)
	case domain.StateAwaitingApproval:
		result, err = o.handleAwaitingApproval(ctx, conv, message)
	case domain.StateComplete:
		// Terminal: idempotent echo of the approval record, no writes.
		return &TurnResult{
			ConversationID: conv.ID.Hex(),
			Stage:          domain.StateComplete,
			Reply:          "Your plan is already saved. Start a new conversation to build another one.",
			PlanID:         conv.PlanID,
		}, nil
	default:
		return nil, fmt.Errorf("conversation %s in unknown state %q", conv.ID.Hex(), conv.State)
	}
	if err != nil {
		// The turn was not committed; the caller can safely resend it.
		return nil, err
	}

	conv.AppendTurn(domain.RoleAssistant, result.Reply)
	// The save runs detached from the caller: once remote persistence has
	// happened the commit must land even if the client disconnected.
	if err := o.conversations.Save(context.WithoutCancel(ctx), conv, baseVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			// Duplicate delivery of a turn that already committed. Re-read
			// and answer from the stored state instead of applying twice.
			return o.replayStoredState(ctx, conv.ID)
		}
		return nil, fmt.Errorf("save conversation: %w", err)
	}

	return result, nil
}

func (o *conversationOrchestrator) GetConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	id, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, ErrConversationNotFound
	}
	conv, err := o.conversations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// loadOrCreate resolves the conversation for a turn. A missing, malformed or
// unknown id means a fresh conversation in the gathering state.
func (o *conversationOrchestrator) loadOrCreate(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	if conversationID != "" {
		id, err := primitive.ObjectIDFromHex(conversationID)
		if err == nil {
			conv, err := o.conversations.GetByID(ctx, id)
			if err == nil && conv.UserID == userID {
				return conv, nil
			}
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("load conversation: %w", err)
			}
		}
	}

	conv := &domain.Conversation{
		UserID: userID,
		State:  domain.StateGathering,
	}
	if _, err := o.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// handleGathering merges the message into the requirements and, once
// nothing mandatory is missing, synthesizes the first preview.
func (o *conversationOrchestrator) handleGathering(ctx context.Context, conv *domain.Conversation, message string) (*TurnResult, error) {
	merged, missing, err := o.extractor.Extract(ctx, conv.UserID, conv.Requirements, message)
	if err != nil {
		return nil, err
	}
	conv.Requirements = merged

	if len(missing) > 0 || !merged.Complete() {
		return &TurnResult{
			ConversationID: conv.ID.Hex(),
			Stage:          domain.StateGathering,
			Reply:          missingFieldsReply(missing),
			MissingFields:  missing,
		}, nil
	}

	preview, err := o.synthesizer.Synthesize(ctx, conv.UserID, merged, "")
	if err != nil {
		return nil, err
	}

	conv.Preview = preview
	conv.State = domain.StateAwaitingApproval
	return &TurnResult{
		ConversationID: conv.ID.Hex(),
		Stage:          domain.StateAwaitingApproval,
		Reply:          previewReply(preview),
		PlanPreview:    preview,
	}, nil
}

// handleAwaitingApproval classifies the message and either persists the
// plan, regenerates the preview, or returns to gathering.
func (o *conversationOrchestrator) handleAwaitingApproval(ctx context.Context, conv *domain.Conversation, message string) (*TurnResult, error) {
	switch o.classifier.Classify(ctx, conv.UserID, message) {
	case IntentApprove:
		return o.approve(ctx, conv)

	case IntentReject:
		conv.Preview = nil
		// Progress markers from a failed persist of this preview die with
		// it; a later approval must start a fresh plan.
		conv.Persistence = nil
		conv.State = domain.StateGathering
		missing := conv.Requirements.MissingFields()
		return &TurnResult{
			ConversationID: conv.ID.Hex(),
			Stage:          domain.StateGathering,
			Reply:          "No problem, I've discarded that plan. What would you like to change about your requirements?",
			MissingFields:  missing,
		}, nil

	default: // IntentModify
		merged, _, err := o.extractor.Extract(ctx, conv.UserID, conv.Requirements, message)
		if err != nil && !errors.Is(err, ErrUserInput) {
			return nil, err
		}
		if err == nil {
			conv.Requirements = merged
		}

		preview, err := o.synthesizer.Synthesize(ctx, conv.UserID, conv.Requirements, message)
		if err != nil {
			return nil, err
		}
		conv.Preview = preview
		// The regenerated preview invalidates any persist progress from the
		// old one: approving it must not stitch new sessions into a plan
		// created for the abandoned preview.
		conv.Persistence = nil
		return &TurnResult{
			ConversationID: conv.ID.Hex(),
			Stage:          domain.StateAwaitingApproval,
			Reply:          "Here's the updated plan. " + previewReply(preview),
			PlanPreview:    preview,
		}, nil
	}
}

// approve runs reconciliation and persistence. Remote writes run on a
// context detached from the caller: a disconnected client must not leave
// the catalog or plan store half-written.
func (o *conversationOrchestrator) approve(ctx context.Context, conv *domain.Conversation) (*TurnResult, error) {
	if conv.Preview == nil {
		return nil, fmt.Errorf("conversation %s awaiting approval without a preview", conv.ID.Hex())
	}
	writeCtx := context.WithoutCancel(ctx)

	specs, _, err := o.reconciler.Reconcile(writeCtx, conv.Preview, conv.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}

	if conv.Persistence == nil {
		conv.Persistence = &domain.PersistenceProgress{}
	}
	persisted, err := o.persister.Persist(writeCtx, conv.Preview, specs, conv.UserID, conv.Persistence)
	if err != nil {
		var partial *PartialPersistError
		if errors.As(err, &partial) {
			// Commit the progress markers so a retried approval resumes,
			// but do not advance past awaiting approval.
			conv.AppendTurn(domain.RoleAssistant,
				"I hit a problem while saving your plan. Nothing is lost; send your approval again and I'll pick up where I left off.")
			if saveErr := o.conversations.Save(writeCtx, conv, conv.Version); saveErr != nil {
				log.Printf("failed to save partial persistence progress for %s: %v", conv.ID.Hex(), saveErr)
			}
		}
		return nil, err
	}

	conv.PlanID = persisted.PlanID
	conv.State = domain.StateComplete

	if o.archive != nil {
		o.archiveSnapshot(writeCtx, conv, persisted)
	}

	return &TurnResult{
		ConversationID: conv.ID.Hex(),
		Stage:          domain.StateComplete,
		Reply:          fmt.Sprintf("Your plan %q is saved and ready to go. Good luck!", conv.Preview.Name),
		PlanID:         persisted.PlanID,
	}, nil
}

// archiveSnapshot stores the approved plan snapshot, fire and forget.
func (o *conversationOrchestrator) archiveSnapshot(ctx context.Context, conv *domain.Conversation, persisted *domain.PersistedPlan) {
	snapshot := storage.PlanSnapshot{
		ConversationID: conv.ID.Hex(),
		UserID:         conv.UserID,
		Plan:           *persisted,
		Preview:        *conv.Preview,
	}
	if err := o.archive.StorePlanSnapshot(ctx, snapshot); err != nil {
		log.Printf("plan snapshot archive failed for %s: %v", persisted.PlanID, err)
	}
}

// replayStoredState answers a redelivered turn from what already committed.
func (o *conversationOrchestrator) replayStoredState(ctx context.Context, id primitive.ObjectID) (*TurnResult, error) {
	conv, err := o.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load conversation after conflict: %w", err)
	}

	result := &TurnResult{
		ConversationID: conv.ID.Hex(),
		Stage:          conv.State,
		PlanID:         conv.PlanID,
		PlanPreview:    conv.Preview,
		MissingFields:  conv.Requirements.MissingFields(),
	}
	if len(conv.Turns) > 0 {
		if last := conv.Turns[len(conv.Turns)-1]; last.Role == domain.RoleAssistant {
			result.Reply = last.Text
		}
	}
	return result, nil
}

// --- Reply composition ---

var fieldPrompts = map[string]string{
	"goal":               "what you're training for",
	"duration_weeks":     "how many weeks the plan should run",
	"frequency_per_week": "how many days per week you can train",
	"experience_level":   "your training experience (beginner, intermediate, advanced)",
}

func missingFieldsReply(missing []string) string {
	if len(missing) == 0 {
		return "Got it. Let me put your plan together."
	}
	prompts := make([]string, 0, len(missing))
	for _, f := range missing {
		if p, ok := fieldPrompts[f]; ok {
			prompts = append(prompts, p)
		} else {
			prompts = append(prompts, f)
		}
	}
	return "Thanks! To build your plan I still need to know: " + strings.Join(prompts, ", ") + "."
}

func previewReply(p *domain.PlanPreview) string {
	return fmt.Sprintf("I've drafted %q: %d weeks, %d sessions per week. Review the preview and reply \"yes\" to save it, or tell me what to change.",
		p.Name, p.DurationWeeks, p.FrequencyPerWeek)
}
