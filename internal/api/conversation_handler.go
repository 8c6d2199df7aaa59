package api

import (
	"errors"
	"net/http"
	"time"

	"fitcoach/plan-engine/internal/domain"
	"fitcoach/plan-engine/internal/service"

	"github.com/gin-gonic/gin"
)

// ConversationHandler holds the orchestrator dependency.
type ConversationHandler struct {
	orchestrator service.ConversationOrchestrator
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(orchestrator service.ConversationOrchestrator) *ConversationHandler {
	return &ConversationHandler{orchestrator: orchestrator}
}

// --- DTOs for API (Data Transfer Objects) ---

// TurnRequest is the payload for starting or continuing a conversation.
type TurnRequest struct {
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversationId"`
}

// DecisionRequest is the payload for approving, rejecting, or modifying a preview.
type DecisionRequest struct {
	Message string `json:"message" binding:"required"`
}

// TurnResponse is returned for every processed turn.
type TurnResponse struct {
	ConversationID string              `json:"conversationId"`
	Stage          string              `json:"stage"`
	Message        string              `json:"message"`
	MissingFields  []string            `json:"missingFields,omitempty"`
	PlanPreview    *domain.PlanPreview `json:"planPreview,omitempty"`
	PlanID         string              `json:"planId,omitempty"`
}

// ConversationResponse is the stored-state snapshot for reconnecting clients.
type ConversationResponse struct {
	ID            string              `json:"id"`
	Stage         string              `json:"stage"`
	Requirements  domain.Requirements `json:"requirements"`
	MissingFields []string            `json:"missingFields,omitempty"`
	PlanPreview   *domain.PlanPreview `json:"planPreview,omitempty"`
	PlanID        string              `json:"planId,omitempty"`
	Turns         []domain.Turn       `json:"turns"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func mapTurnResultToResponse(r *service.TurnResult) TurnResponse {
	return TurnResponse{
		ConversationID: r.ConversationID,
		Stage:          string(r.Stage),
		Message:        r.Reply,
		MissingFields:  r.MissingFields,
		PlanPreview:    r.PlanPreview,
		PlanID:         r.PlanID,
	}
}

// --- Handler Methods ---

// CreateOrContinue handles POST /conversations: the first message starts a
// conversation, subsequent messages continue it.
func (h *ConversationHandler) CreateOrContinue(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	result, err := h.orchestrator.HandleTurn(c.Request.Context(), userID, req.ConversationID, req.Message)
	if err != nil {
		h.respondTurnError(c, err)
		return
	}

	c.JSON(http.StatusOK, mapTurnResultToResponse(result))
}

// Decide handles POST /conversations/:id/decision: approval, rejection, or
// a modification request against the current preview.
func (h *ConversationHandler) Decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	result, err := h.orchestrator.HandleTurn(c.Request.Context(), userID, c.Param("id"), req.Message)
	if err != nil {
		h.respondTurnError(c, err)
		return
	}

	c.JSON(http.StatusOK, mapTurnResultToResponse(result))
}

// Get handles GET /conversations/:id.
func (h *ConversationHandler) Get(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user from token.")
		return
	}

	conv, err := h.orchestrator.GetConversation(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			abortWithError(c, http.StatusNotFound, "Conversation not found.")
			return
		}
		abortWithError(c, http.StatusInternalServerError, "Failed to load conversation.")
		return
	}

	c.JSON(http.StatusOK, ConversationResponse{
		ID:            conv.ID.Hex(),
		Stage:         string(conv.State),
		Requirements:  conv.Requirements,
		MissingFields: conv.Requirements.MissingFields(),
		PlanPreview:   conv.Preview,
		PlanID:        conv.PlanID,
		Turns:         conv.Turns,
		UpdatedAt:     conv.UpdatedAt,
	})
}

// respondTurnError maps the service error taxonomy onto HTTP responses.
// Transient failures come back as 503 with a retryable message; the turn
// was not committed, so resending it is always safe.
func (h *ConversationHandler) respondTurnError(c *gin.Context, err error) {
	var partial *service.PartialPersistError

	switch {
	case errors.Is(err, service.ErrUserInput):
		c.JSON(http.StatusOK, gin.H{
			"message":   "I couldn't quite follow that. Could you rephrase?",
			"retryable": true,
		})
	case errors.As(err, &partial):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"message":   "Part of your plan was saved but not all of it. Send your approval again and I'll finish the job.",
			"retryable": true,
		})
	case errors.Is(err, service.ErrModel):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"message":   "I'm having trouble reaching the plan generator. Please resend your last message.",
			"retryable": true,
		})
	case errors.Is(err, service.ErrConversationNotFound):
		abortWithError(c, http.StatusNotFound, "Conversation not found.")
	default:
		abortWithError(c, http.StatusInternalServerError, "Something went wrong processing your message.")
	}
}
