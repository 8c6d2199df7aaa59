package api

import (
	"net/http"

	"fitcoach/plan-engine/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the conversation endpoints on the router.
func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	orchestrator service.ConversationOrchestrator,
) {
	conversationHandler := NewConversationHandler(orchestrator)

	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		conversationGroup := protected.Group("/conversations")
		{
			// POST /api/v1/conversations - start or continue a conversation
			conversationGroup.POST("", conversationHandler.CreateOrContinue)

			// POST /api/v1/conversations/{id}/decision - approve/reject/modify a preview
			conversationGroup.POST("/:id/decision", conversationHandler.Decide)

			// GET /api/v1/conversations/{id} - stored state for reconnects
			conversationGroup.GET("/:id", conversationHandler.Get)
		}
	}
}
