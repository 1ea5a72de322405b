// Package api provides HTTP handlers for the sync server.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/marcinbunsch/overseer-sub001/config"
	"github.com/marcinbunsch/overseer-sub001/conversation"
	"github.com/marcinbunsch/overseer-sub001/store"
)

// Handler handles HTTP requests.
type Handler struct {
	registry   *conversation.Registry
	reconciler *conversation.Reconciler
	store      store.Store
	config     *config.Config
}

// NewHandler creates a new handler.
func NewHandler(registry *conversation.Registry, reconciler *conversation.Reconciler, st store.Store, cfg *config.Config) *Handler {
	return &Handler{
		registry:   registry,
		reconciler: reconciler,
		store:      st,
		config:     cfg,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/conversations", h.ListConversations)
	e.GET("/v1/conversations/:conversation_id", h.GetConversation)
	e.GET("/v1/conversations/:conversation_id/messages", h.GetMessages)
	e.POST("/v1/conversations/:conversation_id/messages", h.SendMessage)
	e.GET("/v1/conversations/:conversation_id/events", h.GetEvents)

	e.POST("/v1/conversations/:conversation_id/tool-uses/:request_id/decision", h.DecideToolUse)
	e.POST("/v1/conversations/:conversation_id/plan/decision", h.DecidePlan)
	e.POST("/v1/conversations/:conversation_id/questions/:request_id/answer", h.AnswerQuestion)

	e.GET("/v1/conversations/:conversation_id/followups", h.ListFollowUps)
	e.DELETE("/v1/conversations/:conversation_id/followups/:index", h.RemoveFollowUp)
	e.DELETE("/v1/conversations/:conversation_id/followups", h.ClearFollowUps)

	e.POST("/v1/conversations/:conversation_id/interrupt", h.Interrupt)
	e.POST("/v1/conversations/:conversation_id/focus", h.Focus)
	e.POST("/v1/conversations/:conversation_id/blur", h.Blur)
	e.POST("/v1/conversations/:conversation_id/reconcile", h.Reconcile)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": "0.1.0",
		"busy":    h.registry.AnythingRunning(),
	})
}

// open resolves the conversation for the request, creating and replaying
// it on first use.
func (h *Handler) open(c echo.Context) (*conversation.Conversation, error) {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "conversation_id is required")
	}
	conv, err := h.registry.Open(c.Request().Context(), conversationID, c.QueryParam("project"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to open conversation")
	}
	return conv, nil
}
