package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ListConversations returns a view for every known conversation.
func (h *Handler) ListConversations(c echo.Context) error {
	views, err := h.registry.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list conversations"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"conversations": views})
}

// GetConversation returns the current view snapshot.
func (h *Handler) GetConversation(c echo.Context) error {
	conv, err := h.open(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv.View())
}

// GetMessages returns the folded message transcript.
func (h *Handler) GetMessages(c echo.Context) error {
	conv, err := h.open(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": conv.Messages()})
}

// GetEvents returns stored raw events, optionally after ?since_seq=N.
func (h *Handler) GetEvents(c echo.Context) error {
	conversationID := c.Param("conversation_id")

	var sinceSeq int64
	if raw := c.QueryParam("since_seq"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "since_seq must be an integer"})
		}
		sinceSeq = parsed
	}

	events, err := h.store.LoadEventsSince(c.Request().Context(), conversationID, sinceSeq)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load events"})
	}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
		}
		if limit < len(events) {
			events = events[:limit]
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"events": events})
}

// Focus marks the conversation as actively watched. A focused conversation
// is never auto-finalized when its turn completes.
func (h *Handler) Focus(c echo.Context) error {
	conv, err := h.open(c)
	if err != nil {
		return err
	}
	h.registry.SetFocused(conv.ID())
	return c.JSON(http.StatusOK, conv.View())
}

// Blur removes focus from the conversation.
func (h *Handler) Blur(c echo.Context) error {
	conversationID := c.Param("conversation_id")
	h.registry.Blur(conversationID)
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Reconcile schedules a catch-up pass that folds any stored events the
// in-memory state has not seen yet.
func (h *Handler) Reconcile(c echo.Context) error {
	conv, err := h.open(c)
	if err != nil {
		return err
	}
	h.reconciler.Trigger(conv.ID())
	return c.JSON(http.StatusAccepted, map[string]string{"status": "scheduled"})
}
