package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/marcinbunsch/overseer-sub001/agent"
	"github.com/marcinbunsch/overseer-sub001/conversation"
	"github.com/marcinbunsch/overseer-sub001/domain"
)

// SendMessage posts user input to the conversation. When a turn is in
// progress the message is queued as a follow-up instead of interrupting.
func (h *Handler) SendMessage(c echo.Context) error {
	conv, err := h.open(c)
	if err != nil {
		return err
	}

	var req domain.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}

	queued, err := conv.Send(c.Request().Context(), req.Content, agent.SendOptions{
		WorkingDir:     req.WorkingDir,
		Model:          req.Model,
		PermissionMode: req.PermissionMode,
	})
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, domain.SendMessageResponse{Queued: queued})
}

// DecideToolUse resolves a pending tool-use approval.
func (h *Handler) DecideToolUse(c echo.Context) error {
	conv, err := h.open(c)
	if err != nil {
		return err
	}

	var req domain.ToolDecisionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	switch req.Decision {
	case conversation.DecisionApprove, conversation.DecisionApproveAllTool,
		conversation.DecisionApproveAllCommands, conversation.DecisionDeny:
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown decision: " + req.Decision})
	}

	err = conv.RespondToolUse(c.Request().Context(), c.Param("request_id"), req.Decision, req.Reason)
	if errors.Is(err, conversation.ErrNoPendingToolUse) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no pending tool use with that request id"})
	}
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, conv.View())
}

// DecidePlan resolves a pending plan review.
func (h *Handler) DecidePlan(c echo.Context) error {
	conv, err := h.open(c)
	if err != nil {
		return err
	}

	var req domain.PlanDecisionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	var approved bool
	switch req.Decision {
	case "approve":
		approved = true
	case "deny":
		approved = false
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "decision must be approve or deny"})
	}

	err = conv.RespondPlan(c.Request().Context(), approved, req.Reason)
	if errors.Is(err, conversation.ErrNoPendingPlan) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no pending plan approval"})
	}
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, conv.View())
}

// AnswerQuestion answers a pending agent question.
func (h *Handler) AnswerQuestion(c echo.Context) error {
	conv, err := h.open(c)
	if err != nil {
		return err
	}

	var req domain.QuestionAnswerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(req.Answers) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "answers is required"})
	}

	err = conv.AnswerQuestion(c.Request().Context(), c.Param("request_id"), req.Answers)
	if errors.Is(err, conversation.ErrNoPendingQuestion) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no pending question with that request id"})
	}
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, conv.View())
}

// ListFollowUps returns the queued follow-up messages.
func (h *Handler) ListFollowUps(c echo.Context) error {
	conv, err := h.open(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"follow_ups": conv.FollowUps()})
}

// RemoveFollowUp removes one queued follow-up by position.
func (h *Handler) RemoveFollowUp(c echo.Context) error {
	conv, err := h.open(c)
	if err != nil {
		return err
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "index must be an integer"})
	}
	if err := conv.RemoveFollowUp(index); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"follow_ups": conv.FollowUps()})
}

// ClearFollowUps discards all queued follow-ups without sending them.
func (h *Handler) ClearFollowUps(c echo.Context) error {
	conv, err := h.open(c)
	if err != nil {
		return err
	}
	conv.ClearFollowUps()
	return c.JSON(http.StatusOK, map[string]interface{}{"follow_ups": []string{}})
}

// Interrupt stops the conversation's current turn.
func (h *Handler) Interrupt(c echo.Context) error {
	conv, err := h.open(c)
	if err != nil {
		return err
	}
	if err := conv.Interrupt(c.Request().Context()); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, conv.View())
}
