package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/marcinbunsch/overseer-sub001/agent"
	"github.com/marcinbunsch/overseer-sub001/domain"
)

func newJSONContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHealth(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	c, rec := newJSONContext(e, http.MethodGet, "/health", "")
	if err := h.Health(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSendMessageDispatches(t *testing.T) {
	e := echo.New()
	h, source := newTestHandler(t)

	c, rec := newJSONContext(e, http.MethodPost, "/v1/conversations/c1/messages", `{"content":"hello"}`)
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")

	if err := h.SendMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.SendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Queued {
		t.Fatalf("expected immediate dispatch")
	}
	if got := source.SentMessages(); len(got) != 1 || got[0].Content != "hello" {
		t.Fatalf("unexpected sent messages: %+v", got)
	}
}

func TestSendMessageQueuedDuringTurn(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	c, _ := newJSONContext(e, http.MethodPost, "/v1/conversations/c1/messages", `{"content":"first"}`)
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")
	if err := h.SendMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	c, rec := newJSONContext(e, http.MethodPost, "/v1/conversations/c1/messages", `{"content":"second"}`)
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")
	if err := h.SendMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp domain.SendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Queued {
		t.Fatalf("expected second message to queue behind the running turn")
	}

	conv := h.registry.Get("c1")
	if got := conv.FollowUps(); len(got) != 1 || got[0] != "second" {
		t.Fatalf("unexpected follow-ups: %+v", got)
	}
}

func TestSendMessageMissingContent(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	c, rec := newJSONContext(e, http.MethodPost, "/v1/conversations/c1/messages", `{}`)
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")

	if err := h.SendMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDecideToolUseApprove(t *testing.T) {
	e := echo.New()
	h, source := newTestHandler(t)

	conv, err := h.registry.Open(context.Background(), "c1", "proj")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	conv.Apply(domain.Event{
		Kind:      domain.EventKindToolApproval,
		RequestID: "r1",
		ToolName:  "Bash",
		RawInput:  json.RawMessage(`{"command":"ls"}`),
	}, true)

	c, rec := newJSONContext(e, http.MethodPost, "/v1/conversations/c1/tool-uses/r1/decision", `{"decision":"approve"}`)
	c.SetParamNames("conversation_id", "request_id")
	c.SetParamValues("c1", "r1")

	if err := h.DecideToolUse(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var view domain.ConversationView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(view.PendingToolUses) != 0 {
		t.Fatalf("expected no pending tool uses, got %+v", view.PendingToolUses)
	}
	if got := source.SentApprovals(); len(got) != 1 || !got[0].Approved {
		t.Fatalf("unexpected approvals: %+v", got)
	}
}

func TestDecideToolUseUnknownDecision(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	c, rec := newJSONContext(e, http.MethodPost, "/v1/conversations/c1/tool-uses/r1/decision", `{"decision":"maybe"}`)
	c.SetParamNames("conversation_id", "request_id")
	c.SetParamValues("c1", "r1")

	if err := h.DecideToolUse(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDecideToolUseNotFound(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	c, rec := newJSONContext(e, http.MethodPost, "/v1/conversations/c1/tool-uses/r9/decision", `{"decision":"approve"}`)
	c.SetParamNames("conversation_id", "request_id")
	c.SetParamValues("c1", "r9")

	if err := h.DecideToolUse(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDecidePlanNoPending(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	c, rec := newJSONContext(e, http.MethodPost, "/v1/conversations/c1/plan/decision", `{"decision":"approve"}`)
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")

	if err := h.DecidePlan(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDecidePlanDeny(t *testing.T) {
	e := echo.New()
	h, source := newTestHandler(t)

	conv, err := h.registry.Open(context.Background(), "c1", "proj")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	conv.Apply(domain.Event{
		Kind:      domain.EventKindPlanApproval,
		RequestID: "p1",
		Plan:      "Refactor the parser",
	}, true)

	c, rec := newJSONContext(e, http.MethodPost, "/v1/conversations/c1/plan/decision", `{"decision":"deny","reason":"too broad"}`)
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")

	if err := h.DecidePlan(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := source.SentApprovals(); len(got) != 1 || got[0].Approved {
		t.Fatalf("unexpected approvals: %+v", got)
	}
}

func TestAnswerQuestionMissingAnswers(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	c, rec := newJSONContext(e, http.MethodPost, "/v1/conversations/c1/questions/q1/answer", `{"answers":[]}`)
	c.SetParamNames("conversation_id", "request_id")
	c.SetParamValues("c1", "q1")

	if err := h.AnswerQuestion(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetEventsSinceSeq(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	ctx := context.Background()
	for _, content := range []string{"one", "two", "three"} {
		event := &domain.Event{Kind: domain.EventKindText, Content: content}
		if _, err := h.store.AppendEvent(ctx, "c1", event); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	c, rec := newJSONContext(e, http.MethodGet, "/v1/conversations/c1/events?since_seq=1", "")
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")

	if err := h.GetEvents(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Events []domain.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 2 || resp.Events[0].Content != "two" {
		t.Fatalf("unexpected events: %+v", resp.Events)
	}
}

func TestGetEventsLimit(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	ctx := context.Background()
	for _, content := range []string{"one", "two", "three"} {
		event := &domain.Event{Kind: domain.EventKindText, Content: content}
		if _, err := h.store.AppendEvent(ctx, "c1", event); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	c, rec := newJSONContext(e, http.MethodGet, "/v1/conversations/c1/events?limit=2", "")
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")

	if err := h.GetEvents(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Events []domain.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 2 || resp.Events[1].Content != "two" {
		t.Fatalf("unexpected events: %+v", resp.Events)
	}
}

func TestGetEventsBadSinceSeq(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	c, rec := newJSONContext(e, http.MethodGet, "/v1/conversations/c1/events?since_seq=abc", "")
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")

	if err := h.GetEvents(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListConversations(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	if _, err := h.registry.Open(context.Background(), "c1", "proj"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	c, rec := newJSONContext(e, http.MethodGet, "/v1/conversations", "")
	if err := h.ListConversations(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Conversations []domain.ConversationView `json:"conversations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Conversations) != 1 || resp.Conversations[0].ConversationID != "c1" {
		t.Fatalf("unexpected conversations: %+v", resp.Conversations)
	}
}

func TestFollowUpsRemoveAndClear(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	conv, err := h.registry.Open(context.Background(), "c1", "proj")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	// Queue two follow-ups behind a running turn.
	if _, err := conv.Send(context.Background(), "start", agent.SendOptions{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	for _, content := range []string{"f1", "f2"} {
		if queued, err := conv.Send(context.Background(), content, agent.SendOptions{}); err != nil || !queued {
			t.Fatalf("expected queue, got queued=%v err=%v", queued, err)
		}
	}

	c, rec := newJSONContext(e, http.MethodDelete, "/v1/conversations/c1/followups/0", "")
	c.SetParamNames("conversation_id", "index")
	c.SetParamValues("c1", "0")
	if err := h.RemoveFollowUp(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := conv.FollowUps(); len(got) != 1 || got[0] != "f2" {
		t.Fatalf("unexpected follow-ups after remove: %+v", got)
	}

	c, rec = newJSONContext(e, http.MethodDelete, "/v1/conversations/c1/followups", "")
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")
	if err := h.ClearFollowUps(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := conv.FollowUps(); len(got) != 0 {
		t.Fatalf("expected empty queue, got %+v", got)
	}
}

func TestInterrupt(t *testing.T) {
	e := echo.New()
	h, source := newTestHandler(t)

	c, rec := newJSONContext(e, http.MethodPost, "/v1/conversations/c1/interrupt", "")
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")

	if err := h.Interrupt(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(source.Interrupts) != 1 {
		t.Fatalf("expected 1 interrupt, got %d", len(source.Interrupts))
	}
}

func TestReconcileSchedules(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	c, rec := newJSONContext(e, http.MethodPost, "/v1/conversations/c1/reconcile", "")
	c.SetParamNames("conversation_id")
	c.SetParamValues("c1")

	if err := h.Reconcile(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}
