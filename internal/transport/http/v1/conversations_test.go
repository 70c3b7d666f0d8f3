package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/streamchat/internal/domain"
	"github.com/xiaot623/gogo/streamchat/internal/service"
)

// seedConversation runs one turn and returns the new conversation id.
func seedConversation(t *testing.T, svc *service.Service, text string) int64 {
	t.Helper()
	sink := &recordingSink{}
	svc.RunTurn(context.Background(), domain.NewConversation(), text, sink)
	if len(sink.events) == 0 || sink.events[len(sink.events)-1].Kind != domain.EventDone {
		t.Fatalf("seed turn did not complete: %+v", sink.events)
	}
	convs, err := svc.ListConversations(context.Background())
	require.NoError(t, err)
	return convs[0].ID
}

func sessionContext(method, path string, body string, id string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c, rec
}

func TestListSessions(t *testing.T) {
	h, svc := newTestHandler(t)
	seedConversation(t, svc, "first")
	seedConversation(t, svc, "second")

	c, rec := sessionContext(http.MethodGet, "/api/sessions", "", "")
	if err := h.ListSessions(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Sessions []domain.Conversation `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 2)
	require.Equal(t, "second", resp.Sessions[0].Title)
	require.NotZero(t, resp.Sessions[0].ID)
}

func TestUpdateSession(t *testing.T) {
	h, svc := newTestHandler(t)
	id := seedConversation(t, svc, "first")
	idStr := strconv.FormatInt(id, 10)

	c, rec := sessionContext(http.MethodPut, "/api/sessions/"+idStr, `{"title":"Renamed"}`, idStr)
	if err := h.UpdateSession(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var conv domain.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	require.Equal(t, "Renamed", conv.Title)

	c, rec = sessionContext(http.MethodPut, "/api/sessions/"+idStr, `{"title":"  "}`, idStr)
	require.NoError(t, h.UpdateSession(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = sessionContext(http.MethodPut, "/api/sessions/abc", `{"title":"x"}`, "abc")
	require.NoError(t, h.UpdateSession(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = sessionContext(http.MethodPut, "/api/sessions/999", `{"title":"x"}`, "999")
	require.NoError(t, h.UpdateSession(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSession(t *testing.T) {
	h, svc := newTestHandler(t)
	id := seedConversation(t, svc, "first")
	idStr := strconv.FormatInt(id, 10)

	c, rec := sessionContext(http.MethodDelete, "/api/sessions/"+idStr, "", idStr)
	if err := h.DeleteSession(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	convs, err := svc.ListConversations(context.Background())
	require.NoError(t, err)
	require.Empty(t, convs)

	c, rec = sessionContext(http.MethodDelete, "/api/sessions/"+idStr, "", idStr)
	require.NoError(t, h.DeleteSession(c))
	require.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = sessionContext(http.MethodGet, "/api/sessions/"+idStr+"/messages", "", idStr)
	require.NoError(t, h.GetSessionMessages(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
