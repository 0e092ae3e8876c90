package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"natural-alert/internal/chat"
)

type fakeChatService struct {
	answer string
	err    error

	gotSessionID string
	gotMessage   string
}

func (f *fakeChatService) Chat(ctx context.Context, sessionID, message string) (string, error) {
	f.gotSessionID = sessionID
	f.gotMessage = message
	return f.answer, f.err
}

func newChatRouter(svc ChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/chat", NewChatHandler(svc).Chat)
	return router
}

func postChat(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestChatHandlerSuccess(t *testing.T) {
	svc := &fakeChatService{answer: "Stay away from rivers during heavy rain."}
	router := newChatRouter(svc)

	rec := postChat(t, router, `{"sessionId":"s1","message":"flood advice"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"response":"Stay away from rivers during heavy rain."`) {
		t.Fatalf("body: %s", rec.Body)
	}
	if svc.gotSessionID != "s1" || svc.gotMessage != "flood advice" {
		t.Fatalf("service received %q / %q", svc.gotSessionID, svc.gotMessage)
	}
}

func TestChatHandlerMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no session id", `{"message":"hola"}`},
		{"no message", `{"sessionId":"s1"}`},
		{"not json", `hello`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postChat(t, newChatRouter(&fakeChatService{}), tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: want=400 got=%d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Fatalf("body missing error: %s", rec.Body)
			}
		})
	}
}

func TestChatHandlerInvalidInputMapsTo400(t *testing.T) {
	svc := &fakeChatService{err: chat.ErrInvalidInput}
	rec := postChat(t, newChatRouter(svc), `{"sessionId":"s1","message":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d", rec.Code)
	}
}

func TestChatHandlerUpstreamErrorMapsTo500(t *testing.T) {
	svc := &fakeChatService{err: errors.New("model exploded: secret detail")}
	rec := postChat(t, newChatRouter(svc), `{"sessionId":"s1","message":"hola"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: want=500 got=%d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret detail") {
		t.Fatalf("internal error leaked to client: %s", rec.Body)
	}
}
