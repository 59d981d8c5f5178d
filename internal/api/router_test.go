package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/pacifica-bot/internal/bot"
	"github.com/ashureev/pacifica-bot/internal/gateway"
	"github.com/ashureev/pacifica-bot/internal/identity"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type echoChat struct{}

func (echoChat) Handle(_ context.Context, msg bot.Message) []bot.Reply {
	return []bot.Reply{{Text: "echo: " + msg.Text}}
}

func newTestRouter(repo Pinger, hub *gateway.Hub, token string) http.Handler {
	return NewRouter(RouterConfig{
		Repo:           repo,
		Chat:           echoChat{},
		Hub:            hub,
		GatewayToken:   token,
		AllowedOrigins: []string{"https://app.example"},
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func authed(req *http.Request, userID string) *http.Request {
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set(identity.UserHeaderName, userID)
	return req
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantState  string
	}{
		{"healthy", nil, http.StatusOK, "healthy"},
		{"degraded", errors.New("disk gone"), http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newTestRouter(fakePinger{err: tt.err}, gateway.NewHub(0, nil), "tok")

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var got map[string]any
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got["status"] != tt.wantState {
				t.Errorf("Expected %s, got %v", tt.wantState, got["status"])
			}
		})
	}
}

func TestMetricsAndPing(t *testing.T) {
	t.Parallel()
	h := newTestRouter(fakePinger{}, gateway.NewHub(0, nil), "tok")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected metrics 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pacifica_bot_") {
		t.Error("Expected bot metrics in exposition")
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected heartbeat 200, got %d", w.Code)
	}
}

func TestChatMessages(t *testing.T) {
	t.Parallel()
	hub := gateway.NewHub(0, nil)
	h := newTestRouter(fakePinger{}, hub, "tok")

	req := authed(httptest.NewRequest(http.MethodPost, "/api/chat/messages", strings.NewReader(`{"text":"/help"}`)), "42")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got repliesResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Replies) != 1 || got.Replies[0].Text != "echo: /help" {
		t.Errorf("Expected echo reply, got %+v", got.Replies)
	}

	if err := hub.Notify(context.Background(), 42, bot.Reply{Text: "later"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, authed(httptest.NewRequest(http.MethodGet, "/api/chat/messages", nil), "42"))
	got = repliesResponse{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Replies) != 1 || got.Replies[0].Text != "later" {
		t.Errorf("Expected mailbox reply, got %+v", got.Replies)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, authed(httptest.NewRequest(http.MethodGet, "/api/chat/messages", nil), "42"))
	if !strings.Contains(w.Body.String(), `"replies":[]`) {
		t.Errorf("Expected drained mailbox, got %s", w.Body.String())
	}
}

func TestChatRejectsBadRequests(t *testing.T) {
	t.Parallel()
	h := newTestRouter(fakePinger{}, gateway.NewHub(0, nil), "tok")

	cases := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"no token", httptest.NewRequest(http.MethodPost, "/api/chat/messages", strings.NewReader(`{"text":"hi"}`)), http.StatusUnauthorized},
		{"bad json", authed(httptest.NewRequest(http.MethodPost, "/api/chat/messages", strings.NewReader(`{`)), "1"), http.StatusBadRequest},
		{"blank", authed(httptest.NewRequest(http.MethodPost, "/api/chat/messages", strings.NewReader(`{"text":"  "}`)), "1"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, tc.req)
		if w.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
	}
}

func TestGatewayDisabledWithoutToken(t *testing.T) {
	t.Parallel()
	h := newTestRouter(fakePinger{}, gateway.NewHub(0, nil), "")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, authed(httptest.NewRequest(http.MethodGet, "/api/chat/messages", nil), "1"))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
