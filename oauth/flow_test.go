package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/ronikos/boardmate/config"
	"github.com/ronikos/boardmate/store"
)

func testProvider(tokenURL string) config.OAuthProvider {
	return config.OAuthProvider{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://bot.example.com/miro/callback",
		AuthURL:      "https://provider.example.com/authorize",
		TokenURL:     tokenURL,
	}
}

func TestBeginAuthStoresStateAndBuildsURL(t *testing.T) {
	s := store.NewMemoryStore()
	flow := NewMiroFlow(testProvider("https://provider.example.com/token"), s, zap.NewNop())

	authURL, err := flow.BeginAuth(context.Background(), "U123")
	if err != nil {
		t.Fatalf("BeginAuth: %v", err)
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth URL: %v", err)
	}
	if got := parsed.Query().Get("client_id"); got != "client-id" {
		t.Errorf("client_id = %q", got)
	}
	if got := parsed.Query().Get("response_type"); got != "code" {
		t.Errorf("response_type = %q", got)
	}

	stored, err := s.AuthState(context.Background(), "miro_auth_state")
	if err != nil {
		t.Fatalf("AuthState: %v", err)
	}
	if stored.UserID != "U123" {
		t.Errorf("stored user = %q", stored.UserID)
	}
	if stored.State == "" || parsed.Query().Get("state") != stored.State {
		t.Errorf("URL state %q does not match stored state %q", parsed.Query().Get("state"), stored.State)
	}
}

func TestJiraBeginAuthCarriesAtlassianParams(t *testing.T) {
	s := store.NewMemoryStore()
	flow := NewJiraFlow(testProvider("https://auth.atlassian.example/token"), s, zap.NewNop())

	authURL, err := flow.BeginAuth(context.Background(), "U123")
	if err != nil {
		t.Fatalf("BeginAuth: %v", err)
	}

	parsed, _ := url.Parse(authURL)
	if got := parsed.Query().Get("audience"); got != "api.atlassian.com" {
		t.Errorf("audience = %q", got)
	}
	if got := parsed.Query().Get("prompt"); got != "consent" {
		t.Errorf("prompt = %q", got)
	}
}

func TestHandleCallbackMissingParams(t *testing.T) {
	s := store.NewMemoryStore()
	flow := NewMiroFlow(testProvider("https://provider.example.com/token"), s, zap.NewNop())

	err := flow.HandleCallback(context.Background(), url.Values{"code": {"abc"}})
	if !errors.Is(err, ErrMissingParams) {
		t.Fatalf("expected ErrMissingParams, got %v", err)
	}

	err = flow.HandleCallback(context.Background(), url.Values{"state": {"abc"}})
	if !errors.Is(err, ErrMissingParams) {
		t.Fatalf("expected ErrMissingParams, got %v", err)
	}
}

func TestHandleCallbackStateMismatchSkipsExchange(t *testing.T) {
	var tokenCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
	}))
	defer srv.Close()

	s := store.NewMemoryStore()
	flow := NewMiroFlow(testProvider(srv.URL), s, zap.NewNop())

	if _, err := flow.BeginAuth(context.Background(), "U123"); err != nil {
		t.Fatalf("BeginAuth: %v", err)
	}

	err := flow.HandleCallback(context.Background(), url.Values{
		"state": {"not-the-stored-state"},
		"code":  {"abc"},
	})
	if !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch, got %v", err)
	}
	if tokenCalls.Load() != 0 {
		t.Fatalf("token endpoint was called %d times, want 0", tokenCalls.Load())
	}
}

func TestHandleCallbackExchangesAndStoresTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("client_id"); got != "client-id" {
			t.Errorf("client_id = %q", got)
		}
		if got := r.PostForm.Get("code"); got != "the-code" {
			t.Errorf("code = %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-at","refresh_token":"new-rt","token_type":"bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	s := store.NewMemoryStore()
	flow := NewMiroFlow(testProvider(srv.URL), s, zap.NewNop())

	authURL, err := flow.BeginAuth(context.Background(), "U123")
	if err != nil {
		t.Fatalf("BeginAuth: %v", err)
	}
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")

	err = flow.HandleCallback(context.Background(), url.Values{
		"state": {state},
		"code":  {"the-code"},
	})
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}

	tokens, err := s.Tokens(context.Background(), "U123", "miro")
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	if tokens.AccessToken != "new-at" || tokens.RefreshToken != "new-rt" {
		t.Fatalf("stored tokens = %+v", tokens)
	}
}

func TestCallbackHandlerStatusCodes(t *testing.T) {
	s := store.NewMemoryStore()
	flow := NewMiroFlow(testProvider("https://provider.example.com/token"), s, zap.NewNop())
	handler := flow.CallbackHandler("Authorization successful. You may close this window.")

	req := httptest.NewRequest(http.MethodGet, "/miro/callback?error=access_denied", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("provider error: status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/miro/callback", nil)
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing params: status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Missing state or code parameter.") {
		t.Errorf("missing params body = %q", rec.Body.String())
	}
}
