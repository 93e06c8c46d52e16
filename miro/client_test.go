package miro

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func testClient(srvURL string) *Client {
	return &Client{
		baseURL:    srvURL,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
}

func TestBoardContentPaginatesWithCursors(t *testing.T) {
	// Three item pages: the first two carry cursors, the last does not.
	pages := map[string]string{
		"":   `{"data":[{"id":"a"},{"id":"b"}],"cursor":"c1"}`,
		"c1": `{"data":[{"id":"c"}],"cursor":"c2"}`,
		"c2": `{"data":[{"id":"d"}]}`,
	}
	var itemRequests []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/boards/board-1":
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("authorization = %q", got)
			}
			_, _ = w.Write([]byte(`{"id":"board-1","name":"Roadmap"}`))
		case "/boards/board-1/items":
			cursor := r.URL.Query().Get("cursor")
			itemRequests = append(itemRequests, cursor)
			page, ok := pages[cursor]
			if !ok {
				t.Errorf("unexpected cursor %q", cursor)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(page))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	board, err := testClient(srv.URL).BoardContent(context.Background(), "tok", "board-1")
	if err != nil {
		t.Fatalf("BoardContent: %v", err)
	}

	items, ok := board["items"].([]interface{})
	if !ok {
		t.Fatalf("items missing: %+v", board)
	}
	if len(items) != 4 {
		t.Fatalf("items = %d, want 4", len(items))
	}
	for i, wantID := range []string{"a", "b", "c", "d"} {
		item := items[i].(map[string]interface{})
		if item["id"] != wantID {
			t.Errorf("item %d = %v, want %q", i, item["id"], wantID)
		}
	}

	// Exactly one cursorless request, then one request per returned cursor.
	want := []string{"", "c1", "c2"}
	if len(itemRequests) != len(want) {
		t.Fatalf("item requests = %v, want %v", itemRequests, want)
	}
	for i := range want {
		if itemRequests[i] != want[i] {
			t.Errorf("request %d cursor = %q, want %q", i, itemRequests[i], want[i])
		}
	}
}

func TestBoardContentMaxPages(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boards/board-1" {
			_, _ = w.Write([]byte(`{"id":"board-1"}`))
			return
		}
		requests++
		// Every page advertises another cursor; only the cap stops us.
		_, _ = fmt.Fprintf(w, `{"data":[{"id":"item-%d"}],"cursor":"c%d"}`, requests, requests)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.SetMaxPages(3)

	board, err := c.BoardContent(context.Background(), "tok", "board-1")
	if err != nil {
		t.Fatalf("BoardContent: %v", err)
	}
	if requests != 3 {
		t.Fatalf("item requests = %d, want 3", requests)
	}
	if items := board["items"].([]interface{}); len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
}

func TestBoardContentUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid token"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).BoardContent(context.Background(), "tok", "board-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d", apiErr.Status)
	}
}
