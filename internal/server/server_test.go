package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"subvertnews/internal/config"
	"subvertnews/internal/core"
	"subvertnews/internal/reader"
	"subvertnews/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := store.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	rank := 1
	story := core.Story{
		YearMonthDay: "20260731", StoryId: "story1", Title: "Real Thing Happens",
		ImageUrl: "https://img/1.png", PublishedAt: time.Now(),
	}
	if err := s.PutStory(context.Background(), story); err != nil {
		t.Fatalf("put story: %v", err)
	}
	if err := s.PutHeadline(context.Background(), core.Headline{
		YearMonthDay: "20260731", HeadlineId: "hl001", StoryId: "story1",
		Headline: "Satirical Thing Happens", OriginalHeadline: "Real Thing Happens", Rank: &rank,
	}); err != nil {
		t.Fatalf("put headline: %v", err)
	}

	r := reader.New(s, "America/New_York")
	return New(r, config.Server{Host: "127.0.0.1", Port: 0, CORSOpen: true, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second})
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleDay_ReturnsSelection(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/20260731", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var sel reader.Selection
	if err := json.Unmarshal(rec.Body.Bytes(), &sel); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(sel.Stories) != 1 {
		t.Fatalf("stories = %d, want 1", len(sel.Stories))
	}
	if sel.PaperName == "" {
		t.Fatal("expected a non-empty paper name")
	}
}

func TestHandleDayHeadline_ForcesSlug(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/20260731/hl001", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var sel reader.Selection
	if err := json.Unmarshal(rec.Body.Bytes(), &sel); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(sel.Stories) == 0 || sel.Stories[0].Headline.HeadlineId != "hl001" {
		t.Fatalf("stories = %+v, want hl001 forced into slot 0", sel.Stories)
	}
}

func TestHandleDay_RespectsSeenParam(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/20260731?seen=hl001", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var sel reader.Selection
	if err := json.Unmarshal(rec.Body.Bytes(), &sel); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	for _, st := range sel.Stories {
		if st.Headline.HeadlineId == "hl001" {
			t.Fatal("seen headline hl001 should not have been selected")
		}
	}
}
