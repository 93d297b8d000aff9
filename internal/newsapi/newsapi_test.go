package newsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"subvertnews/internal/core"
)

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") != "key1" {
			t.Errorf("apikey = %q, want key1", r.URL.Query().Get("apikey"))
		}
		_ = json.NewEncoder(w).Encode(Response{
			Status: "success",
			Results: []RawStory{
				{Title: "Mars Rover Phones Home", ImageURL: "https://img/1.png", PubDate: "2026-07-31 10:00:00"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "key1", "us", "en", 100)
	resp, err := c.Fetch(context.Background(), Query{Category: "science"})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(resp.Results))
	}
	if resp.Results[0].Title != "Mars Rover Phones Home" {
		t.Fatalf("title = %q", resp.Results[0].Title)
	}
}

func TestFetch_NonSuccessStatusIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Response{Status: "error"})
	}))
	defer srv.Close()

	c := New(srv.URL, "key1", "us", "en", 100)
	_, err := c.Fetch(context.Background(), Query{})
	if !core.IsFatal(err) {
		t.Fatalf("Fetch error = %v, want a fatal error", err)
	}
}

func TestFetch_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "key1", "us", "en", 100)
	_, err := c.Fetch(context.Background(), Query{})
	if !core.IsTransient(err) {
		t.Fatalf("Fetch error = %v, want a transient error", err)
	}
}

func TestFetchAll_StopsWhenTargetReached(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		next := ""
		if calls < 3 {
			next = "page2"
		}
		_ = json.NewEncoder(w).Encode(Response{
			Status:   "success",
			Results:  []RawStory{{Title: "story"}, {Title: "story2"}},
			NextPage: next,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "key1", "us", "en", 100)
	results, err := c.FetchAll(context.Background(), Query{}, 3, func(n int) bool { return n >= 3 })
	if err != nil {
		t.Fatalf("FetchAll error: %v", err)
	}
	if len(results) < 3 {
		t.Fatalf("got %d results, want at least 3", len(results))
	}
	if calls != 2 {
		t.Fatalf("made %d calls, want 2 (stop triggers after second page)", calls)
	}
}

func TestFetchAll_RespectsMaxCalls(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(Response{
			Status:   "success",
			Results:  []RawStory{{Title: "story"}},
			NextPage: "more",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "key1", "us", "en", 100)
	_, err := c.FetchAll(context.Background(), Query{}, 3, func(int) bool { return false })
	if err != nil {
		t.Fatalf("FetchAll error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("made %d calls, want 3 (bounded by maxCalls)", calls)
	}
}
