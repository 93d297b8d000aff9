package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"subvertnews/internal/core"
)

func TestNewStore(t *testing.T) {
	tmpDir := t.TempDir()

	s, err := NewStore(tmpDir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	if s.db == nil {
		t.Error("store database should not be nil")
	}

	dbPath := filepath.Join(tmpDir, "subvertnews.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file should be created")
	}
}

func TestNewStore_InvalidDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	invalidPath := filepath.Join(tmpDir, "file.txt")
	_ = os.WriteFile(invalidPath, []byte("test"), 0644)

	_, err := NewStore(filepath.Join(invalidPath, "nested"))
	if err == nil {
		t.Error("expected error when creating store under a file path")
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutStory_ConditionalPut(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	story := core.Story{
		YearMonthDay: "20260101",
		StoryId:      "abc01",
		Title:        "Mars Rover Phones Home",
		ImageUrl:     "https://example.com/rover.jpg",
		PublishedAt:  time.Now(),
	}

	if err := s.PutStory(ctx, story); err != nil {
		t.Fatalf("first PutStory failed: %v", err)
	}

	// Same (day, story_id) again: conflict.
	if err := s.PutStory(ctx, story); !core.IsConflict(err) {
		t.Fatalf("expected ErrConflict on duplicate key, got %v", err)
	}

	// Same (day, title), different story id: still a conflict.
	dup := story
	dup.StoryId = "xyz99"
	if err := s.PutStory(ctx, dup); !core.IsConflict(err) {
		t.Fatalf("expected ErrConflict on duplicate title, got %v", err)
	}
}

func TestGetStoriesByDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"aaa01", "aaa02"} {
		story := core.Story{
			YearMonthDay: "20260101",
			StoryId:      id,
			Title:        "Story " + id,
			ImageUrl:     "https://example.com/img.jpg",
			PublishedAt:  time.Now().Add(time.Duration(i) * time.Minute),
		}
		if err := s.PutStory(ctx, story); err != nil {
			t.Fatalf("PutStory failed: %v", err)
		}
	}
	// A story on a different day must not show up in this day's range query.
	if err := s.PutStory(ctx, core.Story{
		YearMonthDay: "20260102", StoryId: "bbb01", Title: "Other Day",
		ImageUrl: "https://example.com/img2.jpg",
	}); err != nil {
		t.Fatalf("PutStory failed: %v", err)
	}

	stories, err := s.GetStoriesByDay(ctx, "20260101")
	if err != nil {
		t.Fatalf("GetStoriesByDay failed: %v", err)
	}
	if len(stories) != 2 {
		t.Fatalf("expected 2 stories, got %d", len(stories))
	}
}

func TestPutHeadline_DedupGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h := core.Headline{
		YearMonthDay:     "20260101",
		HeadlineId:       "hl001",
		Headline:         "Local Man Discovers Mars, Unimpressed",
		OriginalHeadline: "Mars Rover Phones Home",
		StoryId:          "abc01",
	}
	if err := s.PutHeadline(ctx, h); err != nil {
		t.Fatalf("PutHeadline failed: %v", err)
	}

	exists, err := s.HeadlineExistsForStory(ctx, "20260101", "abc01")
	if err != nil {
		t.Fatalf("HeadlineExistsForStory failed: %v", err)
	}
	if !exists {
		t.Error("expected headline to exist for story after put")
	}

	// A story carries many candidate headlines: a second headline id for the
	// same story is accepted; only a repeated (day, headline_id) conflicts.
	h2 := h
	h2.HeadlineId = "hl002"
	if err := s.PutHeadline(ctx, h2); err != nil {
		t.Fatalf("PutHeadline for a second headline of the same story failed: %v", err)
	}
	if err := s.PutHeadline(ctx, h); !core.IsConflict(err) {
		t.Fatalf("expected ErrConflict for duplicate (day, headline_id), got %v", err)
	}
}

func TestUpdateRanks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h := core.Headline{
		YearMonthDay:     "20260101",
		HeadlineId:       "hl001",
		Headline:         "Local Man Discovers Mars, Unimpressed",
		OriginalHeadline: "Mars Rover Phones Home",
		StoryId:          "abc01",
	}
	if err := s.PutHeadline(ctx, h); err != nil {
		t.Fatalf("PutHeadline failed: %v", err)
	}

	rank, batch := 1, 1
	survived := true
	if err := s.UpdateRanks(ctx, "20260101", "hl001", &rank, nil, &batch, &survived); err != nil {
		t.Fatalf("UpdateRanks failed: %v", err)
	}

	survivors, err := s.GetSurvivors(ctx, "20260101")
	if err != nil {
		t.Fatalf("GetSurvivors failed: %v", err)
	}
	if len(survivors) != 1 || survivors[0].HeadlineId != "hl001" {
		t.Fatalf("expected hl001 among survivors, got %+v", survivors)
	}

	// Elimination: rank removed, survived flipped false.
	eliminated := false
	if err := s.UpdateRanks(ctx, "20260101", "hl001", nil, nil, &batch, &eliminated); err != nil {
		t.Fatalf("UpdateRanks (eliminate) failed: %v", err)
	}
	survivors, err = s.GetSurvivors(ctx, "20260101")
	if err != nil {
		t.Fatalf("GetSurvivors failed: %v", err)
	}
	if len(survivors) != 0 {
		t.Fatalf("expected no survivors after elimination, got %+v", survivors)
	}
}

func TestPolishHeadline_OnlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h := core.Headline{
		YearMonthDay:     "20260101",
		HeadlineId:       "hl001",
		Headline:         "Original Draft",
		OriginalHeadline: "Mars Rover Phones Home",
		StoryId:          "abc01",
	}
	if err := s.PutHeadline(ctx, h); err != nil {
		t.Fatalf("PutHeadline failed: %v", err)
	}

	if err := s.PolishHeadline(ctx, "20260101", "hl001", "Polished Draft", "Original Draft"); err != nil {
		t.Fatalf("PolishHeadline failed: %v", err)
	}
	headlines, err := s.GetHeadlinesByDay(ctx, "20260101")
	if err != nil {
		t.Fatalf("GetHeadlinesByDay failed: %v", err)
	}
	if headlines[0].Headline != "Polished Draft" || headlines[0].OriginalSubverted == nil {
		t.Fatalf("expected polish to apply once, got %+v", headlines[0])
	}

	// A second polish attempt is a no-op: the guard is on OriginalSubverted IS NULL.
	if err := s.PolishHeadline(ctx, "20260101", "hl001", "Second Polish", "Polished Draft"); err != nil {
		t.Fatalf("PolishHeadline (second) failed: %v", err)
	}
	headlines, err = s.GetHeadlinesByDay(ctx, "20260101")
	if err != nil {
		t.Fatalf("GetHeadlinesByDay failed: %v", err)
	}
	if headlines[0].Headline != "Polished Draft" {
		t.Fatalf("expected second polish to be a no-op, got %+v", headlines[0])
	}
}

func TestChangeStream_Stories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ch := s.SubscribeStories()

	story := core.Story{
		YearMonthDay: "20260101",
		StoryId:      "abc01",
		Title:        "Mars Rover Phones Home",
		ImageUrl:     "https://example.com/rover.jpg",
	}
	if err := s.PutStory(ctx, story); err != nil {
		t.Fatalf("PutStory failed: %v", err)
	}

	select {
	case evt := <-ch:
		if evt.EventName != EventInsert || evt.NewImage.StoryId != "abc01" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for story change-stream event")
	}
}

func TestTournamentLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AcquireTournamentLock(ctx, "20260101", "runner-a", time.Minute); err != nil {
		t.Fatalf("first AcquireTournamentLock failed: %v", err)
	}
	if err := s.AcquireTournamentLock(ctx, "20260101", "runner-b", time.Minute); !core.IsConflict(err) {
		t.Fatalf("expected ErrConflict on contended lock, got %v", err)
	}
	if err := s.ReleaseTournamentLock(ctx, "20260101"); err != nil {
		t.Fatalf("ReleaseTournamentLock failed: %v", err)
	}
	if err := s.AcquireTournamentLock(ctx, "20260101", "runner-b", time.Minute); err != nil {
		t.Fatalf("AcquireTournamentLock after release failed: %v", err)
	}
}

func TestAcquireTournamentLock_ExpiredIsReclaimable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AcquireTournamentLock(ctx, "20260101", "runner-a", 0); err != nil {
		t.Fatalf("AcquireTournamentLock failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.AcquireTournamentLock(ctx, "20260101", "runner-b", time.Minute); err != nil {
		t.Fatalf("expected expired lock to be reclaimable, got %v", err)
	}
}
