package core

import (
	"testing"
	"time"
)

func TestStoryCreation(t *testing.T) {
	now := time.Now()
	story := Story{
		YearMonthDay: "20240101",
		StoryId:      "abc01",
		Title:        "Mars Rover Phones Home",
		ImageUrl:     "https://example.com/rover.jpg",
		PublishedAt:  now,
	}

	if story.YearMonthDay != "20240101" {
		t.Errorf("expected YearMonthDay 20240101, got %s", story.YearMonthDay)
	}
	if story.ImageUrl == "" {
		t.Error("expected non-empty ImageUrl")
	}
}

func TestHeadlineSurvivor(t *testing.T) {
	rank := 1
	survived := true
	h := Headline{Rank: &rank, Survived: &survived}
	if !h.Survivor() {
		t.Error("expected Survivor() true when Survived=true and Rank set")
	}

	h2 := Headline{}
	if h2.Survivor() {
		t.Error("expected Survivor() false on zero value")
	}
}

func TestHeadlinePolished(t *testing.T) {
	h := Headline{}
	if h.Polished() {
		t.Error("expected Polished() false before any polish pass")
	}

	prior := "Old Headline Text"
	h.OriginalSubverted = &prior
	if !h.Polished() {
		t.Error("expected Polished() true once OriginalSubverted is set")
	}
}

func TestHeadlineBatch(t *testing.T) {
	h := Headline{}
	if h.Batch() != 0 {
		t.Errorf("expected Batch() 0 for a fresh headline, got %d", h.Batch())
	}
	b := 3
	h.TournamentBatch = &b
	if h.Batch() != 3 {
		t.Errorf("expected Batch() 3, got %d", h.Batch())
	}
}

func TestWordBank(t *testing.T) {
	wb := WordBank{
		WordTypeAdjective: {"Daily", "Weekly"},
		WordTypeNoun:      {"Gazette", "Tribune"},
	}
	if len(wb[WordTypeAdjective]) != 2 {
		t.Errorf("expected 2 adjectives, got %d", len(wb[WordTypeAdjective]))
	}
}
