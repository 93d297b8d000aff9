// Package core holds the shared data model for the satirical-headline
// pipeline: Stories (real news) and Headlines (satirical variants), plus
// the read-mostly WordBank used as generation inspiration.
package core

import "time"

// Story is a real news item fetched by the Story Ingestor. Immutable once
// created: the only writer is the ingestor, and only on first-seen.
//
// Keys: (YearMonthDay, StoryId). Uniqueness is additionally enforced on
// (YearMonthDay, Title) by the store's conditional put.
type Story struct {
	YearMonthDay  string    `json:"year_month_day" db:"year_month_day"` // YYYYMMDD, publisher's local timezone
	StoryId       string    `json:"story_id" db:"story_id"`             // 5-char base36
	Title         string    `json:"title" db:"title"`
	Description   string    `json:"description" db:"description"`
	PublishedAt   time.Time `json:"published_at" db:"published_at"`
	ImageUrl      string    `json:"image_url" db:"image_url"` // required; stories without one are rejected
	Url           string    `json:"url" db:"url"`
	Source        string    `json:"source" db:"source"`
	FetchCategory string    `json:"fetch_category" db:"fetch_category"`
	Keywords      []string  `json:"keywords,omitempty" db:"-"`
	Language      string    `json:"language,omitempty" db:"language"`
	Country       string    `json:"country,omitempty" db:"country"`
	RetrievedAt   time.Time `json:"retrieved_at" db:"retrieved_at"`
}

// Headline is a satirical variant of a Story. Created by the Subvert
// Worker with all rank fields absent; mutated only by the Tournament
// Engine thereafter. Never deleted.
//
// Keys: (YearMonthDay, HeadlineId).
type Headline struct {
	YearMonthDay      string    `json:"year_month_day" db:"year_month_day"`
	HeadlineId        string    `json:"headline_id" db:"headline_id"`
	Headline          string    `json:"headline" db:"headline"`           // current text
	OriginalHeadline  string    `json:"original_headline" db:"original_headline"`
	OriginalSubverted *string   `json:"original_subverted,omitempty" db:"original_subverted"` // prior text, set once polished
	Angle             string    `json:"angle" db:"angle"`
	AngleSetup        string    `json:"angle_setup" db:"angle_setup"`
	StoryId           string    `json:"story_id" db:"story_id"`
	CreateTime        time.Time `json:"create_time" db:"create_time"`
	Rank              *int      `json:"rank,omitempty" db:"rank"`
	CrossDayRank      *int      `json:"cross_day_rank,omitempty" db:"cross_day_rank"`
	TournamentBatch   *int      `json:"tournament_batch,omitempty" db:"tournament_batch"`
	Survived          *bool     `json:"survived,omitempty" db:"survived"`
}

// Survivor reports whether h belongs to the live survivor cohort.
func (h Headline) Survivor() bool {
	return h.Survived != nil && *h.Survived
}

// Polished reports whether a polish pass has already run on this headline.
func (h Headline) Polished() bool {
	return h.OriginalSubverted != nil
}

// Batch returns the TournamentBatch value, or 0 if the headline has never
// been through a tournament run.
func (h Headline) Batch() int {
	if h.TournamentBatch == nil {
		return 0
	}
	return *h.TournamentBatch
}

// WordType names a category of inspiration word in the WordBank.
type WordType string

const (
	WordTypeAdjective WordType = "adjective"
	WordTypeNoun      WordType = "noun"
	WordTypeVerb      WordType = "verb"
	WordTypeAbsurd    WordType = "absurd"
)

// WordBank maps a WordType to the set of words available under it. It is
// read-mostly and safe to cache process-wide once loaded.
type WordBank map[WordType][]string

// AngleSpec is a single comedic angle proposed during Stage 1 brainstorming.
type AngleSpec struct {
	AngleName string   `json:"angle_name"`
	Setup     string   `json:"setup"`
	Keywords  []string `json:"keywords"`
}

// HeadlineDraft is one candidate headline proposed during Stage 2
// generation for a given angle.
type HeadlineDraft struct {
	Text string `json:"text"`
}

// RankedGroup is the judge's response to one group-ranking call in the
// Tournament Engine: a letter ordering from best to worst.
type RankedGroup struct {
	Order   []string // letters, e.g. ["C", "A", "B"], best first
	Anomaly bool     // true if the response could not be parsed and the group was shuffled
}
