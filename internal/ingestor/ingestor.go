// Package ingestor implements the Story Ingestor: polls the News Source
// on a schedule, dedupes, writes Stories, and relies on the store's
// change stream to notify the Subvert Worker.
package ingestor

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"subvertnews/internal/config"
	"subvertnews/internal/core"
	"subvertnews/internal/logger"
	"subvertnews/internal/newsapi"
	"subvertnews/internal/store"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newStoryID generates a 5-char base36 random id, matching the data
// model's StoryId shape.
func newStoryID() string {
	b := make([]byte, 5)
	for i := range b {
		b[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return string(b)
}

// Ingestor is the Story Ingestor. One instance is shared across
// scheduled invocations.
type Ingestor struct {
	client *newsapi.Client
	store  *store.Store
	cfg    config.Ingest
}

// New builds a Story Ingestor against client and store.
func New(client *newsapi.Client, s *store.Store, cfg config.Ingest) *Ingestor {
	return &Ingestor{client: client, store: s, cfg: cfg}
}

// RunSummary is the per-run outcome FetchRun returns.
type RunSummary struct {
	Processed   int
	Saved       int
	PerCategory map[string]int
}

// FetchRun iterates the configured category set plus one wildcard slot
// (no category filter, no priority filter, for diversity), paginating
// each up to MaxAPICallsPerRun calls and saving at most MaxSavedPerRun
// stories per category. A category-level failure does not abort the
// run; other categories still get a chance to contribute.
func (i *Ingestor) FetchRun(ctx context.Context, now time.Time) (RunSummary, error) {
	summary := RunSummary{PerCategory: map[string]int{}}

	categories := append([]string{}, i.cfg.Categories...)
	categories = append(categories, "") // wildcard: no category filter

	for _, category := range categories {
		saved, processed, err := i.fetchCategory(ctx, category)
		summary.Saved += saved
		summary.Processed += processed
		label := category
		if label == "" {
			label = "wildcard"
		}
		summary.PerCategory[label] = saved
		if err != nil {
			logger.Error("ingest category failed", err, "category", label)
		}
	}

	return summary, nil
}

func (i *Ingestor) fetchCategory(ctx context.Context, category string) (saved, processed int, err error) {
	maxSaved := i.cfg.MaxSavedPerRun
	if maxSaved <= 0 {
		maxSaved = 5
	}
	maxCalls := i.cfg.MaxAPICallsPerRun
	if maxCalls <= 0 {
		maxCalls = 3
	}

	priority := category != "" // the wildcard slot skips the priority-domain filter too
	stories, err := i.client.FetchAll(ctx, newsapi.Query{Category: category, PriorityDomain: priority}, maxCalls,
		func(collected int) bool { return collected >= maxSaved*4 }) // overfetch a little to absorb rejects/dupes
	if err != nil {
		return 0, 0, fmt.Errorf("fetch category %q: %w", category, err)
	}

	for _, raw := range stories {
		processed++
		if saved >= maxSaved {
			break
		}
		if i.saveStory(ctx, raw, category) {
			saved++
		}
	}
	return saved, processed, nil
}

// saveStory normalizes one raw story and writes it with the store's
// existence-guard dedup. A conflict or a missing image is a silent
// skip, never an error.
func (i *Ingestor) saveStory(ctx context.Context, raw newsapi.RawStory, category string) bool {
	if raw.ImageURL == "" {
		logger.Debug("skipped story: no image", "title", raw.Title)
		return false
	}
	published := raw.PublishedAt()
	if published.IsZero() {
		logger.Debug("skipped story: unparseable pubDate", "title", raw.Title)
		return false
	}

	fetchCategory := category
	if fetchCategory == "" {
		fetchCategory = "wildcard"
	}

	story := core.Story{
		YearMonthDay:  published.Format("20060102"),
		StoryId:       newStoryID(),
		Title:         strings.TrimSpace(raw.Title),
		Description:   raw.Description,
		PublishedAt:   published,
		ImageUrl:      raw.ImageURL,
		Url:           raw.Link,
		Source:        raw.SourceID,
		FetchCategory: fetchCategory,
		Keywords:      raw.Keywords,
		Language:      raw.Language,
		Country:       raw.CountryCode(),
		RetrievedAt:   time.Now().UTC(),
	}

	if err := i.store.PutStory(ctx, story); err != nil {
		if core.IsConflict(err) {
			logger.Debug("skipped story: already exists", "title", story.Title, "day", story.YearMonthDay)
			return false
		}
		logger.Error("failed to save story", err, "title", story.Title)
		return false
	}
	return true
}

// FetchTopic is the manual topic-fetch CLI operation: fetch "<query>"
// --max N --no-priority. It tags every saved story's FetchCategory as
// manual:<query> and paginates up to MaxAPICallsPerRun calls, stopping
// once max stories are saved.
func (i *Ingestor) FetchTopic(ctx context.Context, query string, max int, noPriority bool) (RunSummary, error) {
	if max <= 0 {
		max = 3
	}
	maxCalls := i.cfg.MaxAPICallsPerRun
	if maxCalls <= 0 {
		maxCalls = 3
	}

	summary := RunSummary{PerCategory: map[string]int{}}
	label := "manual:" + query

	stories, err := i.client.FetchAll(ctx, newsapi.Query{Search: query, PriorityDomain: !noPriority}, maxCalls,
		func(collected int) bool { return collected >= max*4 })
	if err != nil {
		return summary, fmt.Errorf("fetch topic %q: %w", query, err)
	}

	for _, raw := range stories {
		summary.Processed++
		if summary.Saved >= max {
			break
		}
		if i.saveStory(ctx, raw, label) {
			summary.Saved++
		}
	}
	summary.PerCategory[label] = summary.Saved
	return summary, nil
}
