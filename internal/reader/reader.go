// Package reader implements the Reader Selector: assembles the four
// front-page headlines and a ranked tail served to a client, out of the
// rolling today/yesterday/day-before window the Tournament Engine ranks.
package reader

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"subvertnews/internal/core"
	"subvertnews/internal/store"
	"subvertnews/internal/wordbank"
)

const (
	frontPageSize  = 4
	topHeadlineCap = 64
	showOriginalP  = 0.25
)

var expandingPoolSizes = []int{16, 16, 32, 64}

// Reader is the Reader Selector. One instance is shared across requests.
type Reader struct {
	store *store.Store
	tz    *time.Location
}

// New builds a Reader Selector. editorialTZ names an IANA zone (e.g.
// "America/New_York"); falls back to UTC if the zone cannot be loaded.
func New(s *store.Store, editorialTZ string) *Reader {
	loc, err := time.LoadLocation(editorialTZ)
	if err != nil {
		loc = time.UTC
	}
	return &Reader{store: s, tz: loc}
}

// Story is the enriched story attached to a selected headline.
type Story struct {
	core.Story
	Headline         core.Headline
	ShowOriginal     bool
	SiblingHeadlines []core.Headline
}

// Selection is the Reader Selector's response: the day's assembled front
// page plus a ranked tail for "load more" style browsing.
type Selection struct {
	PaperName    string
	Stories      []Story
	TopHeadlines []core.Headline
}

// Query parameterizes one Select call.
type Query struct {
	Day          string // YYYYMMDD; empty means "today" (rolling 3-day window)
	HeadlineSlug string // forces this headline into slot 0
	Search       string // case-insensitive substring match
	Seen         map[string]bool
}

// Select assembles the front page per the day-scope and expanding-pool
// selection rules: a specific day uses only that day (falling back to
// yesterday as filler if short); "today" unions today+yesterday+day-before
// and ranks by CrossDayRank when present, else Rank.
func (r *Reader) Select(ctx context.Context, q Query) (Selection, error) {
	today := time.Now().In(r.tz).Format("20060102")

	var headlines []core.Headline
	var err error
	if q.Day != "" {
		headlines, err = r.store.GetHeadlinesByDay(ctx, q.Day)
		if err != nil {
			return Selection{}, fmt.Errorf("get headlines for day %s: %w", q.Day, err)
		}
		if len(headlines) < frontPageSize {
			yesterday := shiftDay(q.Day, -1)
			filler, err := r.store.GetHeadlinesByDay(ctx, yesterday)
			if err != nil {
				return Selection{}, fmt.Errorf("get filler headlines for day %s: %w", yesterday, err)
			}
			headlines = append(headlines, filler...)
		}
	} else {
		for _, d := range []string{today, shiftDay(today, -1), shiftDay(today, -2)} {
			day, err := r.store.GetHeadlinesByDay(ctx, d)
			if err != nil {
				return Selection{}, fmt.Errorf("get headlines for day %s: %w", d, err)
			}
			headlines = append(headlines, day...)
		}
	}

	ranked := sortByRank(headlines)
	chosen := selectFrontPage(ranked, q)

	stories := make([]Story, 0, len(chosen))
	for i, h := range chosen {
		st, err := r.enrich(ctx, h, q.HeadlineSlug != "" && i == 0)
		if err != nil {
			return Selection{}, fmt.Errorf("enrich headline %s: %w", h.HeadlineId, err)
		}
		stories = append(stories, st)
	}

	name, err := wordbank.PaperName()
	if err != nil {
		return Selection{}, fmt.Errorf("paper name: %w", err)
	}

	top := ranked
	if len(top) > topHeadlineCap {
		top = top[:topHeadlineCap]
	}

	return Selection{PaperName: name, Stories: stories, TopHeadlines: top}, nil
}

// enrich joins h's Story and gathers sibling headlines of the same
// story for cross-linking. forcedSlug suppresses the random
// ShowOriginal flag, per the spec's explicit-request override.
func (r *Reader) enrich(ctx context.Context, h core.Headline, forcedSlug bool) (Story, error) {
	story, err := r.store.GetStory(ctx, h.YearMonthDay, h.StoryId)
	if err != nil {
		return Story{}, fmt.Errorf("story %s/%s for headline %s: %w", h.YearMonthDay, h.StoryId, h.HeadlineId, err)
	}

	dayHeadlines, err := r.store.GetHeadlinesByDay(ctx, h.YearMonthDay)
	if err != nil {
		return Story{}, err
	}
	var siblings []core.Headline
	for _, sib := range dayHeadlines {
		if sib.StoryId == h.StoryId && sib.HeadlineId != h.HeadlineId {
			siblings = append(siblings, sib)
		}
	}

	showOriginal := !forcedSlug && rand.Float64() < showOriginalP
	return Story{
		Story:            *story,
		Headline:         h,
		ShowOriginal:     showOriginal,
		SiblingHeadlines: siblings,
	}, nil
}

// sortByRank orders headlines ascending by CrossDayRank when any
// headline in the set carries one, else by Rank. Absent ranks sort
// after all present ranks; order is stable within a tier.
func sortByRank(headlines []core.Headline) []core.Headline {
	out := append([]core.Headline{}, headlines...)
	useCrossDay := false
	for _, h := range out {
		if h.CrossDayRank != nil {
			useCrossDay = true
			break
		}
	}
	rankOf := func(h core.Headline) *int {
		if useCrossDay {
			return h.CrossDayRank
		}
		return h.Rank
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rankOf(out[i]), rankOf(out[j])
		if ri == nil && rj == nil {
			return false
		}
		if ri == nil {
			return false
		}
		if rj == nil {
			return true
		}
		return *ri < *rj
	})
	return out
}

// selectFrontPage runs the expanding-pool selection algorithm: slug
// override, then either a search-filtered draw or the single top pick,
// then progressively wider random draws, finally falling back to
// straight rank order, always respecting per-story uniqueness. Apart from
// a slug override, a headline in q.Seen is never placed in slot 0.
func selectFrontPage(ranked []core.Headline, q Query) []core.Headline {
	byID := make(map[string]core.Headline, len(ranked))
	for _, h := range ranked {
		byID[h.HeadlineId] = h
	}

	var chosen []core.Headline
	claimedStory := map[string]bool{}
	claimedHeadline := map[string]bool{}

	take := func(h core.Headline) {
		chosen = append(chosen, h)
		claimedStory[h.StoryId] = true
		claimedHeadline[h.HeadlineId] = true
	}

	if q.HeadlineSlug != "" {
		if h, ok := byID[q.HeadlineSlug]; ok {
			take(h)
		}
	}

	if len(chosen) == 0 && q.Search == "" {
		for _, h := range ranked {
			if q.Seen[h.HeadlineId] || claimedStory[h.StoryId] {
				continue
			}
			take(h)
			break
		}
	}

	if q.Search != "" {
		query := strings.ToLower(q.Search)
		var matches []core.Headline
		for _, h := range ranked {
			if claimedHeadline[h.HeadlineId] {
				continue
			}
			if strings.Contains(strings.ToLower(h.Headline), query) ||
				strings.Contains(strings.ToLower(h.OriginalHeadline), query) {
				matches = append(matches, h)
			}
		}
		rand.Shuffle(len(matches), func(i, j int) { matches[i], matches[j] = matches[j], matches[i] })
		for _, h := range matches {
			if len(chosen) >= frontPageSize {
				break
			}
			if claimedStory[h.StoryId] || (len(chosen) == 0 && q.Seen[h.HeadlineId]) {
				continue
			}
			take(h)
		}
	}

	for _, poolSize := range expandingPoolSizes {
		if len(chosen) >= frontPageSize {
			break
		}
		limit := poolSize
		if limit > len(ranked) {
			limit = len(ranked)
		}
		pool := ranked[:limit]

		var candidates []core.Headline
		for _, h := range pool {
			if claimedHeadline[h.HeadlineId] || claimedStory[h.StoryId] || (len(chosen) == 0 && q.Seen[h.HeadlineId]) {
				continue
			}
			candidates = append(candidates, h)
		}
		if len(candidates) == 0 {
			continue
		}
		pick := candidates[rand.Intn(len(candidates))]
		take(pick)
	}

	if len(chosen) < frontPageSize {
		for _, h := range ranked {
			if len(chosen) >= frontPageSize {
				break
			}
			if claimedHeadline[h.HeadlineId] || claimedStory[h.StoryId] || (len(chosen) == 0 && q.Seen[h.HeadlineId]) {
				continue
			}
			take(h)
		}
	}

	if len(chosen) > frontPageSize {
		chosen = chosen[:frontPageSize]
	}
	return chosen
}

// shiftDay offsets a YYYYMMDD day key by n days.
func shiftDay(day string, n int) string {
	t, err := time.Parse("20060102", day)
	if err != nil {
		return day
	}
	return t.AddDate(0, 0, n).Format("20060102")
}
