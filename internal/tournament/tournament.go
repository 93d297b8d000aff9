// Package tournament implements the progressive, batched cross-story
// ranking system: the Tournament Engine. Over the course of a day the
// candidate pool grows by batch to several hundred headlines; re-ranking
// the whole corpus every run would cost O(total x runs) judge calls, so
// each run ranks only the new candidates plus a persisted top-K survivor
// cohort.
package tournament

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"subvertnews/internal/config"
	"subvertnews/internal/core"
	"subvertnews/internal/llm"
	"subvertnews/internal/logger"
	"subvertnews/internal/store"
)

// judgeCaller is the shape of llm.Gateway.Call, factored out so tests can
// substitute a deterministic judge without a real provider.
type judgeCaller func(ctx context.Context, stage llm.Stage, prompt, systemPrompt string) (string, llm.Usage, error)

// Engine is the Tournament Engine. One Engine instance is shared across
// invocations; it holds no per-run state.
type Engine struct {
	store   *store.Store
	gateway *llm.Gateway
	call    judgeCaller
	cfg     config.Tournament
}

// New builds a Tournament Engine.
func New(s *store.Store, gw *llm.Gateway, cfg config.Tournament) *Engine {
	return &Engine{store: s, gateway: gw, call: gw.Call, cfg: cfg}
}

// RunSummary reports the outcome of one daily tournament invocation.
type RunSummary struct {
	Day        string
	NoOp       bool
	Batch      int
	PoolSize   int
	Survivors  int
	Polished   int
	CrossDay   bool
}

// RunDaily is invoked per batch of headline-stream change events, on the
// day key derived from those events. It inspects the day's headlines,
// decides whether a run is needed, ranks the pool, persists ranks and
// survivor status, runs the polish pass on a final run, and folds the
// result into the cross-day meta-tournament.
func (e *Engine) RunDaily(ctx context.Context, day string) (RunSummary, error) {
	if e.cfg.LockTTL > 0 {
		holder := "tournament-" + uuid.NewString()
		if err := e.store.AcquireTournamentLock(ctx, day, holder, e.cfg.LockTTL); err != nil {
			if core.IsConflict(err) {
				logger.Info("tournament run skipped: lock held", "day", day)
				return RunSummary{Day: day, NoOp: true}, nil
			}
			return RunSummary{}, fmt.Errorf("acquire tournament lock: %w", err)
		}
		defer func() { _ = e.store.ReleaseTournamentLock(ctx, day) }()
	}

	all, err := e.store.GetHeadlinesByDay(ctx, day)
	if err != nil {
		return RunSummary{}, fmt.Errorf("load headlines for %s: %w", day, err)
	}

	var newHeadlines, survivors []core.Headline
	maxBatch := 0
	for _, h := range all {
		if h.TournamentBatch == nil {
			newHeadlines = append(newHeadlines, h)
		} else {
			if *h.TournamentBatch > maxBatch {
				maxBatch = *h.TournamentBatch
			}
			if h.Survivor() {
				survivors = append(survivors, h)
			}
		}
	}

	if len(newHeadlines) == 0 {
		return RunSummary{Day: day, NoOp: true}, nil
	}

	batch := maxBatch + 1
	pool := append(append([]core.Headline{}, newHeadlines...), survivors...)

	ranked, err := e.rankPool(ctx, pool, llm.StageTournamentElim, llm.StageTournamentFinal)
	if err != nil {
		return RunSummary{}, fmt.Errorf("rank pool for %s: %w", day, err)
	}

	survivorCount, err := e.persistRanks(ctx, day, ranked, batch)
	if err != nil {
		return RunSummary{}, fmt.Errorf("persist ranks for %s: %w", day, err)
	}

	summary := RunSummary{Day: day, Batch: batch, PoolSize: len(pool), Survivors: survivorCount}

	if e.isFinalRun(batch) {
		polished, err := e.polishTopSurvivors(ctx, day)
		if err != nil {
			logger.Error("polish pass failed", err, "day", day)
		}
		summary.Polished = polished
	}

	if err := e.runCrossDay(ctx, day); err != nil {
		logger.Error("cross-day tournament failed", err, "day", day)
	} else {
		summary.CrossDay = true
	}

	return summary, nil
}

func (e *Engine) isFinalRun(batch int) bool {
	if batch >= e.cfg.FinalAfterBatch {
		return true
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return false
	}
	return time.Now().In(loc).Hour() >= e.cfg.FinalAfterHour
}

// persistRanks writes Rank/TournamentBatch/Survived on every headline in
// ranked order: the top cohortSize become survivors with their rank; the
// rest are marked eliminated with their rank attribute removed.
func (e *Engine) persistRanks(ctx context.Context, day string, ranked []rankedHeadline, batch int) (int, error) {
	survivorCount := 0
	for i, rh := range ranked {
		rank := i + 1
		survived := rank <= e.cfg.SurvivorCohortSize
		var rankPtr *int
		if survived {
			rankPtr = &rank
			survivorCount++
		}
		b := batch
		s := survived
		if err := e.store.UpdateRanks(ctx, day, rh.headline.HeadlineId, rankPtr, nil, &b, &s); err != nil {
			return survivorCount, fmt.Errorf("update ranks for %s: %w", rh.headline.HeadlineId, err)
		}
	}
	return survivorCount, nil
}

// polishTopSurvivors punches up the top-N survivors that have not yet
// been polished. Idempotent per headline via the OriginalSubverted guard.
func (e *Engine) polishTopSurvivors(ctx context.Context, day string) (int, error) {
	survivors, err := e.store.GetSurvivors(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("load survivors: %w", err)
	}
	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].Batch() < survivors[j].Batch() ||
			(survivors[i].Rank != nil && survivors[j].Rank != nil && *survivors[i].Rank < *survivors[j].Rank)
	})

	n := e.cfg.PolishTopN
	if n > len(survivors) {
		n = len(survivors)
	}

	polished := 0
	for _, h := range survivors[:n] {
		if h.Polished() {
			continue
		}
		text, _, err := e.call(ctx, llm.StagePolish, polishPrompt(h), "")
		if err != nil {
			logger.Warn("polish call failed", "headline_id", h.HeadlineId, "error", err.Error())
			continue
		}
		text = trimQuotes(text)
		if text == "" || text == h.Headline {
			continue
		}
		if err := e.store.PolishHeadline(ctx, day, h.HeadlineId, text, h.Headline); err != nil {
			return polished, fmt.Errorf("polish headline %s: %w", h.HeadlineId, err)
		}
		polished++
	}
	return polished, nil
}

// runCrossDay assembles the pool of top-64 today + top-16 yesterday +
// top-16 day-before and runs the batch ranking algorithm on it, writing
// CrossDayRank. Already-polished headlines from prior days are included
// unchanged, per the reference behavior.
func (e *Engine) runCrossDay(ctx context.Context, day string) error {
	today, err := time.Parse("20060102", day)
	if err != nil {
		return fmt.Errorf("parse day %q: %w", day, err)
	}

	pool, err := e.topN(ctx, day, e.cfg.SurvivorCohortSize)
	if err != nil {
		return err
	}
	for _, offset := range []int{1, 2} {
		d := today.AddDate(0, 0, -offset).Format("20060102")
		top, err := e.topN(ctx, d, 16)
		if err != nil {
			return err
		}
		pool = append(pool, top...)
	}
	if len(pool) == 0 {
		return nil
	}

	ranked, err := e.rankPool(ctx, pool, llm.StageTournament, llm.StageTournamentFinal)
	if err != nil {
		return fmt.Errorf("rank cross-day pool: %w", err)
	}

	for i, rh := range ranked {
		rank := i + 1
		if err := e.store.UpdateRanks(ctx, rh.headline.YearMonthDay, rh.headline.HeadlineId, rh.headline.Rank, &rank, rh.headline.TournamentBatch, rh.headline.Survived); err != nil {
			return fmt.Errorf("update cross-day rank for %s: %w", rh.headline.HeadlineId, err)
		}
	}
	return nil
}

func (e *Engine) topN(ctx context.Context, day string, n int) ([]core.Headline, error) {
	survivors, err := e.store.GetSurvivors(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load survivors for %s: %w", day, err)
	}
	sort.Slice(survivors, func(i, j int) bool {
		ri, rj := rankValue(survivors[i]), rankValue(survivors[j])
		return ri < rj
	})
	if n > len(survivors) {
		n = len(survivors)
	}
	return survivors[:n], nil
}

func rankValue(h core.Headline) int {
	if h.Rank == nil {
		return int(^uint(0) >> 1)
	}
	return *h.Rank
}

// rankedHeadline is one entry of rankPool's best-first result; its rank is
// its index in that slice plus one, assigned when it is written to the
// store.
type rankedHeadline struct {
	headline core.Headline
}

// rankPool runs the progressive batched tournament on pool: elimination
// rounds while |remaining| > finalRoundMax, then one final round, then
// assigns ranks by consuming rounds in reverse chronological order.
func (e *Engine) rankPool(ctx context.Context, pool []core.Headline, elimStage, finalStage llm.Stage) ([]rankedHeadline, error) {
	if len(pool) == 0 {
		return nil, nil
	}

	remaining := append([]core.Headline{}, pool...)
	rand.Shuffle(len(remaining), func(i, j int) { remaining[i], remaining[j] = remaining[j], remaining[i] })

	// position tiers from each elimination round, recorded in the order
	// the rounds ran (oldest first); consumed in reverse at the end.
	var rounds [][]positionTier

	for len(remaining) > e.cfg.FinalRoundMax {
		groups := partition(remaining, e.cfg.GroupSize)
		results := make([][]core.Headline, len(groups))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.GroupPoolSize)
		for i, group := range groups {
			i, group := i, group
			g.Go(func() error {
				order, err := e.judgeGroup(gctx, group, elimStage)
				if err != nil {
					return err
				}
				results[i] = order
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("group ranking round: %w", err)
		}

		var advancing []core.Headline
		tierMap := map[int][]core.Headline{}
		for _, order := range results {
			top := order
			if len(top) > 3 {
				top = top[:3]
			}
			advancing = append(advancing, top...)
			for i := 3; i < len(order); i++ {
				p := i + 1
				tierMap[p] = append(tierMap[p], order[i])
			}
		}

		var tiers []positionTier
		positions := make([]int, 0, len(tierMap))
		for p := range tierMap {
			positions = append(positions, p)
		}
		sort.Ints(positions)
		for _, p := range positions {
			tiers = append(tiers, positionTier{position: p, headlines: tierMap[p]})
		}
		rounds = append(rounds, tiers)

		remaining = advancing
	}

	finalOrder, err := e.judgeGroup(ctx, remaining, finalStage)
	if err != nil {
		return nil, fmt.Errorf("final round ranking: %w", err)
	}

	result := make([]rankedHeadline, 0, len(pool))
	for _, h := range finalOrder {
		result = append(result, rankedHeadline{headline: h})
	}

	for i := len(rounds) - 1; i >= 0; i-- {
		for _, tier := range rounds[i] {
			for _, h := range tier.headlines {
				result = append(result, rankedHeadline{headline: h})
			}
		}
	}
	return result, nil
}

type positionTier struct {
	position  int
	headlines []core.Headline
}

// partition splits items into round(len/groupSize) groups, sizes balanced
// within +/-1; leftover members go one each to the earliest groups
// rather than into a group of their own, so no group of one (an automatic
// bye) is formed when there are at least as many items as groups.
func partition(items []core.Headline, groupSize int) [][]core.Headline {
	n := len(items)
	groups := int(math.Round(float64(n) / float64(groupSize)))
	if groups == 0 {
		groups = 1
	}
	base := n / groups
	extra := n % groups

	out := make([][]core.Headline, 0, groups)
	idx := 0
	for g := 0; g < groups; g++ {
		size := base
		if g < extra {
			size++
		}
		out = append(out, items[idx:idx+size])
		idx += size
	}
	return out
}

// judgeGroup asks the judge model to rank one group of headlines best to
// worst, returning them reordered. An unparseable response causes the
// group to be shuffled and logged as an anomaly, per the failure
// semantics for judge calls.
func (e *Engine) judgeGroup(ctx context.Context, group []core.Headline, stage llm.Stage) ([]core.Headline, error) {
	if len(group) <= 1 {
		return group, nil
	}
	labels := labelsFor(len(group))
	byLabel := make(map[string]core.Headline, len(group))
	for i, h := range group {
		byLabel[labels[i]] = h
	}

	// A judge call failure of any kind is isolated to this group: the
	// propagation policy never aborts a whole run on a single failure.
	response, _, err := e.call(ctx, stage, groupPrompt(group, labels, e.cfg.Verbose), judgeSystemPrompt)
	if err != nil {
		logger.Warn("judge call failed, group treated as unparseable", "error", err.Error())
		response = ""
	}

	order, ok := parseOrder(response, labels)
	if !ok {
		logger.Warn("judge response unparseable, group shuffled as anomaly", "group_size", len(group))
		order = shuffledOrder(labels)
	}

	out := make([]core.Headline, 0, len(group))
	for _, label := range order {
		out = append(out, byLabel[label])
	}
	return out, nil
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
