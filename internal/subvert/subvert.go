// Package subvert implements the Subvert Worker: consumes story
// change-stream events and produces satirical headline candidates via a
// two-stage LLM pipeline (brainstorm angles, then generate headlines per
// angle), persisting each as an independent Headline record.
package subvert

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"subvertnews/internal/config"
	"subvertnews/internal/core"
	"subvertnews/internal/llm"
	"subvertnews/internal/logger"
	"subvertnews/internal/store"
	"subvertnews/internal/wordbank"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newHeadlineID generates a 5-char base36 random id, matching the data
// model's HeadlineId shape.
func newHeadlineID() string {
	b := make([]byte, 5)
	for i := range b {
		b[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return string(b)
}

// generateCaller is the shape of llm.Gateway.Call, factored out so tests
// can substitute a deterministic model without a real provider.
type generateCaller func(ctx context.Context, stage llm.Stage, prompt, systemPrompt string) (string, llm.Usage, error)

// Worker is the Subvert Worker. One instance is shared across
// invocations; it holds no per-story state.
type Worker struct {
	store *store.Store
	call  generateCaller
	cfg   config.Subvert
}

// New builds a Subvert Worker.
func New(s *store.Store, gw *llm.Gateway, cfg config.Subvert) *Worker {
	return &Worker{store: s, call: gw.Call, cfg: cfg}
}

// StorySummary reports what happened to one story during ProcessStories.
type StorySummary struct {
	StoryId string
	Skipped bool // already had headlines (dedup guard)
	Saved   int
	Err     error
}

// RunSummary is the per-invocation outcome of ProcessStories.
type RunSummary struct {
	Processed int
	Skipped   int
	Saved     int
	Failed    int
}

// ProcessEvents handles one batch of story change-stream events: filters
// to inserts (modifies carry no new generation work — a Story is
// immutable once created) and fans the resulting stories out to
// ProcessStories.
func (w *Worker) ProcessEvents(ctx context.Context, events []store.StoryEvent) (RunSummary, error) {
	stories := make([]core.Story, 0, len(events))
	for _, evt := range events {
		if evt.EventName != store.EventInsert {
			continue
		}
		stories = append(stories, evt.NewImage)
	}
	return w.ProcessStories(ctx, stories)
}

// ProcessStories runs the two-stage generation pipeline across stories,
// one worker task per story, concurrency bounded at cfg.MaxConcurrency.
// A single story's failure never aborts the batch.
func (w *Worker) ProcessStories(ctx context.Context, stories []core.Story) (RunSummary, error) {
	limit := w.cfg.MaxConcurrency
	if limit <= 0 {
		limit = 8
	}

	results := make([]StorySummary, len(stories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, story := range stories {
		i, story := i, story
		g.Go(func() error {
			results[i] = w.processStory(gctx, story)
			return nil
		})
	}
	_ = g.Wait() // per-story errors are captured in results, never propagated

	summary := RunSummary{}
	for _, r := range results {
		summary.Processed++
		switch {
		case r.Skipped:
			summary.Skipped++
		case r.Err != nil:
			summary.Failed++
			logger.Error("subvert story failed", r.Err, "story_id", r.StoryId)
		default:
			summary.Saved += r.Saved
		}
	}
	return summary, nil
}

// processStory runs the Seen -> Deduped -> Brainstormed -> Generated ->
// Persisted state machine for one story. A failure at any stage aborts
// this story only. Persistence is not all-or-nothing: each headline is
// written independently, and a failed write skips that headline while
// the others are still saved.
func (w *Worker) processStory(ctx context.Context, story core.Story) StorySummary {
	exists, err := w.store.HeadlineExistsForStory(ctx, story.YearMonthDay, story.StoryId)
	if err != nil {
		return StorySummary{StoryId: story.StoryId, Err: fmt.Errorf("dedup check: %w", err)}
	}
	if exists {
		return StorySummary{StoryId: story.StoryId, Skipped: true}
	}

	angles, err := w.brainstorm(ctx, story)
	if err != nil {
		return StorySummary{StoryId: story.StoryId, Err: fmt.Errorf("brainstorm: %w", err)}
	}

	drafts := w.generate(ctx, story, angles)
	if len(drafts) == 0 {
		return StorySummary{StoryId: story.StoryId, Err: fmt.Errorf("generate: no headlines produced from %d angles", len(angles))}
	}

	saved := 0
	for _, d := range drafts {
		h := core.Headline{
			YearMonthDay:     story.YearMonthDay,
			HeadlineId:       newHeadlineID(),
			Headline:         d.text,
			OriginalHeadline: story.Title,
			Angle:            d.angle.AngleName,
			AngleSetup:       d.angle.Setup,
			StoryId:          story.StoryId,
		}
		if err := w.store.PutHeadline(ctx, h); err != nil {
			if core.IsConflict(err) {
				continue
			}
			logger.Error("failed to save headline", err, "story_id", story.StoryId)
			continue
		}
		saved++
	}
	return StorySummary{StoryId: story.StoryId, Saved: saved}
}

// brainstorm runs Stage 1: propose up to 5 comedic angles from the
// original story plus random WordBank inspiration. Falls back to the
// hard-coded 3-angle default on parse failure or an empty result.
func (w *Worker) brainstorm(ctx context.Context, story core.Story) ([]core.AngleSpec, error) {
	n := w.cfg.BrainstormWords
	if n <= 0 {
		n = 8
	}
	words, err := wordbank.RandomWords(n)
	if err != nil {
		if core.IsFatal(err) {
			return nil, err
		}
		words = nil
	}

	prompt := brainstormPrompt(story.Title, story.Description, words)
	response, _, err := w.call(ctx, llm.StageBrainstorm, prompt, brainstormSystemPrompt)
	if err != nil {
		if core.IsFatal(err) {
			return nil, err
		}
		logger.Warn("brainstorm call failed, using fallback angles", "story_id", story.StoryId, "err", err.Error())
		return fallbackAngles(), nil
	}

	angles, ok := parseAngles(response)
	if !ok {
		logger.Warn("brainstorm response unparseable, using fallback angles", "story_id", story.StoryId)
		return fallbackAngles(), nil
	}
	return angles, nil
}

// headlineDraft pairs a generated headline string with the angle it came
// from, so Stage 2's flattened output still carries per-candidate
// provenance for persistence.
type headlineDraft struct {
	angle core.AngleSpec
	text  string
}

// generate runs Stage 2 across every angle. Angle calls proceed
// sequentially: the per-story task is already the unit of concurrency,
// and sequential angle calls keep within-story LLM load predictable.
// A non-fatal failure on one angle yields no headlines for it; other
// angles still contribute. A fatal error stops the remaining angles and
// returns the drafts gathered so far.
func (w *Worker) generate(ctx context.Context, story core.Story, angles []core.AngleSpec) []headlineDraft {
	var drafts []headlineDraft
	for _, angle := range angles {
		prompt := generatePrompt(story.Title, angle)
		response, _, err := w.call(ctx, llm.StageGenerate, prompt, generateSystemPrompt)
		if err != nil {
			if core.IsFatal(err) {
				logger.Error("generate call fatal, aborting remaining angles", err, "story_id", story.StoryId)
				return drafts
			}
			logger.Warn("generate call failed for angle", "story_id", story.StoryId, "angle", angle.AngleName, "err", err.Error())
			continue
		}
		for _, text := range parseHeadlines(response) {
			drafts = append(drafts, headlineDraft{angle: angle, text: text})
		}
	}
	return drafts
}
