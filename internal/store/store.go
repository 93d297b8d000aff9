// Package store implements the composite-key, change-streamed key-value
// capability the pipeline is built against: a StoryStore and a
// HeadlineStore, both backed locally by SQLite. In production this
// capability maps onto a DynamoDB-like table with streams; here the same
// operations — conditional put, range query by partition, single-item
// update with attribute-remove, and a change stream of {eventName,
// newImage} records — are implemented directly against sqlite3 via sqlx,
// with the stream fanned out over in-process channels.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"subvertnews/internal/core"
)

// EventName is the change-stream event kind, matching the three DynamoDB
// Streams event names the gateway interface is modeled on.
type EventName string

const (
	EventInsert EventName = "INSERT"
	EventModify EventName = "MODIFY"
	EventRemove EventName = "REMOVE"
)

// StoryEvent is one change-stream record for the stories table.
type StoryEvent struct {
	EventName EventName
	NewImage  core.Story
}

// HeadlineEvent is one change-stream record for the headlines table.
type HeadlineEvent struct {
	EventName EventName
	NewImage  core.Headline
}

// Store is the SQLite-backed implementation of the StoryStore and
// HeadlineStore capabilities. One Store instance owns both tables since
// they share a connection and a change-stream broadcaster, same as a
// single DynamoDB table pair would share a region's stream infrastructure.
type Store struct {
	db   *sqlx.DB
	path string

	mu            sync.Mutex
	storySubs     []chan StoryEvent
	headlineSubs  []chan HeadlineEvent
}

// NewStore opens (creating if necessary) the SQLite database under
// dataDir and runs schema migrations.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "subvertnews.db")
	db, err := sqlx.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS stories (
			year_month_day TEXT NOT NULL,
			story_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			published_at DATETIME,
			image_url TEXT NOT NULL,
			url TEXT,
			source TEXT,
			fetch_category TEXT,
			language TEXT,
			country TEXT,
			retrieved_at DATETIME,
			PRIMARY KEY (year_month_day, story_id)
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_stories_day_title
			ON stories (year_month_day, title);`,
		`CREATE TABLE IF NOT EXISTS headlines (
			year_month_day TEXT NOT NULL,
			headline_id TEXT NOT NULL,
			headline TEXT NOT NULL,
			original_headline TEXT NOT NULL,
			original_subverted TEXT,
			angle TEXT,
			angle_setup TEXT,
			story_id TEXT NOT NULL,
			create_time DATETIME,
			rank INTEGER,
			cross_day_rank INTEGER,
			tournament_batch INTEGER,
			survived BOOLEAN,
			PRIMARY KEY (year_month_day, headline_id)
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_headlines_day_story
			ON headlines (year_month_day, story_id, headline_id);`,
		`CREATE TABLE IF NOT EXISTS tournament_locks (
			year_month_day TEXT PRIMARY KEY,
			holder TEXT NOT NULL,
			acquired_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- StoryStore ---

// PutStory inserts story with a conditional put: it fails with
// core.ErrConflict if a story already exists at the same
// (YearMonthDay, StoryId) key or the same (YearMonthDay, Title), matching
// the ingestor's existence-guard dedup semantics.
func (s *Store) PutStory(ctx context.Context, story core.Story) error {
	if story.RetrievedAt.IsZero() {
		story.RetrievedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO stories (
			year_month_day, story_id, title, description, published_at,
			image_url, url, source, fetch_category, language, country, retrieved_at
		) VALUES (
			:year_month_day, :story_id, :title, :description, :published_at,
			:image_url, :url, :source, :fetch_category, :language, :country, :retrieved_at
		)`, story)
	if err != nil {
		if isUniqueConstraint(err) {
			return core.ErrConflict
		}
		return fmt.Errorf("put story: %w", err)
	}
	s.publishStory(StoryEvent{EventName: EventInsert, NewImage: story})
	return nil
}

// GetStoriesByDay is the StoryStore range query: all stories for one
// YearMonthDay partition.
func (s *Store) GetStoriesByDay(ctx context.Context, day string) ([]core.Story, error) {
	var stories []core.Story
	err := s.db.SelectContext(ctx, &stories,
		`SELECT * FROM stories WHERE year_month_day = ? ORDER BY story_id`, day)
	if err != nil {
		return nil, fmt.Errorf("get stories by day: %w", err)
	}
	return stories, nil
}

// GetStory looks up a single story by its composite key.
func (s *Store) GetStory(ctx context.Context, day, storyID string) (*core.Story, error) {
	var story core.Story
	err := s.db.GetContext(ctx, &story,
		`SELECT * FROM stories WHERE year_month_day = ? AND story_id = ?`, day, storyID)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get story: %w", err)
	}
	return &story, nil
}

// SubscribeStories returns a channel receiving every StoryEvent published
// after the call, standing in for a DynamoDB Streams shard iterator.
// Callers must keep draining the channel: when its buffer is full, new
// events are dropped rather than blocking the writer. There is no
// unsubscribe.
func (s *Store) SubscribeStories() chan StoryEvent {
	ch := make(chan StoryEvent, 64)
	s.mu.Lock()
	s.storySubs = append(s.storySubs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) publishStory(evt StoryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.storySubs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// --- HeadlineStore ---

// PutHeadline inserts headline with a conditional put: it fails with
// core.ErrConflict if a headline already exists at the same
// (YearMonthDay, HeadlineId) key. Any number of headlines may share a
// StoryId; the Subvert Worker's per-story dedup guard is
// HeadlineExistsForStory.
func (s *Store) PutHeadline(ctx context.Context, h core.Headline) error {
	if h.CreateTime.IsZero() {
		h.CreateTime = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO headlines (
			year_month_day, headline_id, headline, original_headline,
			original_subverted, angle, angle_setup, story_id, create_time,
			rank, cross_day_rank, tournament_batch, survived
		) VALUES (
			:year_month_day, :headline_id, :headline, :original_headline,
			:original_subverted, :angle, :angle_setup, :story_id, :create_time,
			:rank, :cross_day_rank, :tournament_batch, :survived
		)`, h)
	if err != nil {
		if isUniqueConstraint(err) {
			return core.ErrConflict
		}
		return fmt.Errorf("put headline: %w", err)
	}
	s.publishHeadline(HeadlineEvent{EventName: EventInsert, NewImage: h})
	return nil
}

// HeadlineExistsForStory reports whether any headline already exists for
// (day, storyID) — the dedup guard the Subvert Worker checks before
// generating a new headline set.
func (s *Store) HeadlineExistsForStory(ctx context.Context, day, storyID string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM headlines WHERE year_month_day = ? AND story_id = ?`, day, storyID)
	if err != nil {
		return false, fmt.Errorf("check headline existence: %w", err)
	}
	return count > 0, nil
}

// GetHeadlinesByDay is the HeadlineStore range query over one partition.
func (s *Store) GetHeadlinesByDay(ctx context.Context, day string) ([]core.Headline, error) {
	var headlines []core.Headline
	err := s.db.SelectContext(ctx, &headlines,
		`SELECT * FROM headlines WHERE year_month_day = ? ORDER BY headline_id`, day)
	if err != nil {
		return nil, fmt.Errorf("get headlines by day: %w", err)
	}
	return headlines, nil
}

// GetSurvivors returns the live survivor cohort for day, the pool the
// cross-day meta-tournament draws from.
func (s *Store) GetSurvivors(ctx context.Context, day string) ([]core.Headline, error) {
	var headlines []core.Headline
	err := s.db.SelectContext(ctx, &headlines,
		`SELECT * FROM headlines WHERE year_month_day = ? AND survived = 1 ORDER BY headline_id`, day)
	if err != nil {
		return nil, fmt.Errorf("get survivors: %w", err)
	}
	return headlines, nil
}

// UpdateRanks is the HeadlineStore single-item update the Tournament
// Engine uses on each headline once a run's ranking is complete: it sets
// Rank/TournamentBatch/Survived and,
// when crossDayRank is non-nil, CrossDayRank. Passing a nil rank performs
// the attribute-remove the spec calls for when a headline drops out of
// the live cohort.
func (s *Store) UpdateRanks(ctx context.Context, day, headlineID string, rank, crossDayRank, batch *int, survived *bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE headlines
		SET rank = ?, cross_day_rank = COALESCE(?, cross_day_rank), tournament_batch = ?, survived = ?
		WHERE year_month_day = ? AND headline_id = ?`,
		rank, crossDayRank, batch, survived, day, headlineID)
	if err != nil {
		return fmt.Errorf("update ranks: %w", err)
	}
	s.publishHeadline(HeadlineEvent{EventName: EventModify, NewImage: core.Headline{
		YearMonthDay: day, HeadlineId: headlineID, Rank: rank, CrossDayRank: crossDayRank,
		TournamentBatch: batch, Survived: survived,
	}})
	return nil
}

// PolishHeadline replaces a headline's text with the polish pass's output
// and records the prior text in OriginalSubverted, the write a headline
// receives at most once.
func (s *Store) PolishHeadline(ctx context.Context, day, headlineID, newText, priorText string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE headlines SET headline = ?, original_subverted = ?
		WHERE year_month_day = ? AND headline_id = ? AND original_subverted IS NULL`,
		newText, priorText, day, headlineID)
	if err != nil {
		return fmt.Errorf("polish headline: %w", err)
	}
	return nil
}

func (s *Store) SubscribeHeadlines() chan HeadlineEvent {
	ch := make(chan HeadlineEvent, 64)
	s.mu.Lock()
	s.headlineSubs = append(s.headlineSubs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) publishHeadline(evt HeadlineEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.headlineSubs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// --- Tournament lease ---

// AcquireTournamentLock conditionally inserts a lease row for day, failing
// with core.ErrConflict if a live lease is already held. This belt-and-
// suspenders lease sits on top of the single-writer-per-day discipline the
// stream consumer already provides.
func (s *Store) AcquireTournamentLock(ctx context.Context, day, holder string, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `DELETE FROM tournament_locks WHERE year_month_day = ? AND expires_at < ?`, day, now)
	if err != nil {
		return fmt.Errorf("sweep expired locks: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tournament_locks (year_month_day, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)`, day, holder, now, now.Add(ttl))
	if err != nil {
		if isUniqueConstraint(err) {
			return core.ErrConflict
		}
		return fmt.Errorf("acquire tournament lock: %w", err)
	}
	return nil
}

// ReleaseTournamentLock drops the lease for day, regardless of holder.
// The Tournament Engine releases the lease it acquired when its run
// returns, on success and error paths alike.
func (s *Store) ReleaseTournamentLock(ctx context.Context, day string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tournament_locks WHERE year_month_day = ?`, day)
	if err != nil {
		return fmt.Errorf("release tournament lock: %w", err)
	}
	return nil
}

func isUniqueConstraint(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
