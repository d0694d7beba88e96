// Package store persists economic events and forum posts into Postgres and
// answers the queries the analyzer, aggregator, and monitor need.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"sentimentpipe/internal/types"
)

// pool is the subset of *pgxpool.Pool the Store needs; satisfied by both a
// pool and a transaction, which lets dry-run mode route all operations
// through a pgx.Tx that gets rolled back instead of committed.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store persists and queries economic events and forum posts.
type Store struct {
	pgpool *pgxpool.Pool
	pool   pool // either pgpool or an open dry-run transaction
	tracer trace.Tracer
	dryRun bool
	tx     pgx.Tx
}

// Connect opens a pgx connection pool sized per cfg.
func Connect(ctx context.Context, cfg DBConfig, tracer trace.Tracer) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.PoolSize + cfg.MaxOverflow)
	poolCfg.MinConns = int32(min(cfg.PoolSize, 1))

	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return &Store{pgpool: p, pool: p, tracer: tracer}, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	if s.pgpool != nil {
		s.pgpool.Close()
	}
}

// BeginDryRun starts a transaction that every subsequent operation on the
// returned Store runs inside. The caller must call Rollback when done;
// per spec.md's dry-run contract, it is never committed.
func (s *Store) BeginDryRun(ctx context.Context) (*Store, error) {
	tx, err := s.pgpool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin dry-run transaction: %w", err)
	}
	return &Store{pgpool: s.pgpool, pool: tx, tracer: s.tracer, dryRun: true, tx: tx}, nil
}

// Rollback rolls back a dry-run transaction started by BeginDryRun.
func (s *Store) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Rollback(ctx)
}

func (s *Store) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

// UpsertEvents inserts or updates events matched on (timestamp, event_name,
// currency). Non-key columns are updated on conflict (a null incoming
// sentiment_score or raw_response keeps the stored value) and updated_at is
// refreshed. Runs as a single batch — transactional per call.
func (s *Store) UpsertEvents(ctx context.Context, events []types.EconomicEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	ctx, span := s.startSpan(ctx, "store.upsert-events")
	defer span.End()

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
INSERT INTO economic_events (
    timestamp, currency, event_name, impact, actual, forecast, previous, sentiment_score, raw_response
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (timestamp, event_name, currency) DO UPDATE SET
    impact = EXCLUDED.impact,
    actual = EXCLUDED.actual,
    forecast = EXCLUDED.forecast,
    previous = EXCLUDED.previous,
    sentiment_score = COALESCE(EXCLUDED.sentiment_score, economic_events.sentiment_score),
    raw_response = COALESCE(EXCLUDED.raw_response, economic_events.raw_response),
    updated_at = NOW()
RETURNING id`,
			e.Timestamp.UTC(), e.Currency, e.EventName, string(e.Impact),
			nullString(e.Actual), nullString(e.Forecast), nullString(e.Previous),
			nullFloat(e.SentimentScore), nullBytes(e.RawResponse),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	count := 0
	for range events {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			return count, fmt.Errorf("upsert event: %w", err)
		}
		count++
	}
	return count, nil
}

// UpsertPosts inserts or updates posts matched on external_id.
func (s *Store) UpsertPosts(ctx context.Context, posts []types.ForumPost) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	ctx, span := s.startSpan(ctx, "store.upsert-posts")
	defer span.End()

	batch := &pgx.Batch{}
	for _, p := range posts {
		symSent, err := json.Marshal(p.SymbolSentiments)
		if err != nil {
			return 0, fmt.Errorf("marshal symbol_sentiments: %w", err)
		}
		batch.Queue(`
INSERT INTO forum_posts (
    external_id, channel, title, body, url, score, num_comments, flair,
    timestamp, fetched_at, symbols, symbol_sentiments, sentiment_score, raw_response
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8,
    $9, $10, $11, $12, $13, $14
)
ON CONFLICT (external_id) DO UPDATE SET
    channel = EXCLUDED.channel,
    title = EXCLUDED.title,
    body = EXCLUDED.body,
    url = EXCLUDED.url,
    score = EXCLUDED.score,
    num_comments = EXCLUDED.num_comments,
    flair = EXCLUDED.flair,
    fetched_at = EXCLUDED.fetched_at,
    updated_at = NOW()
RETURNING id`,
			p.ExternalID, p.Channel, p.Title, nullString2(p.Body), nullString2(p.URL),
			p.Score, p.NumComments, nullString2(p.Flair),
			p.Timestamp.UTC(), p.FetchedAt.UTC(), p.Symbols, symSent,
			nullFloat(p.SentimentScore), nullBytes(p.RawResponse),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	count := 0
	for range posts {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			return count, fmt.Errorf("upsert post: %w", err)
		}
		count++
	}
	return count, nil
}

// UnscoredEvents returns events where sentiment_score is null, actual is
// not null, and impact is not holiday.
func (s *Store) UnscoredEvents(ctx context.Context, limit int) ([]types.EconomicEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	ctx, span := s.startSpan(ctx, "store.unscored-events")
	defer span.End()

	rows, err := s.pool.Query(ctx, `
SELECT id, timestamp, currency, event_name, impact, actual, forecast, previous,
       sentiment_score, raw_response, created_at, updated_at
FROM economic_events
WHERE sentiment_score IS NULL AND actual IS NOT NULL AND impact <> 'holiday'
ORDER BY timestamp ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unscored events: %w", err)
	}
	defer rows.Close()

	var out []types.EconomicEvent
	for rows.Next() {
		e, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UnscoredPosts returns posts where sentiment_score is null.
func (s *Store) UnscoredPosts(ctx context.Context, limit int) ([]types.ForumPost, error) {
	if limit <= 0 {
		limit = 500
	}
	ctx, span := s.startSpan(ctx, "store.unscored-posts")
	defer span.End()

	rows, err := s.pool.Query(ctx, `
SELECT id, external_id, channel, title, body, url, score, num_comments, flair,
       timestamp, fetched_at, symbols, symbol_sentiments, sentiment_score, raw_response,
       created_at, updated_at
FROM forum_posts
WHERE sentiment_score IS NULL
ORDER BY timestamp ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unscored posts: %w", err)
	}
	defer rows.Close()

	var out []types.ForumPost
	for rows.Next() {
		p, err := scanPostRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateEventScore sets an event's sentiment score and raw response in a
// single-row update, refreshing updated_at.
func (s *Store) UpdateEventScore(ctx context.Context, id int64, score float64, rawResponse []byte) error {
	ctx, span := s.startSpan(ctx, "store.update-event-score")
	defer span.End()

	clamped := types.ClampScore(score)
	tag, err := s.pool.Exec(ctx, `
UPDATE economic_events
SET sentiment_score = $2, raw_response = $3, updated_at = NOW()
WHERE id = $1`, id, clamped, nullBytes(rawResponse))
	if err != nil {
		return fmt.Errorf("update event score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdatePostScore sets a post's sentiment score, symbols, symbol sentiments,
// and raw response in a single-row update.
func (s *Store) UpdatePostScore(ctx context.Context, id int64, score float64, symbols []string, symbolSentiments map[string]float64, rawResponse []byte) error {
	ctx, span := s.startSpan(ctx, "store.update-post-score")
	defer span.End()

	symSent, err := json.Marshal(symbolSentiments)
	if err != nil {
		return fmt.Errorf("marshal symbol_sentiments: %w", err)
	}
	clamped := types.ClampScore(score)
	tag, err := s.pool.Exec(ctx, `
UPDATE forum_posts
SET sentiment_score = $2, symbols = $3, symbol_sentiments = $4, raw_response = $5, updated_at = NOW()
WHERE id = $1`, id, clamped, symbols, symSent, nullBytes(rawResponse))
	if err != nil {
		return fmt.Errorf("update post score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// EventsForCurrency returns scored events for ccy with timestamp >= since.
func (s *Store) EventsForCurrency(ctx context.Context, ccy string, since time.Time) ([]types.EconomicEvent, error) {
	ctx, span := s.startSpan(ctx, "store.events-for-currency")
	defer span.End()

	rows, err := s.pool.Query(ctx, `
SELECT id, timestamp, currency, event_name, impact, actual, forecast, previous,
       sentiment_score, raw_response, created_at, updated_at
FROM economic_events
WHERE currency = $1 AND sentiment_score IS NOT NULL AND timestamp >= $2
ORDER BY timestamp ASC`, ccy, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query events for currency: %w", err)
	}
	defer rows.Close()

	var out []types.EconomicEvent
	for rows.Next() {
		e, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AverageSentiment returns the mean sentiment_score and the row count for
// scored events in ccy with timestamp >= since. Returns (0, 0, nil) when no
// events qualify.
func (s *Store) AverageSentiment(ctx context.Context, ccy string, since time.Time) (float64, int, error) {
	ctx, span := s.startSpan(ctx, "store.average-sentiment")
	defer span.End()

	var avg pgtype.Float8
	var count int
	err := s.pool.QueryRow(ctx, `
SELECT AVG(sentiment_score), COUNT(*)
FROM economic_events
WHERE currency = $1 AND sentiment_score IS NOT NULL AND timestamp >= $2`,
		ccy, since.UTC()).Scan(&avg, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("query average sentiment: %w", err)
	}
	if !avg.Valid {
		return 0, 0, nil
	}
	return avg.Float64, count, nil
}

func scanEventRow(s interface{ Scan(dest ...any) error }) (types.EconomicEvent, error) {
	var e types.EconomicEvent
	var impact string
	var actual, forecast, previous pgtype.Text
	var score pgtype.Float8
	var raw []byte

	if err := s.Scan(
		&e.ID, &e.Timestamp, &e.Currency, &e.EventName, &impact,
		&actual, &forecast, &previous, &score, &raw,
		&e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return e, fmt.Errorf("scan event row: %w", err)
	}

	e.Timestamp = e.Timestamp.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	e.Impact = types.ParseImpact(impact)
	if actual.Valid {
		e.Actual = actual.String
	}
	if forecast.Valid {
		e.Forecast = forecast.String
	}
	if previous.Valid {
		e.Previous = previous.String
	}
	if score.Valid {
		v := score.Float64
		e.SentimentScore = &v
	}
	e.RawResponse = raw
	return e, nil
}

func scanPostRow(s interface{ Scan(dest ...any) error }) (types.ForumPost, error) {
	var p types.ForumPost
	var body, url, flair pgtype.Text
	var score pgtype.Float8
	var symSent []byte
	var raw []byte

	if err := s.Scan(
		&p.ID, &p.ExternalID, &p.Channel, &p.Title, &body, &url, &p.Score, &p.NumComments, &flair,
		&p.Timestamp, &p.FetchedAt, &p.Symbols, &symSent, &score, &raw,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return p, fmt.Errorf("scan post row: %w", err)
	}

	p.Timestamp = p.Timestamp.UTC()
	p.FetchedAt = p.FetchedAt.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if body.Valid {
		v := body.String
		p.Body = &v
	}
	if url.Valid {
		v := url.String
		p.URL = &v
	}
	if flair.Valid {
		v := flair.String
		p.Flair = &v
	}
	if score.Valid {
		v := score.Float64
		p.SentimentScore = &v
	}
	if len(symSent) > 0 {
		_ = json.Unmarshal(symSent, &p.SymbolSentiments)
	}
	p.RawResponse = raw
	return p, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullString2(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullBytes(v []byte) any {
	if len(v) == 0 {
		return nil
	}
	return string(v)
}
