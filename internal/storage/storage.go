// Package storage persists scored posts, early warnings and training runs in
// a SQL database through sqlx. SQLite (modernc.org/sqlite, pure Go) is the
// default backend; PostgreSQL is available through lib/pq.
//
// The schema is created on open. Times are stored as Unix nanoseconds so both
// backends round-trip them identically; a post without a timestamp is stored
// with a NULL ts. Post retention is bounded by RotatePosts.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/unrestwatch/internal/models"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id                 TEXT PRIMARY KEY,
		text               TEXT NOT NULL,
		cleaned_text       TEXT NOT NULL,
		ts                 BIGINT,
		region             TEXT NOT NULL,
		user_location      TEXT,
		retweet_count      INTEGER NOT NULL,
		favorite_count     INTEGER NOT NULL,
		polarity           DOUBLE PRECISION NOT NULL,
		subjectivity       DOUBLE PRECISION NOT NULL,
		compound           DOUBLE PRECISION NOT NULL,
		pos                DOUBLE PRECISION NOT NULL,
		neg                DOUBLE PRECISION NOT NULL,
		neu                DOUBLE PRECISION NOT NULL,
		conflict_intensity DOUBLE PRECISION NOT NULL,
		sentiment_label    TEXT NOT NULL,
		risk_level         TEXT NOT NULL,
		inserted_at        BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS posts_ts_idx ON posts (ts)`,
	`CREATE INDEX IF NOT EXISTS posts_inserted_idx ON posts (inserted_at)`,
	`CREATE TABLE IF NOT EXISTS warnings (
		id               TEXT PRIMARY KEY,
		type             TEXT NOT NULL,
		severity         TEXT NOT NULL,
		message          TEXT NOT NULL,
		suggested_action TEXT NOT NULL,
		detected_at      BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS training_runs (
		id            TEXT PRIMARY KEY,
		strategy      TEXT NOT NULL,
		records       INTEGER NOT NULL,
		accuracy      DOUBLE PRECISION NOT NULL,
		started_at    BIGINT NOT NULL,
		finished_at   BIGINT NOT NULL,
		error         TEXT NOT NULL,
		artifact_path TEXT NOT NULL
	)`,
}

// Storage is a SQL-backed store. It is safe for concurrent use.
type Storage struct {
	db       *sqlx.DB
	maxPosts int

	// mu guards lastInsert, which keeps inserted_at strictly increasing so
	// rotation order is total even within one batch.
	mu         sync.Mutex
	lastInsert int64
}

// New opens the database, applies the schema and returns the store.
// maxPosts bounds RotatePosts; 0 disables rotation.
func New(driver, dsn string, maxPosts int) (*Storage, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported storage driver: %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// Every SQLite connection to :memory: is a separate database, and
		// file databases allow a single writer anyway.
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return &Storage{db: db, maxPosts: maxPosts}, nil
}

// Close releases the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

type postRow struct {
	ID                string         `db:"id"`
	Text              string         `db:"text"`
	CleanedText       string         `db:"cleaned_text"`
	Timestamp         sql.NullInt64  `db:"ts"`
	Region            string         `db:"region"`
	UserLocation      sql.NullString `db:"user_location"`
	RetweetCount      int            `db:"retweet_count"`
	FavoriteCount     int            `db:"favorite_count"`
	Polarity          float64        `db:"polarity"`
	Subjectivity      float64        `db:"subjectivity"`
	Compound          float64        `db:"compound"`
	Positive          float64        `db:"pos"`
	Negative          float64        `db:"neg"`
	Neutral           float64        `db:"neu"`
	ConflictIntensity float64        `db:"conflict_intensity"`
	SentimentLabel    string         `db:"sentiment_label"`
	RiskLevel         string         `db:"risk_level"`
	InsertedAt        int64          `db:"inserted_at"`
}

const postColumns = `id, text, cleaned_text, ts, region, user_location, retweet_count, favorite_count,
	polarity, subjectivity, compound, pos, neg, neu, conflict_intensity, sentiment_label, risk_level, inserted_at`

func toPostRow(p models.ScoredPost, insertedAt int64) postRow {
	row := postRow{
		ID:                p.Post.ID,
		Text:              p.Post.Text,
		CleanedText:       p.CleanedText,
		Region:            p.Post.Region,
		RetweetCount:      p.Post.RetweetCount,
		FavoriteCount:     p.Post.FavoriteCount,
		Polarity:          p.Sentiment.Polarity,
		Subjectivity:      p.Sentiment.Subjectivity,
		Compound:          p.Sentiment.Compound,
		Positive:          p.Sentiment.Positive,
		Negative:          p.Sentiment.Negative,
		Neutral:           p.Sentiment.Neutral,
		ConflictIntensity: p.ConflictIntensity,
		SentimentLabel:    string(p.SentimentLabel),
		RiskLevel:         p.RiskLevel.String(),
		InsertedAt:        insertedAt,
	}
	if p.Post.HasTimestamp() {
		row.Timestamp = sql.NullInt64{Int64: p.Post.Timestamp.UnixNano(), Valid: true}
	}
	if p.Post.UserLocation != nil {
		row.UserLocation = sql.NullString{String: *p.Post.UserLocation, Valid: true}
	}
	return row
}

func (r postRow) scoredPost() (models.ScoredPost, error) {
	level, err := models.ParseRiskLevel(r.RiskLevel)
	if err != nil {
		return models.ScoredPost{}, fmt.Errorf("post %s: %w", r.ID, err)
	}
	p := models.ScoredPost{
		Post: models.Post{
			ID:            r.ID,
			Text:          r.Text,
			Region:        r.Region,
			RetweetCount:  r.RetweetCount,
			FavoriteCount: r.FavoriteCount,
		},
		CleanedText: r.CleanedText,
		Sentiment: models.SentimentScore{
			Polarity:     r.Polarity,
			Subjectivity: r.Subjectivity,
			Compound:     r.Compound,
			Positive:     r.Positive,
			Negative:     r.Negative,
			Neutral:      r.Neutral,
		},
		ConflictIntensity: r.ConflictIntensity,
		SentimentLabel:    models.SentimentLabel(r.SentimentLabel),
		RiskLevel:         level,
	}
	if r.Timestamp.Valid {
		p.Post.Timestamp = time.Unix(0, r.Timestamp.Int64).UTC()
	}
	if r.UserLocation.Valid {
		loc := r.UserLocation.String
		p.Post.UserLocation = &loc
	}
	return p, nil
}

// nextInsertStamps reserves n strictly increasing insertion stamps.
func (s *Storage) nextInsertStamps(n int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := time.Now().UnixNano()
	if base <= s.lastInsert {
		base = s.lastInsert + 1
	}
	s.lastInsert = base + int64(n) - 1
	return base
}

// AddScoredPosts stores posts in one transaction. Posts whose ID is already
// stored are skipped. Returns the number of posts inserted.
func (s *Storage) AddScoredPosts(ctx context.Context, posts []models.ScoredPost) (int, error) {
	for i := range posts {
		if err := posts[i].Post.Validate(); err != nil {
			return 0, fmt.Errorf("invalid post at index %d: %w", i, err)
		}
	}
	if len(posts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO posts (` + postColumns + `) VALUES (
		:id, :text, :cleaned_text, :ts, :region, :user_location, :retweet_count, :favorite_count,
		:polarity, :subjectivity, :compound, :pos, :neg, :neu, :conflict_intensity, :sentiment_label, :risk_level, :inserted_at
	) ON CONFLICT (id) DO NOTHING`
	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	base := s.nextInsertStamps(len(posts))
	inserted := 0
	for i, p := range posts {
		res, err := stmt.ExecContext(ctx, toPostRow(p, base+int64(i)))
		if err != nil {
			return 0, fmt.Errorf("failed to insert post %s: %w", p.Post.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit posts: %w", err)
	}
	return inserted, nil
}

func (s *Storage) selectPosts(ctx context.Context, query string, args ...any) ([]models.ScoredPost, error) {
	var rows []postRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	posts := make([]models.ScoredPost, 0, len(rows))
	for _, r := range rows {
		p, err := r.scoredPost()
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// PostsInWindow returns dated posts with since <= timestamp < until, oldest first.
func (s *Storage) PostsInWindow(ctx context.Context, since, until time.Time) ([]models.ScoredPost, error) {
	return s.selectPosts(ctx,
		`SELECT `+postColumns+` FROM posts WHERE ts >= ? AND ts < ? ORDER BY ts, inserted_at`,
		since.UnixNano(), until.UnixNano())
}

// PostsForMonth returns the posts dated within the given UTC calendar month.
func (s *Storage) PostsForMonth(ctx context.Context, month time.Month, year int) ([]models.ScoredPost, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("invalid month: %d", month)
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return s.PostsInWindow(ctx, start, start.AddDate(0, 1, 0))
}

// AllPosts returns every stored post in insertion order.
func (s *Storage) AllPosts(ctx context.Context) ([]models.ScoredPost, error) {
	return s.selectPosts(ctx, `SELECT `+postColumns+` FROM posts ORDER BY inserted_at`)
}

// CountPosts returns the number of stored posts.
func (s *Storage) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM posts`); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

// RotatePosts keeps only the maxPosts most recently inserted posts and
// returns the number removed.
func (s *Storage) RotatePosts(ctx context.Context) (int, error) {
	if s.maxPosts <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM posts WHERE id NOT IN (SELECT id FROM posts ORDER BY inserted_at DESC LIMIT ?)`),
		s.maxPosts)
	if err != nil {
		return 0, fmt.Errorf("failed to rotate posts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type warningRow struct {
	ID              string `db:"id"`
	Type            string `db:"type"`
	Severity        string `db:"severity"`
	Message         string `db:"message"`
	SuggestedAction string `db:"suggested_action"`
	DetectedAt      int64  `db:"detected_at"`
}

// AddWarnings stores delivered or detected warnings.
func (s *Storage) AddWarnings(ctx context.Context, warnings []models.Warning) error {
	for i := range warnings {
		if err := warnings[i].Validate(); err != nil {
			return fmt.Errorf("invalid warning: %w", err)
		}
	}
	if len(warnings) == 0 {
		return nil
	}
	rows := make([]warningRow, len(warnings))
	for i, w := range warnings {
		rows[i] = warningRow{
			ID:              w.ID,
			Type:            string(w.Type),
			Severity:        string(w.Severity),
			Message:         w.Message,
			SuggestedAction: w.SuggestedAction,
			DetectedAt:      w.DetectedAt.UnixNano(),
		}
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO warnings (id, type, severity, message, suggested_action, detected_at)
		 VALUES (:id, :type, :severity, :message, :suggested_action, :detected_at)`, rows)
	if err != nil {
		return fmt.Errorf("failed to insert warnings: %w", err)
	}
	return nil
}

// RecentWarnings returns up to n warnings, newest first.
func (s *Storage) RecentWarnings(ctx context.Context, n int) ([]models.Warning, error) {
	var rows []warningRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT id, type, severity, message, suggested_action, detected_at
		 FROM warnings ORDER BY detected_at DESC, id LIMIT ?`), n)
	if err != nil {
		return nil, fmt.Errorf("failed to query warnings: %w", err)
	}
	out := make([]models.Warning, len(rows))
	for i, r := range rows {
		out[i] = models.Warning{
			ID:              r.ID,
			Type:            models.WarningType(r.Type),
			Severity:        models.Severity(r.Severity),
			Message:         r.Message,
			SuggestedAction: r.SuggestedAction,
			DetectedAt:      time.Unix(0, r.DetectedAt).UTC(),
		}
	}
	return out, nil
}

// TrainingRun records one classifier training job.
type TrainingRun struct {
	ID           string    `json:"id"`
	Strategy     string    `json:"strategy"`
	Records      int       `json:"records"`
	Accuracy     float64   `json:"accuracy"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Error        string    `json:"error,omitempty"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
}

type trainingRunRow struct {
	ID           string  `db:"id"`
	Strategy     string  `db:"strategy"`
	Records      int     `db:"records"`
	Accuracy     float64 `db:"accuracy"`
	StartedAt    int64   `db:"started_at"`
	FinishedAt   int64   `db:"finished_at"`
	Error        string  `db:"error"`
	ArtifactPath string  `db:"artifact_path"`
}

// RecordTrainingRun stores run.
func (s *Storage) RecordTrainingRun(ctx context.Context, run TrainingRun) error {
	if run.ID == "" {
		return fmt.Errorf("training run ID must not be empty")
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO training_runs (id, strategy, records, accuracy, started_at, finished_at, error, artifact_path)
		 VALUES (:id, :strategy, :records, :accuracy, :started_at, :finished_at, :error, :artifact_path)`,
		trainingRunRow{
			ID:           run.ID,
			Strategy:     run.Strategy,
			Records:      run.Records,
			Accuracy:     run.Accuracy,
			StartedAt:    run.StartedAt.UnixNano(),
			FinishedAt:   run.FinishedAt.UnixNano(),
			Error:        run.Error,
			ArtifactPath: run.ArtifactPath,
		})
	if err != nil {
		return fmt.Errorf("failed to record training run: %w", err)
	}
	return nil
}

// TrainingRuns returns up to n runs, newest first.
func (s *Storage) TrainingRuns(ctx context.Context, n int) ([]TrainingRun, error) {
	var rows []trainingRunRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT id, strategy, records, accuracy, started_at, finished_at, error, artifact_path
		 FROM training_runs ORDER BY started_at DESC LIMIT ?`), n)
	if err != nil {
		return nil, fmt.Errorf("failed to query training runs: %w", err)
	}
	out := make([]TrainingRun, len(rows))
	for i, r := range rows {
		out[i] = TrainingRun{
			ID:           r.ID,
			Strategy:     r.Strategy,
			Records:      r.Records,
			Accuracy:     r.Accuracy,
			StartedAt:    time.Unix(0, r.StartedAt).UTC(),
			FinishedAt:   time.Unix(0, r.FinishedAt).UTC(),
			Error:        r.Error,
			ArtifactPath: r.ArtifactPath,
		}
	}
	return out, nil
}
