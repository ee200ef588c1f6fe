package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
	"github.com/justinhartfield/protein-empire-cms/pkg/notifier"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

var _ Store = (*SQLiteStore)(nil)

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.Path == memoryPath {
		// every pooled connection would open its own empty database
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	} else {
		if cfg.MaxOpenConns == 0 {
			cfg.MaxOpenConns = 10
		}
		if cfg.MaxIdleConns == 0 {
			cfg.MaxIdleConns = 2
		}
		if cfg.ConnMaxLifetime == 0 {
			cfg.ConnMaxLifetime = 5 * time.Minute
		}
	}

	return &SQLiteStore{cfg: cfg}, nil
}

func (s *SQLiteStore) dsn() string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	if s.cfg.Path != memoryPath {
		params.Add("_pragma", "journal_mode(WAL)")
		params.Add("_pragma", "synchronous(NORMAL)")
	}
	params.Set("_txlock", "immediate")
	return s.cfg.Path + "?" + params.Encode()
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginRun records the start of a seed run
func (s *SQLiteStore) BeginRun(ctx context.Context, runID string, domains []string) error {
	sites, err := json.Marshal(nonNilStrings(domains))
	if err != nil {
		return fmt.Errorf("failed to encode sites: %w", err)
	}

	query := `
		INSERT INTO runs (id, status, sites, started_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, runID, RunStatusRunning, string(sites), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// RecordEntity appends one entity outcome to a run
func (s *SQLiteStore) RecordEntity(ctx context.Context, runID string, res engine.EntityResult) error {
	query := `
		INSERT INTO entity_outcomes (
			run_id, site, kind, slug, remote_id, outcome, error_class, error, duration_ms, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var remoteID *int64
	if res.Identity.ID != 0 {
		id := res.Identity.ID
		remoteID = &id
	}
	var errClass, errMsg *string
	if res.Err != nil {
		class := string(engine.ClassOf(res.Err))
		msg := res.Err.Error()
		errClass, errMsg = &class, &msg
	}

	_, err := s.db.ExecContext(ctx, query,
		runID,
		res.Site,
		res.Kind,
		res.Key,
		remoteID,
		res.Outcome,
		errClass,
		errMsg,
		res.Duration.Milliseconds(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record entity outcome: %w", err)
	}
	return nil
}

// CompleteRun stores the final counts of a run and its per-site results
func (s *SQLiteStore) CompleteRun(ctx context.Context, summary *engine.RunSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	status := RunStatusCompleted
	if summary.Err != nil {
		status = RunStatusCancelled
	}
	created, existing, failed := summary.Totals()

	result, err := tx.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, completed_at = ?, created = ?, existing = ?, failed = ?, failed_sites = ?
		WHERE id = ?
	`, status, summary.CompletedAt.UTC(), created, existing, failed, len(summary.FailedSites()), summary.RunID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", summary.RunID, ErrNotFound)
	}

	for _, site := range summary.Sites {
		if err := insertRunSite(ctx, tx, summary.RunID, site); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func insertRunSite(ctx context.Context, tx *sql.Tx, runID string, site *engine.SiteResult) error {
	notices, err := json.Marshal(nonNilStrings(site.Notices))
	if err != nil {
		return fmt.Errorf("failed to encode notices: %w", err)
	}

	status := SiteStatusSeeded
	var siteID *int64
	var siteErr, fixtureErr *string
	if site.Err != nil {
		status = SiteStatusFailed
		msg := site.Err.Error()
		siteErr = &msg
	} else if site.SiteID.ID != 0 {
		id := site.SiteID.ID
		siteID = &id
	}
	if site.FixtureErr != nil {
		msg := site.FixtureErr.Error()
		fixtureErr = &msg
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_sites (run_id, site, site_id, status, error, fixture_error, notices)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, site) DO UPDATE SET
			site_id = excluded.site_id,
			status = excluded.status,
			error = excluded.error,
			fixture_error = excluded.fixture_error,
			notices = excluded.notices
	`, runID, site.Site.Domain, siteID, status, siteErr, fixtureErr, string(notices))
	if err != nil {
		return fmt.Errorf("failed to record site %s: %w", site.Site.Domain, err)
	}
	return nil
}

// RecordNotification stores one notification attempt
func (s *SQLiteStore) RecordNotification(ctx context.Context, n notifier.Notification, delivery notifier.Delivery, dispatchErr error) error {
	var errMsg *string
	if dispatchErr != nil {
		msg := dispatchErr.Error()
		errMsg = &msg
	}
	sentAt := n.Timestamp
	if sentAt.IsZero() {
		sentAt = time.Now()
	}

	query := `
		INSERT INTO notifications (site, event_count, status, error, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, n.Site, n.Events, delivery, errMsg, sentAt.UTC()); err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

const runColumns = `id, status, sites, started_at, completed_at, created, existing, failed, failed_sites`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var sites string
	var completedAt sql.NullTime
	if err := row.Scan(
		&run.ID,
		&run.Status,
		&sites,
		&run.StartedAt,
		&completedAt,
		&run.Created,
		&run.Existing,
		&run.Failed,
		&run.FailedSites,
	); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(sites), &run.Sites); err != nil {
		return nil, fmt.Errorf("failed to decode sites of run %s: %w", run.ID, err)
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs, newest first
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// ListRunSites lists the per-site results of a run in seeding order
func (s *SQLiteStore) ListRunSites(ctx context.Context, runID string) ([]*RunSite, error) {
	query := `
		SELECT run_id, site, site_id, status, error, fixture_error, notices
		FROM run_sites
		WHERE run_id = ?
		ORDER BY rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run sites: %w", err)
	}
	defer rows.Close()

	sites := []*RunSite{}
	for rows.Next() {
		site := &RunSite{}
		var notices string
		if err := rows.Scan(
			&site.RunID,
			&site.Site,
			&site.SiteID,
			&site.Status,
			&site.Error,
			&site.FixtureError,
			&notices,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run site: %w", err)
		}
		if err := json.Unmarshal([]byte(notices), &site.Notices); err != nil {
			return nil, fmt.Errorf("failed to decode notices: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run sites: %w", err)
	}
	return sites, nil
}

// ListEntityOutcomes lists the entity outcomes of a run in recording
// order, optionally restricted to one outcome.
func (s *SQLiteStore) ListEntityOutcomes(ctx context.Context, runID string, outcome *engine.Outcome) ([]*EntityOutcome, error) {
	query := `
		SELECT id, run_id, site, kind, slug, remote_id, outcome, error_class, error, duration_ms, recorded_at
		FROM entity_outcomes
		WHERE run_id = ?
		  AND (? IS NULL OR outcome = ?)
		ORDER BY id ASC
	`

	var filter *string
	if outcome != nil {
		o := string(*outcome)
		filter = &o
	}

	rows, err := s.db.QueryContext(ctx, query, runID, filter, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []*EntityOutcome{}
	for rows.Next() {
		o := &EntityOutcome{}
		var durationMS int64
		if err := rows.Scan(
			&o.ID,
			&o.RunID,
			&o.Site,
			&o.Kind,
			&o.Slug,
			&o.RemoteID,
			&o.Outcome,
			&o.ErrorClass,
			&o.Error,
			&durationMS,
			&o.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entity outcome: %w", err)
		}
		o.Duration = time.Duration(durationMS) * time.Millisecond
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity outcomes: %w", err)
	}
	return outcomes, nil
}

// DeleteRunsBefore deletes runs started before the given time together
// with their sites and outcomes.
func (s *SQLiteStore) DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// ListNotifications lists notifications, newest first
func (s *SQLiteStore) ListNotifications(ctx context.Context, limit, offset int) ([]*Notification, error) {
	query := `
		SELECT id, site, event_count, status, error, sent_at
		FROM notifications
		ORDER BY sent_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notes := []*Notification{}
	for rows.Next() {
		n := &Notification{}
		if err := rows.Scan(
			&n.ID,
			&n.Site,
			&n.EventCount,
			&n.Status,
			&n.Error,
			&n.SentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return notes, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
