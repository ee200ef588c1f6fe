package stores

import (
	"context"
	"errors"
	"time"

	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
	"github.com/justinhartfield/protein-empire-cms/pkg/notifier"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// RunStatus represents the status of a seed run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
)

// SiteStatus represents how far a site got in a run
type SiteStatus string

const (
	SiteStatusSeeded SiteStatus = "seeded"
	SiteStatusFailed SiteStatus = "failed"
)

// Run represents one seed run
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	Sites       []string   `json:"sites"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Created     int        `json:"created"`
	Existing    int        `json:"existing"`
	Failed      int        `json:"failed"`
	FailedSites int        `json:"failed_sites"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// RunSite is the per-site outcome of a run
type RunSite struct {
	RunID        string     `json:"run_id"`
	Site         string     `json:"site"`
	SiteID       *int64     `json:"site_id,omitempty"`
	Status       SiteStatus `json:"status"`
	Error        *string    `json:"error,omitempty"`
	FixtureError *string    `json:"fixture_error,omitempty"`
	Notices      []string   `json:"notices"`
}

// EntityOutcome records what happened to one entity in a run
type EntityOutcome struct {
	ID         int64          `json:"id"`
	RunID      string         `json:"run_id"`
	Site       string         `json:"site"`
	Kind       engine.Kind    `json:"kind"`
	Slug       string         `json:"slug"`
	RemoteID   *int64         `json:"remote_id,omitempty"`
	Outcome    engine.Outcome `json:"outcome"`
	ErrorClass *string        `json:"error_class,omitempty"`
	Error      *string        `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Notification is a delivered (or attempted) change notification
type Notification struct {
	ID         int64             `json:"id"`
	Site       string            `json:"site"`
	EventCount int               `json:"event_count"`
	Status     notifier.Delivery `json:"status"`
	Error      *string           `json:"error,omitempty"`
	SentAt     time.Time         `json:"sent_at"`
}

// Store defines the interface for the run ledger
type Store interface {
	engine.Recorder
	notifier.Recorder

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run queries
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	ListRunSites(ctx context.Context, runID string) ([]*RunSite, error)
	ListEntityOutcomes(ctx context.Context, runID string, outcome *engine.Outcome) ([]*EntityOutcome, error)
	DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error)

	// Notification queries
	ListNotifications(ctx context.Context, limit, offset int) ([]*Notification, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
