package engine

import (
	"context"
)

// ContentAPI is the create/read surface of the content store used by the engine.
type ContentAPI interface {
	// Create creates an entity in the named collection and returns its identity.
	Create(ctx context.Context, resource string, fields map[string]any) (Identity, error)

	// Find returns the identities of entities matching all filters, in the
	// order the store returns them.
	Find(ctx context.Context, resource string, filters ...Filter) ([]Identity, error)
}

// FixtureSource supplies the recipes and packs for a site.
// Implementations return an error wrapping ErrFixtureMissing when a site
// has no fixture file.
type FixtureSource interface {
	Recipes(domain string) ([]Recipe, error)
	Packs(domain string) ([]Pack, error)
}

// Recorder persists run history. Recorder errors never fail a run.
type Recorder interface {
	BeginRun(ctx context.Context, runID string, domains []string) error
	RecordEntity(ctx context.Context, runID string, result EntityResult) error
	CompleteRun(ctx context.Context, summary *RunSummary) error
}

// Reporter receives progress while a run executes.
type Reporter interface {
	SiteStarted(site Site)
	EntityDone(result EntityResult)
	Notice(domain, message string)
	SiteDone(result *SiteResult)
}
