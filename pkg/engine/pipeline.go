package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/justinhartfield/protein-empire-cms/pkg/telemetry"
)

// Seeder loads fixtures into the content store, one site at a time, in
// Site, Category, Recipe, Pack order.
type Seeder struct {
	api        ContentAPI
	fixtures   FixtureSource
	categories []Category
	upserter   *Upserter

	policy   FallbackPolicy
	recorder Recorder
	reporter Reporter
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
}

// SeederOption configures a Seeder.
type SeederOption func(*Seeder)

// WithFallbackPolicy sets the create-failure fallback policy.
func WithFallbackPolicy(p FallbackPolicy) SeederOption {
	return func(s *Seeder) { s.policy = p }
}

// WithRecorder persists every entity outcome through r.
func WithRecorder(r Recorder) SeederOption {
	return func(s *Seeder) { s.recorder = r }
}

// WithReporter streams progress to r.
func WithReporter(r Reporter) SeederOption {
	return func(s *Seeder) { s.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) SeederOption {
	return func(s *Seeder) { s.logger = l }
}

// WithMetrics records entity outcomes in m.
func WithMetrics(m *telemetry.Metrics) SeederOption {
	return func(s *Seeder) { s.metrics = m }
}

// WithTracer opens a span per run and per site.
func WithTracer(t *telemetry.Tracer) SeederOption {
	return func(s *Seeder) { s.tracer = t }
}

// NewSeeder creates a seeder. categories are created for every site in order.
func NewSeeder(api ContentAPI, fixtures FixtureSource, categories []Category, opts ...SeederOption) *Seeder {
	s := &Seeder{
		api:        api,
		fixtures:   fixtures,
		categories: categories,
		policy:     FallbackAlways,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = telemetry.NopLogger()
	}
	s.logger = s.logger.NewComponentLogger("seeder")
	s.upserter = NewUpserter(api, NewResolver(api, s.logger), s.policy, s.logger)
	return s
}

// Run seeds every site in order. A failing site never stops later sites.
// The returned error is only non-nil when ctx is cancelled; sites not
// reached by then are absent from the summary.
func (s *Seeder) Run(ctx context.Context, sites []Site) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}

	logger := s.logger.WithRunID(summary.RunID)
	logger.WithField("sites", len(sites)).Info("Starting seed run")
	s.metrics.RecordRunStarted()

	if s.tracer != nil {
		spanCtx, span := s.tracer.StartRunSpan(ctx, summary.RunID)
		ctx = spanCtx
		defer span.End()
		if id := telemetry.TraceID(ctx); id != "" {
			logger = logger.WithField("trace_id", id)
		}
	}

	if s.recorder != nil {
		domains := make([]string, len(sites))
		for i, site := range sites {
			domains[i] = site.Domain
		}
		if err := s.recorder.BeginRun(ctx, summary.RunID, domains); err != nil {
			logger.WithError(err).Warn("Failed to record run start")
		}
	}

	var runErr error
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			runErr = NewTransientError("seed run interrupted", err).WithOperation("seed")
			break
		}
		summary.Sites = append(summary.Sites, s.seedSite(ctx, summary.RunID, site))
	}

	summary.CompletedAt = time.Now()
	summary.Err = runErr
	created, existing, failed := summary.Totals()
	status := "completed"
	if runErr != nil {
		status = "cancelled"
	}
	s.metrics.RecordRunCompleted(status, summary.Duration())

	if s.recorder != nil {
		// the run context may already be cancelled
		if err := s.recorder.CompleteRun(context.WithoutCancel(ctx), summary); err != nil {
			logger.WithError(err).Warn("Failed to record run completion")
		}
	}

	logger.WithFields(map[string]interface{}{
		"created":      created,
		"existing":     existing,
		"failed":       failed,
		"failed_sites": len(summary.FailedSites()),
		"duration":     summary.Duration().String(),
	}).Info("Seed run finished")

	return summary, runErr
}

// SeedSite seeds a single site outside of a full run.
func (s *Seeder) SeedSite(ctx context.Context, site Site) *SiteResult {
	summary, _ := s.Run(ctx, []Site{site})
	if len(summary.Sites) == 0 {
		res := newSiteResult(site)
		res.Err = ctx.Err()
		return res
	}
	return summary.Sites[0]
}

func (s *Seeder) seedSite(ctx context.Context, runID string, site Site) (result *SiteResult) {
	result = newSiteResult(site)
	logger := s.logger.WithField("site", site.Domain)

	if s.tracer != nil {
		spanCtx, span := s.tracer.StartSiteSpan(ctx, site.Domain)
		ctx = spanCtx
		defer func() {
			if result.Err != nil {
				telemetry.RecordError(span, result.Err)
			} else {
				telemetry.RecordSuccess(span)
			}
			span.End()
		}()
	}
	if s.reporter != nil {
		s.reporter.SiteStarted(site)
		defer func() { s.reporter.SiteDone(result) }()
	}

	siteRes := s.ensure(ctx, runID, site.Domain, KindSite, site.Fields(), KindSite.Key(site.Domain, 0), result)
	if siteRes.Outcome == OutcomeFailed {
		result.Err = NewError(ClassOf(siteRes.Err), "site could not be ensured", siteRes.Err).
			WithResource(site.Domain).
			WithCode(ErrCodeSiteFailed)
		logger.WithError(siteRes.Err).Error("Site failed, skipping its categories, recipes and packs")
		return result
	}
	result.SiteID = siteRes.Identity
	siteID := siteRes.Identity.ID

	for _, cat := range s.categories {
		res := s.ensure(ctx, runID, site.Domain, KindCategory, cat.Fields(siteID), KindCategory.Key(cat.Slug, siteID), result)
		if res.Outcome != OutcomeFailed {
			result.Categories[cat.Slug] = res.Identity.ID
		}
	}

	recipes, err := s.fixtures.Recipes(site.Domain)
	if err != nil && !s.fixtureProblem(result, "recipes", err) {
		return result
	}

	for _, recipe := range recipes {
		categoryIDs := resolveSlugs(recipe.CategorySlugs, result.Categories)
		res := s.ensure(ctx, runID, site.Domain, KindRecipe, recipe.Fields(siteID, categoryIDs), KindRecipe.Key(recipe.Slug, siteID), result)
		if res.Outcome != OutcomeFailed {
			result.Recipes[recipe.Slug] = res.Identity.ID
		}
	}

	packs, err := s.fixtures.Packs(site.Domain)
	if err != nil && !s.fixtureProblem(result, "packs", err) {
		return result
	}

	for _, pack := range packs {
		recipeIDs := resolveSlugs(pack.RecipeSlugs, result.Recipes)
		res := s.ensure(ctx, runID, site.Domain, KindPack, pack.Fields(siteID, recipeIDs), KindPack.Key(pack.Slug, siteID), result)
		if res.Outcome != OutcomeFailed {
			result.Packs[pack.Slug] = res.Identity.ID
		}
	}

	return result
}

func (s *Seeder) ensure(ctx context.Context, runID, domain string, kind Kind, fields map[string]any, key NaturalKey, into *SiteResult) EntityResult {
	res := s.upserter.ensureTimed(ctx, domain, kind, fields, key)
	into.Entities = append(into.Entities, res)

	s.metrics.RecordEntity(string(kind), string(res.Outcome), res.Duration)
	if res.Err != nil {
		s.metrics.RecordError(string(ClassOf(res.Err)), CodeOf(res.Err))
		s.logger.WithError(res.Err).WithFields(map[string]interface{}{
			"site":      domain,
			"kind":      string(kind),
			"key":       key.Value,
			"retryable": IsTransient(res.Err) || IsThrottled(res.Err),
		}).Warn("Entity failed")
	}
	if s.reporter != nil {
		s.reporter.EntityDone(res)
	}
	if s.recorder != nil {
		if err := s.recorder.RecordEntity(ctx, runID, res); err != nil {
			s.logger.WithError(err).Debug("Failed to record entity outcome")
		}
	}
	return res
}

// fixtureProblem records a fixture load error on result. It reports whether
// the entries that did load can still be seeded.
func (s *Seeder) fixtureProblem(result *SiteResult, what string, err error) bool {
	if skipped := SkippedEntries(err); skipped != nil {
		for _, entry := range skipped {
			s.notice(result, fmt.Sprintf("skipped malformed %s entry: %s", what, entry))
		}
		return true
	}
	if errors.Is(err, ErrFixtureMissing) {
		s.notice(result, fmt.Sprintf("no %s fixture, skipping", what))
		return false
	}
	domain := result.Site.Domain
	result.FixtureErr = fmt.Errorf("%s fixture: %w", what, err)
	s.logger.WithError(err).WithField("site", domain).Error("Fixture could not be loaded")
	if s.reporter != nil {
		s.reporter.Notice(domain, result.FixtureErr.Error())
	}
	return false
}

func (s *Seeder) notice(result *SiteResult, msg string) {
	domain := result.Site.Domain
	result.Notices = append(result.Notices, msg)
	s.logger.WithField("site", domain).Info(msg)
	if s.reporter != nil {
		s.reporter.Notice(domain, msg)
	}
}

// resolveSlugs maps slugs to ids, silently dropping unknown slugs.
func resolveSlugs(slugs []string, ids map[string]int64) []int64 {
	out := make([]int64, 0, len(slugs))
	for _, slug := range slugs {
		if id, ok := ids[slug]; ok {
			out = append(out, id)
		}
	}
	return out
}
