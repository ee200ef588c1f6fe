package stores

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
	"github.com/justinhartfield/protein-empire-cms/pkg/notifier"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleSummary(runID string) *engine.RunSummary {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	bars := &engine.SiteResult{
		Site:    engine.Site{Domain: "proteinbars.co"},
		SiteID:  engine.Identity{ID: 1},
		Notices: []string{"no recipe pack fixtures"},
		Entities: []engine.EntityResult{
			{Site: "proteinbars.co", Kind: engine.KindSite, Key: "proteinbars.co", Identity: engine.Identity{ID: 1}, Outcome: engine.OutcomeCreated},
			{Site: "proteinbars.co", Kind: engine.KindCategory, Key: "breakfast", Identity: engine.Identity{ID: 2}, Outcome: engine.OutcomeExisting},
			{Site: "proteinbars.co", Kind: engine.KindRecipe, Key: "choc", Outcome: engine.OutcomeFailed, Err: engine.NewError(engine.ErrorClassThrottled, "rate limited", nil)},
		},
	}
	cookies := &engine.SiteResult{
		Site:       engine.Site{Domain: "proteincookies.co"},
		Err:        engine.NewTransientError("connection refused", nil),
		FixtureErr: errors.New("recipes.json: unexpected EOF"),
		Entities: []engine.EntityResult{
			{Site: "proteincookies.co", Kind: engine.KindSite, Key: "proteincookies.co", Outcome: engine.OutcomeFailed, Err: errors.New("boom")},
		},
	}

	return &engine.RunSummary{
		RunID:       runID,
		StartedAt:   started,
		CompletedAt: started.Add(90 * time.Second),
		Sites:       []*engine.SiteResult{bars, cookies},
	}
}

func recordSummary(t *testing.T, store *SQLiteStore, summary *engine.RunSummary) {
	t.Helper()
	ctx := context.Background()

	var domains []string
	for _, site := range summary.Sites {
		domains = append(domains, site.Site.Domain)
	}
	if err := store.BeginRun(ctx, summary.RunID, domains); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	for _, site := range summary.Sites {
		for _, res := range site.Entities {
			if err := store.RecordEntity(ctx, summary.RunID, res); err != nil {
				t.Fatalf("RecordEntity failed: %v", err)
			}
		}
	}
	if err := store.CompleteRun(ctx, summary); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("Expected error for empty path")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Second migration failed: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.BeginRun(ctx, "run-1", []string{"proteinbars.co"}); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != RunStatusRunning {
		t.Errorf("Expected status %s, got %s", RunStatusRunning, run.Status)
	}
	if run.CompletedAt != nil || run.Duration() != 0 {
		t.Error("Expected a running run to have no completion time")
	}
	if len(run.Sites) != 1 || run.Sites[0] != "proteinbars.co" {
		t.Errorf("Unexpected sites %v", run.Sites)
	}
}

func TestCompleteRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	summary := sampleSummary("run-1")
	recordSummary(t, store, summary)

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != RunStatusCompleted {
		t.Errorf("Expected status %s, got %s", RunStatusCompleted, run.Status)
	}
	if run.Created != 1 || run.Existing != 1 || run.Failed != 2 {
		t.Errorf("Expected 1/1/2, got %d/%d/%d", run.Created, run.Existing, run.Failed)
	}
	if run.FailedSites != 1 {
		t.Errorf("Expected 1 failed site, got %d", run.FailedSites)
	}
	if run.CompletedAt == nil {
		t.Fatal("Expected completion time")
	}
	if !run.CompletedAt.Equal(summary.CompletedAt) {
		t.Errorf("Expected completion at %s, got %s", summary.CompletedAt, run.CompletedAt)
	}

	sites, err := store.ListRunSites(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListRunSites failed: %v", err)
	}
	if len(sites) != 2 {
		t.Fatalf("Expected 2 run sites, got %d", len(sites))
	}

	bars := sites[0]
	if bars.Site != "proteinbars.co" || bars.Status != SiteStatusSeeded {
		t.Errorf("Unexpected first site %+v", bars)
	}
	if bars.SiteID == nil || *bars.SiteID != 1 {
		t.Errorf("Expected site id 1, got %v", bars.SiteID)
	}
	if len(bars.Notices) != 1 || bars.Notices[0] != "no recipe pack fixtures" {
		t.Errorf("Unexpected notices %v", bars.Notices)
	}
	if bars.Error != nil || bars.FixtureError != nil {
		t.Error("Expected no errors for a seeded site")
	}

	cookies := sites[1]
	if cookies.Status != SiteStatusFailed {
		t.Errorf("Expected failed status, got %s", cookies.Status)
	}
	if cookies.SiteID != nil {
		t.Errorf("Expected no site id for a failed site, got %d", *cookies.SiteID)
	}
	if cookies.Error == nil || cookies.FixtureError == nil {
		t.Fatal("Expected both errors to be recorded")
	}
	if *cookies.FixtureError != "recipes.json: unexpected EOF" {
		t.Errorf("Unexpected fixture error %q", *cookies.FixtureError)
	}
	if len(cookies.Notices) != 0 {
		t.Errorf("Expected empty notices, got %v", cookies.Notices)
	}
}

func TestCompleteRunCancelled(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	summary := sampleSummary("run-1")
	summary.Err = context.Canceled
	recordSummary(t, store, summary)

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != RunStatusCancelled {
		t.Errorf("Expected status %s, got %s", RunStatusCancelled, run.Status)
	}
}

func TestCompleteRunUnknownRun(t *testing.T) {
	store := setupTestStore(t)

	err := store.CompleteRun(context.Background(), sampleSummary("missing"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListEntityOutcomes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	recordSummary(t, store, sampleSummary("run-1"))

	all, err := store.ListEntityOutcomes(ctx, "run-1", nil)
	if err != nil {
		t.Fatalf("ListEntityOutcomes failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Expected 4 outcomes, got %d", len(all))
	}
	if all[0].Kind != engine.KindSite || all[0].RemoteID == nil || *all[0].RemoteID != 1 {
		t.Errorf("Unexpected first outcome %+v", all[0])
	}

	failed := engine.OutcomeFailed
	failures, err := store.ListEntityOutcomes(ctx, "run-1", &failed)
	if err != nil {
		t.Fatalf("ListEntityOutcomes failed: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("Expected 2 failures, got %d", len(failures))
	}

	recipe := failures[0]
	if recipe.Slug != "choc" || recipe.RemoteID != nil {
		t.Errorf("Unexpected failure %+v", recipe)
	}
	if recipe.ErrorClass == nil || *recipe.ErrorClass != string(engine.ErrorClassThrottled) {
		t.Errorf("Expected throttled class, got %v", recipe.ErrorClass)
	}
	if failures[1].ErrorClass == nil || *failures[1].ErrorClass != string(engine.ErrorClassPermanent) {
		t.Errorf("Expected unclassified errors to be permanent, got %v", failures[1].ErrorClass)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.BeginRun(ctx, fmt.Sprintf("run-%d", i), nil); err != nil {
			t.Fatalf("BeginRun failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Errorf("Expected newest first, got %s, %s", runs[0].ID, runs[1].ID)
	}
	if runs[0].Sites == nil || len(runs[0].Sites) != 0 {
		t.Errorf("Expected empty site list, got %v", runs[0].Sites)
	}

	rest, err := store.ListRuns(ctx, 10, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != "run-0" {
		t.Errorf("Expected run-0 on the second page, got %v", rest)
	}
}

func TestDeleteRunsBefore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	recordSummary(t, store, sampleSummary("old"))
	cutoff := time.Now()
	time.Sleep(2 * time.Millisecond)
	if err := store.BeginRun(ctx, "new", nil); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	deleted, err := store.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteRunsBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted run, got %d", deleted)
	}

	if _, err := store.GetRun(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected old run to be gone, got %v", err)
	}
	if _, err := store.GetRun(ctx, "new"); err != nil {
		t.Errorf("Expected new run to survive, got %v", err)
	}

	outcomes, err := store.ListEntityOutcomes(ctx, "old", nil)
	if err != nil {
		t.Fatalf("ListEntityOutcomes failed: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("Expected outcomes to be deleted with their run, got %d", len(outcomes))
	}
	sites, err := store.ListRunSites(ctx, "old")
	if err != nil {
		t.Fatalf("ListRunSites failed: %v", err)
	}
	if len(sites) != 0 {
		t.Errorf("Expected run sites to be deleted with their run, got %d", len(sites))
	}
}

func TestRecordNotification(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	at := time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC)
	if err := store.RecordNotification(ctx, notifier.Notification{Site: "proteinbars.co", Timestamp: at, Events: 3}, notifier.DeliverySent, nil); err != nil {
		t.Fatalf("RecordNotification failed: %v", err)
	}
	if err := store.RecordNotification(ctx, notifier.Notification{Timestamp: at.Add(time.Minute), Events: 1}, notifier.DeliveryFailed, errors.New("webhook returned 401")); err != nil {
		t.Fatalf("RecordNotification failed: %v", err)
	}

	notes, err := store.ListNotifications(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(notes))
	}

	latest := notes[0]
	if latest.Site != "" || latest.Status != notifier.DeliveryFailed {
		t.Errorf("Unexpected latest notification %+v", latest)
	}
	if latest.Error == nil || *latest.Error != "webhook returned 401" {
		t.Errorf("Expected dispatch error to be recorded, got %v", latest.Error)
	}

	first := notes[1]
	if first.Site != "proteinbars.co" || first.EventCount != 3 || first.Error != nil {
		t.Errorf("Unexpected first notification %+v", first)
	}
	if !first.SentAt.Equal(at) {
		t.Errorf("Expected sent at %s, got %s", at, first.SentAt)
	}
}

func TestHealthCheck(t *testing.T) {
	store := setupTestStore(t)

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}

	uninit, _ := NewSQLiteStore(Config{Path: ":memory:"})
	if err := uninit.HealthCheck(context.Background()); err == nil {
		t.Error("Expected error for uninitialized store")
	}
}
