package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
	"github.com/justinhartfield/protein-empire-cms/pkg/stores"
)

// Example demonstrates recording a seed run in the ledger.
func Example() {
	ctx := context.Background()

	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	started := time.Now()
	if err := store.BeginRun(ctx, "run-1", []string{"proteinbars.co"}); err != nil {
		log.Fatal(err)
	}

	res := engine.EntityResult{
		Site:     "proteinbars.co",
		Kind:     engine.KindSite,
		Key:      "proteinbars.co",
		Identity: engine.Identity{ID: 1},
		Outcome:  engine.OutcomeCreated,
	}
	if err := store.RecordEntity(ctx, "run-1", res); err != nil {
		log.Fatal(err)
	}

	summary := &engine.RunSummary{
		RunID:       "run-1",
		StartedAt:   started,
		CompletedAt: time.Now(),
		Sites: []*engine.SiteResult{{
			Site:     engine.Site{Domain: "proteinbars.co"},
			SiteID:   engine.Identity{ID: 1},
			Entities: []engine.EntityResult{res},
		}},
	}
	if err := store.CompleteRun(ctx, summary); err != nil {
		log.Fatal(err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s: %s, created=%d\n", run.ID, run.Status, run.Created)

	sites, err := store.ListRunSites(ctx, "run-1")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s: %s\n", sites[0].Site, sites[0].Status)

	// Output:
	// run-1: completed, created=1
	// proteinbars.co: seeded
}
