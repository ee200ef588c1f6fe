package commands

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
)

const (
	markOK   = "✓"
	markWarn = "⚠"
	markFail = "✗"
)

// consoleReporter prints per-entity progress markers.
type consoleReporter struct {
	mu  sync.Mutex
	out io.Writer
}

var _ engine.Reporter = (*consoleReporter)(nil)

func newConsoleReporter(out io.Writer) *consoleReporter {
	return &consoleReporter{out: out}
}

func (r *consoleReporter) SiteStarted(site engine.Site) {
	r.printf("\n%s (%s)\n", site.Domain, site.Name)
}

func (r *consoleReporter) EntityDone(res engine.EntityResult) {
	switch res.Outcome {
	case engine.OutcomeCreated:
		r.printf("  %s created %s %s (id %d)\n", markOK, res.Kind, res.Key, res.Identity.ID)
	case engine.OutcomeExisting:
		r.printf("  %s %s %s already exists (id %d)\n", markOK, res.Kind, res.Key, res.Identity.ID)
	default:
		r.printf("  %s %s %s failed: %v\n", markFail, res.Kind, res.Key, res.Err)
	}
}

func (r *consoleReporter) Notice(_, message string) {
	r.printf("  %s %s\n", markWarn, message)
}

func (r *consoleReporter) SiteDone(res *engine.SiteResult) {
	if res.Err != nil {
		r.printf("  %s site skipped: %v\n", markFail, res.Err)
		return
	}
	r.printf("  %d created, %d existing, %d failed\n",
		res.Count("", engine.OutcomeCreated),
		res.Count("", engine.OutcomeExisting),
		res.Count("", engine.OutcomeFailed))
}

func (r *consoleReporter) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// summaryTable renders one row per site plus a totals footer.
func summaryTable(summary *engine.RunSummary) string {
	rows := make([][]string, 0, len(summary.Sites))
	for _, site := range summary.Sites {
		status := markOK + " seeded"
		switch {
		case site.Err != nil:
			status = markFail + " failed"
		case site.FixtureErr != nil || len(site.Notices) > 0:
			status = markWarn + " partial fixtures"
		}
		rows = append(rows, []string{
			site.Site.Domain,
			strconv.Itoa(site.Count("", engine.OutcomeCreated)),
			strconv.Itoa(site.Count("", engine.OutcomeExisting)),
			strconv.Itoa(site.Count("", engine.OutcomeFailed)),
			status,
		})
	}

	created, existing, failed := summary.Totals()
	return renderTable(
		[]string{"Site", "Created", "Existing", "Failed", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
		"Total", strconv.Itoa(created), strconv.Itoa(existing), strconv.Itoa(failed), summary.Duration().Round(time.Millisecond).String(),
	)
}

type siteReport struct {
	Domain     string   `json:"domain"`
	SiteID     int64    `json:"siteId,omitempty"`
	Created    int      `json:"created"`
	Existing   int      `json:"existing"`
	Failed     int      `json:"failed"`
	Error      string   `json:"error,omitempty"`
	FixtureErr string   `json:"fixtureError,omitempty"`
	Notices    []string `json:"notices,omitempty"`
}

type runReport struct {
	RunID      string       `json:"runId"`
	DurationMS int64        `json:"durationMs"`
	Created    int          `json:"created"`
	Existing   int          `json:"existing"`
	Failed     int          `json:"failed"`
	Sites      []siteReport `json:"sites"`
}

func newRunReport(summary *engine.RunSummary) runReport {
	created, existing, failed := summary.Totals()
	rep := runReport{
		RunID:      summary.RunID,
		DurationMS: summary.Duration().Milliseconds(),
		Created:    created,
		Existing:   existing,
		Failed:     failed,
		Sites:      make([]siteReport, 0, len(summary.Sites)),
	}
	for _, site := range summary.Sites {
		sr := siteReport{
			Domain:   site.Site.Domain,
			SiteID:   site.SiteID.ID,
			Created:  site.Count("", engine.OutcomeCreated),
			Existing: site.Count("", engine.OutcomeExisting),
			Failed:   site.Count("", engine.OutcomeFailed),
			Notices:  site.Notices,
		}
		if site.Err != nil {
			sr.Error = site.Err.Error()
		}
		if site.FixtureErr != nil {
			sr.FixtureErr = site.FixtureErr.Error()
		}
		rep.Sites = append(rep.Sites, sr)
	}
	return rep
}
