package engine

import (
	"context"
	"fmt"
	"sync"
)

// statusError stands in for a classified transport error.
type statusError struct {
	class ErrorClass
	code  string
}

func (e *statusError) Error() string          { return fmt.Sprintf("store said %s", e.class) }
func (e *statusError) ErrorClass() ErrorClass { return e.class }
func (e *statusError) ErrorCode() string      { return e.code }

var errConflict = &statusError{class: ErrorClassConflict, code: ErrCodeAlreadyExists}

type fakeEntity struct {
	id     int64
	fields map[string]any
}

// fakeAPI is an in-memory content store that enforces natural key
// uniqueness the way the real store does.
type fakeAPI struct {
	mu       sync.Mutex
	nextID   int64
	entities map[string][]fakeEntity

	// createErrs fails creates for "resource:key" regardless of state.
	createErrs map[string]error
	// findErrs fails every lookup on a resource.
	findErrs map[string]error

	calls []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		entities:   make(map[string][]fakeEntity),
		createErrs: make(map[string]error),
		findErrs:   make(map[string]error),
	}
}

func keyOf(resource string, fields map[string]any) string {
	if resource == "sites" {
		return fmt.Sprint(fields["domain"])
	}
	return fmt.Sprint(fields["slug"])
}

func (f *fakeAPI) Create(_ context.Context, resource string, fields map[string]any) (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := keyOf(resource, fields)
	f.calls = append(f.calls, "create "+resource+" "+key)

	if err, ok := f.createErrs[resource+":"+key]; ok {
		return Identity{}, err
	}
	for _, e := range f.entities[resource] {
		if keyOf(resource, e.fields) == key && fmt.Sprint(e.fields["site"]) == fmt.Sprint(fields["site"]) {
			return Identity{}, errConflict
		}
	}
	return f.insertLocked(resource, fields), nil
}

func (f *fakeAPI) insertLocked(resource string, fields map[string]any) Identity {
	f.nextID++
	f.entities[resource] = append(f.entities[resource], fakeEntity{id: f.nextID, fields: fields})
	return Identity{ID: f.nextID, DocumentID: fmt.Sprintf("doc-%d", f.nextID)}
}

// insert adds an entity directly, bypassing uniqueness checks.
func (f *fakeAPI) insert(resource string, fields map[string]any) Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(resource, fields)
}

func (f *fakeAPI) Find(_ context.Context, resource string, filters ...Filter) ([]Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, "find "+resource)
	if err, ok := f.findErrs[resource]; ok {
		return nil, err
	}

	var out []Identity
	for _, e := range f.entities[resource] {
		match := true
		for _, flt := range filters {
			field := flt.Field
			if field == "site.id" {
				field = "site"
			}
			if fmt.Sprint(e.fields[field]) != flt.Value {
				match = false
				break
			}
		}
		if match {
			out = append(out, Identity{ID: e.id, DocumentID: fmt.Sprintf("doc-%d", e.id)})
		}
	}
	return out, nil
}

func (f *fakeAPI) count(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entities[resource])
}

func (f *fakeAPI) fieldsOf(resource, key string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entities[resource] {
		if keyOf(resource, e.fields) == key {
			return e.fields
		}
	}
	return nil
}

func (f *fakeAPI) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeFixtures struct {
	recipes    map[string][]Recipe
	packs      map[string][]Pack
	recipesErr map[string]error
	packsErr   map[string]error
}

func newFakeFixtures() *fakeFixtures {
	return &fakeFixtures{
		recipes:    make(map[string][]Recipe),
		packs:      make(map[string][]Pack),
		recipesErr: make(map[string]error),
		packsErr:   make(map[string]error),
	}
}

func (f *fakeFixtures) Recipes(domain string) ([]Recipe, error) {
	if err, ok := f.recipesErr[domain]; ok {
		return f.recipes[domain], err
	}
	r, ok := f.recipes[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %s/recipes.json", ErrFixtureMissing, domain)
	}
	return r, nil
}

func (f *fakeFixtures) Packs(domain string) ([]Pack, error) {
	if err, ok := f.packsErr[domain]; ok {
		return f.packs[domain], err
	}
	p, ok := f.packs[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %s/packs.json", ErrFixtureMissing, domain)
	}
	return p, nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	begun     []string
	entities  []EntityResult
	completed *RunSummary
}

func (r *fakeRecorder) BeginRun(_ context.Context, runID string, _ []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begun = append(r.begun, runID)
	return nil
}

func (r *fakeRecorder) RecordEntity(_ context.Context, _ string, res EntityResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = append(r.entities, res)
	return nil
}

func (r *fakeRecorder) CompleteRun(_ context.Context, summary *RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = summary
	return nil
}

type fakeReporter struct {
	started []string
	done    []string
	notices []string
	events  int
}

func (r *fakeReporter) SiteStarted(site Site)       { r.started = append(r.started, site.Domain) }
func (r *fakeReporter) EntityDone(EntityResult)     { r.events++ }
func (r *fakeReporter) Notice(domain, msg string)   { r.notices = append(r.notices, domain+": "+msg) }
func (r *fakeReporter) SiteDone(result *SiteResult) { r.done = append(r.done, result.Site.Domain) }
