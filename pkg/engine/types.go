package engine

import (
	"fmt"
	"strconv"
	"time"
)

// Kind identifies one level of the content hierarchy.
type Kind string

const (
	// KindSite is a top-level website. Sites are keyed globally by domain.
	KindSite Kind = "site"

	// KindCategory is a recipe category owned by a site.
	KindCategory Kind = "category"

	// KindRecipe is a recipe owned by a site.
	KindRecipe Kind = "recipe"

	// KindPack is a curated bundle of recipes owned by a site.
	KindPack Kind = "pack"
)

// Resource returns the API collection name for the kind.
func (k Kind) Resource() string {
	switch k {
	case KindSite:
		return "sites"
	case KindCategory:
		return "categories"
	case KindRecipe:
		return "recipes"
	case KindPack:
		return "recipe-packs"
	default:
		return string(k)
	}
}

// KeyField returns the attribute that holds the kind's natural key.
func (k Kind) KeyField() string {
	if k == KindSite {
		return "domain"
	}
	return "slug"
}

// SiteScoped reports whether the natural key is only unique within a site.
func (k Kind) SiteScoped() bool {
	return k != KindSite
}

// Key builds the natural key for an entity of this kind.
// siteID is ignored for kinds that are not site scoped.
func (k Kind) Key(value string, siteID int64) NaturalKey {
	key := NaturalKey{Kind: k, Field: k.KeyField(), Value: value}
	if k.SiteScoped() {
		key.SiteID = siteID
	}
	return key
}

// Identity is the identifier assigned to an entity by the content store.
type Identity struct {
	// ID is the numeric id used when one entity references another.
	ID int64 `json:"id"`

	// DocumentID is the stable document identifier, when the store exposes one.
	DocumentID string `json:"documentId,omitempty"`
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.ID == 0 && i.DocumentID == ""
}

// NaturalKey is the business key used to find an existing entity.
type NaturalKey struct {
	Kind   Kind
	Field  string
	Value  string
	SiteID int64
}

func (k NaturalKey) String() string {
	if k.SiteID != 0 {
		return fmt.Sprintf("%s:%s@site-%d", k.Kind, k.Value, k.SiteID)
	}
	return fmt.Sprintf("%s:%s", k.Kind, k.Value)
}

// Filters returns the equality filters that select the entity.
func (k NaturalKey) Filters() []Filter {
	filters := []Filter{{Field: k.Field, Value: k.Value}}
	if k.SiteID != 0 {
		filters = append(filters, Filter{Field: "site.id", Value: strconv.FormatInt(k.SiteID, 10)})
	}
	return filters
}

// Filter is an equality filter on a (possibly nested) attribute.
// Nested attributes use dot notation, e.g. "site.id".
type Filter struct {
	Field string
	Value string
}

// Site is a top-level website in the content store.
type Site struct {
	Domain          string `json:"domain" yaml:"domain"`
	Name            string `json:"name" yaml:"name"`
	FoodType        string `json:"foodType" yaml:"foodType"`
	BrandColor      string `json:"brandColor" yaml:"brandColor"`
	Tagline         string `json:"tagline,omitempty" yaml:"tagline,omitempty"`
	MetaDescription string `json:"metaDescription,omitempty" yaml:"metaDescription,omitempty"`
	IsActive        bool   `json:"isActive" yaml:"isActive"`
}

// Fields returns the attributes sent when creating the site.
func (s Site) Fields() map[string]any {
	return map[string]any{
		"domain":          s.Domain,
		"name":            s.Name,
		"foodType":        s.FoodType,
		"brandColor":      s.BrandColor,
		"tagline":         s.Tagline,
		"metaDescription": s.MetaDescription,
		"isActive":        s.IsActive,
	}
}

// Category is a recipe category. Categories are created for every site.
type Category struct {
	Slug        string `json:"slug" yaml:"slug"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Fields returns the attributes sent when creating the category under siteID.
func (c Category) Fields(siteID int64) map[string]any {
	return map[string]any{
		"slug":        c.Slug,
		"name":        c.Name,
		"description": c.Description,
		"site":        siteID,
	}
}

// Nutrition holds per-serving macro values.
type Nutrition struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
	Sugar    float64 `json:"sugar"`
}

// Ingredient is a single recipe ingredient line.
type Ingredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
	Notes  string `json:"notes"`
}

// Instruction is a numbered preparation step.
type Instruction struct {
	StepNumber  int    `json:"stepNumber"`
	Instruction string `json:"instruction"`
}

// Recipe is a normalized recipe ready to be created.
type Recipe struct {
	Slug          string
	Title         string
	Description   string
	PrepTime      int
	CookTime      int
	TotalTime     int
	Servings      int
	Difficulty    string
	Nutrition     Nutrition
	Ingredients   []Ingredient
	Instructions  []Instruction
	Tips          []string
	Tags          []string
	CategorySlugs []string
	IsPublished   bool
}

// Fields returns the attributes sent when creating the recipe.
// categoryIDs must already be resolved; slugs are never sent.
func (r Recipe) Fields(siteID int64, categoryIDs []int64) map[string]any {
	return map[string]any{
		"title":        r.Title,
		"slug":         r.Slug,
		"description":  r.Description,
		"prepTime":     r.PrepTime,
		"cookTime":     r.CookTime,
		"totalTime":    r.TotalTime,
		"servings":     r.Servings,
		"difficulty":   r.Difficulty,
		"calories":     r.Nutrition.Calories,
		"protein":      r.Nutrition.Protein,
		"carbs":        r.Nutrition.Carbs,
		"fat":          r.Nutrition.Fat,
		"fiber":        r.Nutrition.Fiber,
		"sugar":        r.Nutrition.Sugar,
		"ingredients":  nonNil(r.Ingredients),
		"instructions": nonNil(r.Instructions),
		"tips":         nonNil(r.Tips),
		"tags":         nonNil(r.Tags),
		"site":         siteID,
		"categories":   nonNil(categoryIDs),
		"isPublished":  r.IsPublished,
	}
}

// Pack is a normalized recipe pack ready to be created.
type Pack struct {
	Slug        string
	Name        string
	Description string
	IsFree      bool
	RecipeSlugs []string
}

// Fields returns the attributes sent when creating the pack.
func (p Pack) Fields(siteID int64, recipeIDs []int64) map[string]any {
	return map[string]any{
		"name":        p.Name,
		"slug":        p.Slug,
		"description": p.Description,
		"isFree":      p.IsFree,
		"site":        siteID,
		"recipes":     nonNil(recipeIDs),
	}
}

// nonNil keeps empty lists encoding as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Outcome is the result of ensuring a single entity exists.
type Outcome string

const (
	// OutcomeCreated means the entity was created by this run.
	OutcomeCreated Outcome = "created"

	// OutcomeExisting means the entity already existed and was reused.
	OutcomeExisting Outcome = "existing"

	// OutcomeFailed means the entity could neither be created nor found.
	OutcomeFailed Outcome = "failed"
)

// EntityResult records what happened to one entity during a run.
type EntityResult struct {
	Site     string
	Kind     Kind
	Key      string
	Identity Identity
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// SiteResult collects the outcome of seeding one site.
type SiteResult struct {
	Site   Site
	SiteID Identity

	// Err is set when the site itself could not be ensured. Nothing below
	// the site is attempted in that case.
	Err error

	// FixtureErr is set when a fixture file exists but cannot be used.
	FixtureErr error

	// Notices are non-fatal conditions such as missing fixture files.
	Notices []string

	Categories map[string]int64
	Recipes    map[string]int64
	Packs      map[string]int64

	Entities []EntityResult
}

func newSiteResult(site Site) *SiteResult {
	return &SiteResult{
		Site:       site,
		Categories: make(map[string]int64),
		Recipes:    make(map[string]int64),
		Packs:      make(map[string]int64),
	}
}

// Count returns the number of entities of kind with the given outcome.
// An empty kind matches every kind.
func (r *SiteResult) Count(kind Kind, outcome Outcome) int {
	n := 0
	for _, e := range r.Entities {
		if (kind == "" || e.Kind == kind) && e.Outcome == outcome {
			n++
		}
	}
	return n
}

// RunSummary is the result of a complete seeding run.
type RunSummary struct {
	RunID       string
	StartedAt   time.Time
	CompletedAt time.Time
	Sites       []*SiteResult

	// Err is set when the run stopped before reaching every site.
	Err error
}

// Totals returns created, existing and failed entity counts across all sites.
func (s *RunSummary) Totals() (created, existing, failed int) {
	for _, site := range s.Sites {
		created += site.Count("", OutcomeCreated)
		existing += site.Count("", OutcomeExisting)
		failed += site.Count("", OutcomeFailed)
	}
	return created, existing, failed
}

// FailedSites returns the domains whose site entity could not be ensured.
func (s *RunSummary) FailedSites() []string {
	var out []string
	for _, site := range s.Sites {
		if site.Err != nil {
			out = append(out, site.Site.Domain)
		}
	}
	return out
}

// Duration returns the wall time of the run.
func (s *RunSummary) Duration() time.Duration {
	if s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}
