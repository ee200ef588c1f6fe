package fixtures

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
)

// ErrFixtureMissing is returned (wrapped) when a fixture file does not exist.
var ErrFixtureMissing = engine.ErrFixtureMissing

const (
	recipesFile = "recipes.json"
	packsFile   = "packs.json"
)

// DomainKey derives the fixture directory name for a domain by replacing
// dots with hyphens: "proteincookies.co" becomes "proteincookies-co".
func DomainKey(domain string) string {
	return strings.ReplaceAll(domain, ".", "-")
}

// Layout locates per-site fixture files under Root:
//
//	<Root>/<domain-key>/recipes.json
//	<Root>/<domain-key>/packs.json
type Layout struct {
	Root string
}

// NewLayout returns a layout rooted at root.
func NewLayout(root string) *Layout {
	return &Layout{Root: root}
}

// RecipesPath returns the recipes fixture path for domain.
func (l *Layout) RecipesPath(domain string) string {
	return filepath.Join(l.Root, DomainKey(domain), recipesFile)
}

// PacksPath returns the packs fixture path for domain.
func (l *Layout) PacksPath(domain string) string {
	return filepath.Join(l.Root, DomainKey(domain), packsFile)
}

// Recipes loads and normalizes the recipes of domain.
func (l *Layout) Recipes(domain string) ([]engine.Recipe, error) {
	return LoadRecipes(l.RecipesPath(domain))
}

// Packs loads and normalizes the packs of domain.
func (l *Layout) Packs(domain string) ([]engine.Pack, error) {
	return LoadPacks(l.PacksPath(domain))
}

// LoadRecipes reads a recipes fixture file. When some entries are
// malformed the rest are returned with an *engine.SkippedEntriesError.
func LoadRecipes(path string) ([]engine.Recipe, error) {
	data, err := readFixture(path)
	if err != nil {
		return nil, err
	}
	recipes, err := ParseRecipes(data)
	if err != nil {
		return recipes, fmt.Errorf("%s: %w", path, err)
	}
	return recipes, nil
}

// LoadPacks reads a packs fixture file.
func LoadPacks(path string) ([]engine.Pack, error) {
	data, err := readFixture(path)
	if err != nil {
		return nil, err
	}
	packs, err := ParsePacks(data)
	if err != nil {
		return packs, fmt.Errorf("%s: %w", path, err)
	}
	return packs, nil
}

func readFixture(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFixtureMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return data, nil
}

// SiteForPath maps a fixture file path back to the catalog site it belongs
// to. The boolean is false for paths outside the layout or for files that
// are not fixtures.
func (l *Layout) SiteForPath(path string, sites []engine.Site) (engine.Site, bool) {
	base := filepath.Base(path)
	if base != recipesFile && base != packsFile {
		return engine.Site{}, false
	}
	dir := filepath.Base(filepath.Dir(path))
	for _, site := range sites {
		if DomainKey(site.Domain) == dir {
			return site, true
		}
	}
	return engine.Site{}, false
}

var _ engine.FixtureSource = (*Layout)(nil)
