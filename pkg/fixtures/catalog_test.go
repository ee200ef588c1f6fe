package fixtures

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	cat, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog failed: %v", err)
	}
	if len(cat.Sites) != 12 {
		t.Errorf("Expected 12 sites, got %d", len(cat.Sites))
	}
	if len(cat.Categories) != 10 {
		t.Errorf("Expected 10 categories, got %d", len(cat.Categories))
	}

	cookies := cat.Sites[0]
	if cookies.Domain != "proteincookies.co" {
		t.Fatalf("Expected proteincookies.co first, got %s", cookies.Domain)
	}
	if cookies.Tagline != "The definitive hub for macro-verified protein cookies recipes" {
		t.Errorf("Unexpected tagline %q", cookies.Tagline)
	}
	if !strings.HasPrefix(cookies.MetaDescription, "Discover delicious high-protein cookies recipes") {
		t.Errorf("Unexpected meta description %q", cookies.MetaDescription)
	}
	if cookies.BrandColor != "#f59e0b" {
		t.Errorf("Expected default brand color, got %s", cookies.BrandColor)
	}
	if !cookies.IsActive {
		t.Error("Expected site to be active by default")
	}
}

func TestParseCatalogOverrides(t *testing.T) {
	data := []byte(`
defaults:
  brandColor: "#000000"
sites:
  - domain: a.co
    name: A
    foodType: Waffles
    brandColor: "#ffffff"
    tagline: Custom
    active: false
categories:
  - { slug: all, name: All }
`)
	cat, err := ParseCatalog(data)
	if err != nil {
		t.Fatalf("ParseCatalog failed: %v", err)
	}
	site := cat.Sites[0]
	if site.BrandColor != "#ffffff" || site.Tagline != "Custom" {
		t.Errorf("Expected explicit values to win, got %+v", site)
	}
	if site.IsActive {
		t.Error("Expected active:false to be respected")
	}
}

func TestParseCatalogRejectsDuplicates(t *testing.T) {
	sites := []byte(`
sites:
  - { domain: a.co, name: A, foodType: X }
  - { domain: a.co, name: B, foodType: Y }
`)
	if _, err := ParseCatalog(sites); err == nil {
		t.Error("Expected duplicate domain error")
	}

	cats := []byte(`
categories:
  - { slug: all, name: All }
  - { slug: all, name: Everything }
`)
	if _, err := ParseCatalog(cats); err == nil {
		t.Error("Expected duplicate slug error")
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("sites:\n  - { domain: a.co, name: A, foodType: X }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if len(cat.Sites) != 1 {
		t.Errorf("Expected 1 site, got %d", len(cat.Sites))
	}

	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing catalog")
	}
}

func TestCatalogSelect(t *testing.T) {
	cat, err := DefaultCatalog()
	if err != nil {
		t.Fatal(err)
	}

	all, err := cat.Select(nil)
	if err != nil || len(all) != 12 {
		t.Fatalf("Expected all 12 sites, got %d (err %v)", len(all), err)
	}

	some, err := cat.Select([]string{"proteinbars.co", "proteincookies.co"})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if some[0].Domain != "proteinbars.co" || some[1].Domain != "proteincookies.co" {
		t.Errorf("Expected requested order, got %s, %s", some[0].Domain, some[1].Domain)
	}

	if _, err := cat.Select([]string{"nope.co"}); err == nil {
		t.Error("Expected unknown domain error")
	}
}

type schemaFunc func(ctx context.Context, name string, data interface{}) error

func (f schemaFunc) ValidateAgainstSchema(ctx context.Context, name string, data interface{}) error {
	return f(ctx, name, data)
}

func TestCatalogValidateUsesCatalogSchema(t *testing.T) {
	cat, _ := DefaultCatalog()
	wantErr := errors.New("bad")

	var gotName string
	err := cat.Validate(context.Background(), schemaFunc(func(_ context.Context, name string, _ interface{}) error {
		gotName = name
		return wantErr
	}))
	if gotName != CatalogSchema {
		t.Errorf("Expected schema %s, got %s", CatalogSchema, gotName)
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected validator error, got %v", err)
	}
}
