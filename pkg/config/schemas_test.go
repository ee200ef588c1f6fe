package config

import (
	"context"
	"strings"
	"testing"

	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
	"github.com/justinhartfield/protein-empire-cms/pkg/fixtures"
)

func validCatalog() *fixtures.Catalog {
	return &fixtures.Catalog{
		Sites: []engine.Site{{
			Domain:     "protein-bread.com",
			Name:       "ProteinBread",
			FoodType:   "Bread",
			BrandColor: "#f59e0b",
			IsActive:   true,
		}},
		Categories: []engine.Category{
			{Slug: "high-protein", Name: "High Protein", Description: "Maximum protein per serving (25g+)"},
		},
	}
}

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	schema, ok := sr.GetSchema(fixtures.CatalogSchema)
	if !ok {
		t.Fatal("Expected to find catalog schema")
	}
	if schema.Err() != nil {
		t.Errorf("Catalog schema has errors: %v", schema.Err())
	}
}

func TestSchemaRegistry_DefaultCatalogIsValid(t *testing.T) {
	cat, err := fixtures.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog failed: %v", err)
	}

	if err := cat.Validate(context.Background(), NewSchemaRegistry()); err != nil {
		t.Errorf("Expected built-in catalog to be valid, got %v", err)
	}
}

func TestSchemaRegistry_ValidateCatalog(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*fixtures.Catalog)
		wantErr bool
	}{
		{
			name:   "valid catalog",
			mutate: func(*fixtures.Catalog) {},
		},
		{
			name:   "optional copy present",
			mutate: func(c *fixtures.Catalog) { c.Sites[0].Tagline = "Bread, but better" },
		},
		{
			name:    "domain without a dot",
			mutate:  func(c *fixtures.Catalog) { c.Sites[0].Domain = "localhost" },
			wantErr: true,
		},
		{
			name:    "upper case domain",
			mutate:  func(c *fixtures.Catalog) { c.Sites[0].Domain = "ProteinBars.co" },
			wantErr: true,
		},
		{
			name:    "named brand color",
			mutate:  func(c *fixtures.Catalog) { c.Sites[0].BrandColor = "orange" },
			wantErr: true,
		},
		{
			name:    "empty food type",
			mutate:  func(c *fixtures.Catalog) { c.Sites[0].FoodType = "" },
			wantErr: true,
		},
		{
			name:    "slug with spaces",
			mutate:  func(c *fixtures.Catalog) { c.Categories[0].Slug = "quick & easy" },
			wantErr: true,
		},
		{
			name:    "no sites",
			mutate:  func(c *fixtures.Catalog) { c.Sites = []engine.Site{} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := validCatalog()
			tt.mutate(cat)

			err := sr.ValidateAgainstSchema(ctx, fixtures.CatalogSchema, cat)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAgainstSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_UnknownSchema(t *testing.T) {
	err := NewSchemaRegistry().ValidateAgainstSchema(context.Background(), "workspace", map[string]string{})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestSchemaRegistry_RegisterCustom(t *testing.T) {
	sr := NewSchemaRegistry()

	err := sr.RegisterSchema("pack", "#Pack", `
#Pack: {
	slug:   =~"^[a-z0-9-]+$"
	isFree: bool
}
`)
	if err != nil {
		t.Fatalf("Failed to register schema: %v", err)
	}

	ctx := context.Background()
	if err := sr.ValidateAgainstSchema(ctx, "pack", map[string]interface{}{"slug": "starter", "isFree": true}); err != nil {
		t.Errorf("Expected valid pack, got %v", err)
	}
	if err := sr.ValidateAgainstSchema(ctx, "pack", map[string]interface{}{"slug": "starter"}); err == nil {
		t.Error("Expected missing field to fail")
	}
	if err := sr.ValidateAgainstSchema(ctx, "pack", map[string]interface{}{"slug": "starter", "isFree": true, "price": 3}); err == nil {
		t.Error("Expected unknown field to fail on a closed definition")
	}
}

func TestSchemaRegistry_RegisterErrors(t *testing.T) {
	sr := NewSchemaRegistry()

	if err := sr.RegisterSchema("broken", "#Broken", `#Broken: {`); err == nil {
		t.Error("Expected compile error")
	}
	if err := sr.RegisterSchema("nodef", "#Missing", `#Other: string`); err == nil {
		t.Error("Expected missing definition error")
	}
}
