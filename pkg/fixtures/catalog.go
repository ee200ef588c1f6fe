package fixtures

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/justinhartfield/protein-empire-cms/pkg/engine"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// SchemaValidator validates decoded data against a named schema.
type SchemaValidator interface {
	ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error
}

// CatalogSchema is the schema name catalogs are validated against.
const CatalogSchema = "catalog"

// Catalog lists the sites to seed and the categories created for each site.
type Catalog struct {
	Sites      []engine.Site     `json:"sites"`
	Categories []engine.Category `json:"categories"`
}

type catalogFile struct {
	Defaults struct {
		BrandColor string `yaml:"brandColor"`
	} `yaml:"defaults"`
	Sites []struct {
		engine.Site `yaml:",inline"`
		Active      *bool `yaml:"active"`
	} `yaml:"sites"`
	Categories []engine.Category `yaml:"categories"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog file. An empty path selects the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog and fills in derived site fields.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	cat := &Catalog{Categories: file.Categories}
	for _, entry := range file.Sites {
		site := entry.Site
		if site.BrandColor == "" {
			site.BrandColor = file.Defaults.BrandColor
		}
		food := strings.ToLower(site.FoodType)
		if site.Tagline == "" {
			site.Tagline = fmt.Sprintf("The definitive hub for macro-verified protein %s recipes", food)
		}
		if site.MetaDescription == "" {
			site.MetaDescription = fmt.Sprintf("Discover delicious high-protein %s recipes with accurate macro counts. "+
				"Perfect for fitness enthusiasts and health-conscious bakers.", food)
		}
		site.IsActive = entry.Active == nil || *entry.Active
		cat.Sites = append(cat.Sites, site)
	}

	if err := cat.checkUnique(); err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Catalog) checkUnique() error {
	domains := make(map[string]bool, len(c.Sites))
	for _, s := range c.Sites {
		if domains[s.Domain] {
			return fmt.Errorf("catalog lists site %s twice", s.Domain)
		}
		domains[s.Domain] = true
	}
	slugs := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if slugs[cat.Slug] {
			return fmt.Errorf("catalog lists category %s twice", cat.Slug)
		}
		slugs[cat.Slug] = true
	}
	return nil
}

// Validate checks the catalog against the catalog schema.
func (c *Catalog) Validate(ctx context.Context, v SchemaValidator) error {
	return v.ValidateAgainstSchema(ctx, CatalogSchema, c)
}

// Select returns the sites whose domain is listed. No domains selects all
// sites. Unknown domains are an error.
func (c *Catalog) Select(domains []string) ([]engine.Site, error) {
	if len(domains) == 0 {
		return c.Sites, nil
	}
	byDomain := make(map[string]engine.Site, len(c.Sites))
	for _, s := range c.Sites {
		byDomain[s.Domain] = s
	}
	out := make([]engine.Site, 0, len(domains))
	for _, d := range domains {
		site, ok := byDomain[d]
		if !ok {
			return nil, fmt.Errorf("site %s is not in the catalog", d)
		}
		out = append(out, site)
	}
	return out, nil
}
