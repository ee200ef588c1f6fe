package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakeStore is an in-memory content store speaking the REST dialect the
// seeder uses: POST /api/<resource> with {data} and equality filters on GET.
type fakeStore struct {
	mu      sync.Mutex
	nextID  int
	records map[string][]map[string]interface{}
	posts   int
}

func newFakeStore(t *testing.T) (*fakeStore, *httptest.Server) {
	t.Helper()
	fs := &fakeStore{records: make(map[string][]map[string]interface{})}
	server := httptest.NewServer(fs)
	t.Cleanup(server.Close)
	return fs, server
}

func (fs *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer test-token" {
		http.Error(w, `{"error":{"status":401,"name":"UnauthorizedError"}}`, http.StatusUnauthorized)
		return
	}
	resource := strings.TrimPrefix(r.URL.Path, "/api/")

	fs.mu.Lock()
	defer fs.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		fs.posts++
		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if fs.duplicate(resource, body.Data) {
			http.Error(w, `{"error":{"status":400,"message":"This attribute must be unique"}}`, http.StatusBadRequest)
			return
		}
		fs.nextID++
		body.Data["id"] = float64(fs.nextID)
		body.Data["documentId"] = fmt.Sprintf("doc-%d", fs.nextID)
		fs.records[resource] = append(fs.records[resource], body.Data)
		writeTestJSON(w, map[string]interface{}{"data": body.Data})

	case http.MethodGet:
		matches := []map[string]interface{}{}
		for _, rec := range fs.records[resource] {
			if matchesFilters(rec, r) {
				matches = append(matches, rec)
			}
		}
		writeTestJSON(w, map[string]interface{}{"data": matches})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (fs *fakeStore) duplicate(resource string, data map[string]interface{}) bool {
	for _, rec := range fs.records[resource] {
		if resource == "sites" {
			if rec["domain"] == data["domain"] {
				return true
			}
			continue
		}
		if rec["slug"] == data["slug"] && fmt.Sprint(rec["site"]) == fmt.Sprint(data["site"]) {
			return true
		}
	}
	return false
}

// matchesFilters understands filters[a][$eq]=v and filters[a][b][$eq]=v;
// nested filters compare against the parent reference id.
func matchesFilters(rec map[string]interface{}, r *http.Request) bool {
	for key, values := range r.URL.Query() {
		if !strings.HasPrefix(key, "filters[") {
			continue
		}
		parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(key, "filters["), "]"), "][")
		if fmt.Sprint(rec[parts[0]]) != values[0] {
			return false
		}
	}
	return true
}

func (fs *fakeStore) count(resource string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.records[resource])
}

func (fs *fakeStore) postCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.posts
}

func writeTestJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// isolateEnv clears every variable the configuration reads.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STRAPI_URL", "STRAPI_API_TOKEN", "GITHUB_WEBHOOK_URL", "GITHUB_WEBHOOK_TOKEN",
		"EMPIRE_FIXTURES_DIR", "EMPIRE_LEDGER_PATH", "EMPIRE_WEBHOOK_SECRET",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

const testCatalog = `
defaults:
  brandColor: "#f59e0b"
sites:
  - { domain: proteinbars.co, name: ProteinBars, foodType: Bars }
  - { domain: proteinbites.co, name: ProteinBites, foodType: Bites }
categories:
  - { slug: all, name: All Recipes, description: Browse all recipes }
  - { slug: quick, name: Quick & Easy, description: Ready in 30 minutes or less }
`

// writeFixtures lays out a catalog and fixtures for proteinbars.co only.
func writeFixtures(t *testing.T) (catalogPath, root string) {
	t.Helper()
	dir := t.TempDir()

	catalogPath = filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(catalogPath, []byte(testCatalog), 0o600); err != nil {
		t.Fatal(err)
	}

	root = filepath.Join(dir, "recipes")
	site := filepath.Join(root, "proteinbars-co")
	if err := os.MkdirAll(site, 0o755); err != nil {
		t.Fatal(err)
	}
	recipes := `{"recipes":[
		{"slug":"choc","title":"Chocolate Bar","categories":["all","quick","missing"],"ingredients":["oats"],"instructions":["Mix"]},
		{"slug":"pb","title":"Peanut Butter Bar"}
	]}`
	packs := `{"packs":[{"slug":"starter","name":"Starter","recipes":["choc","pb","gone"]}]}`
	if err := os.WriteFile(filepath.Join(site, "recipes.json"), []byte(recipes), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(site, "packs.json"), []byte(packs), 0o600); err != nil {
		t.Fatal(err)
	}
	return catalogPath, root
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCommand("test", "none", "today")
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("Expected output to contain %q, got:\n%s", needle, haystack)
	}
}
