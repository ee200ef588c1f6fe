// Package fixtures reads the static JSON recipe and pack files that seed
// the content store, and the catalog of sites they belong to.
//
// Recipe and pack files may be a bare JSON list or an object wrapping the
// list under "recipes" or "packs". Recipes are normalized on load: missing
// times, servings, difficulty and macros get defaults, ingredients may be
// plain strings or objects, and instructions are renumbered from 1.
package fixtures
