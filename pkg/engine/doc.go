// Package engine seeds the protein recipe content hierarchy into a headless
// content store.
//
// # Hierarchy
//
// Content is organised as Site > Category > Recipe > Pack. Categories,
// recipes and packs belong to exactly one site, recipes reference categories
// and packs reference recipes. References are always sent as store ids;
// slugs used in fixtures are resolved against the ids collected earlier in
// the same site run, and unknown slugs are dropped.
//
// # Idempotent creation
//
// The content API exposes create and filtered read only. Upserter.Ensure
// creates optimistically and, when the create fails, looks the entity up by
// its natural key (domain for sites, slug plus site id for everything else).
// A successful lookup means the entity already existed. Re-running a seed
// against a populated store therefore creates nothing new.
//
// # Failure containment
//
// A site that can be neither created nor found skips its whole subtree.
// Failures below the site are recorded and skipped; the rest of the site
// still runs. Missing fixture files are notices, not failures.
//
// # Error Classification
//
// Store errors are classified as transient, throttled, conflict or
// permanent (see ClassOf). With FallbackConflict only conflicts trigger
// the lookup.
package engine
