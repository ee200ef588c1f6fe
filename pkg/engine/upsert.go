package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/justinhartfield/protein-empire-cms/pkg/telemetry"
)

// FallbackPolicy decides when a failed create falls back to a lookup.
type FallbackPolicy string

const (
	// FallbackAlways looks the entity up after any create failure.
	FallbackAlways FallbackPolicy = "always"

	// FallbackConflict looks the entity up only when the create failure is
	// classified as a conflict. Other failures are reported immediately.
	FallbackConflict FallbackPolicy = "conflict"
)

// ParseFallbackPolicy parses a policy name. The empty string selects FallbackAlways.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(s) {
	case "", FallbackAlways:
		return FallbackAlways, nil
	case FallbackConflict:
		return FallbackConflict, nil
	default:
		return "", fmt.Errorf("unknown fallback policy %q (want %q or %q)", s, FallbackAlways, FallbackConflict)
	}
}

// Upserter ensures an entity exists: it creates optimistically and falls
// back to a natural-key lookup when the create fails.
type Upserter struct {
	api      ContentAPI
	resolver *Resolver
	policy   FallbackPolicy
	logger   *telemetry.Logger
}

// NewUpserter creates an upserter.
func NewUpserter(api ContentAPI, resolver *Resolver, policy FallbackPolicy, logger *telemetry.Logger) *Upserter {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	if policy == "" {
		policy = FallbackAlways
	}
	return &Upserter{
		api:      api,
		resolver: resolver,
		policy:   policy,
		logger:   logger.NewComponentLogger("upserter"),
	}
}

// Ensure creates the entity described by fields, or finds the existing one
// identified by key. When neither succeeds the original create error is
// returned, wrapped in an *EngineError carrying its class.
func (u *Upserter) Ensure(ctx context.Context, kind Kind, fields map[string]any, key NaturalKey) (Identity, Outcome, error) {
	if key.Value == "" {
		err := NewPermanentError(fmt.Sprintf("%s has no %s", kind, key.Field), nil).
			WithCode(ErrCodeValidation).
			WithOperation("create")
		return Identity{}, OutcomeFailed, err
	}

	id, createErr := u.api.Create(ctx, kind.Resource(), fields)
	if createErr == nil {
		return id, OutcomeCreated, nil
	}

	class := ClassOf(createErr)
	failure := NewError(class, fmt.Sprintf("failed to create %s", kind), createErr).
		WithResource(key.String()).
		WithOperation("create").
		WithCode(CodeOf(createErr))

	if u.policy == FallbackConflict && !IsConflict(createErr) {
		return Identity{}, OutcomeFailed, failure
	}

	existing, found, lookupErr := u.resolver.FindByKey(ctx, kind, key)
	if lookupErr != nil {
		u.logger.WithError(lookupErr).WithField("key", key.String()).Debug("Fallback lookup failed")
		failure.WithDetail("lookup_error", lookupErr.Error())
		return Identity{}, OutcomeFailed, failure
	}
	if !found {
		return Identity{}, OutcomeFailed, failure
	}

	u.logger.WithFields(map[string]interface{}{
		"key":          key.String(),
		"id":           existing.ID,
		"create_class": string(class),
	}).Debug("Entity already exists")
	return existing, OutcomeExisting, nil
}

// ensureTimed runs Ensure and packages the outcome as an EntityResult.
func (u *Upserter) ensureTimed(ctx context.Context, domain string, kind Kind, fields map[string]any, key NaturalKey) EntityResult {
	start := time.Now()
	id, outcome, err := u.Ensure(ctx, kind, fields, key)
	return EntityResult{
		Site:     domain,
		Kind:     kind,
		Key:      key.Value,
		Identity: id,
		Outcome:  outcome,
		Err:      err,
		Duration: time.Since(start),
	}
}
