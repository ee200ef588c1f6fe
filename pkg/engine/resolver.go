package engine

import (
	"context"
	"fmt"

	"github.com/justinhartfield/protein-empire-cms/pkg/telemetry"
)

// Resolver looks up existing entities by natural key.
type Resolver struct {
	api    ContentAPI
	logger *telemetry.Logger
}

// NewResolver creates a resolver backed by api.
func NewResolver(api ContentAPI, logger *telemetry.Logger) *Resolver {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Resolver{
		api:    api,
		logger: logger.NewComponentLogger("resolver"),
	}
}

// FindByKey returns the identity of the entity matching key.
// The boolean is false when no entity matches. When several entities match,
// the first one returned by the store wins and a warning is logged.
func (r *Resolver) FindByKey(ctx context.Context, kind Kind, key NaturalKey) (Identity, bool, error) {
	if key.Value == "" {
		return Identity{}, false, nil
	}

	ids, err := r.api.Find(ctx, kind.Resource(), key.Filters()...)
	if err != nil {
		return Identity{}, false, fmt.Errorf("failed to look up %s: %w", key, err)
	}
	if len(ids) == 0 {
		return Identity{}, false, nil
	}
	if len(ids) > 1 {
		r.logger.WithFields(map[string]interface{}{
			"key":        key.String(),
			"duplicates": len(ids),
			"chosen_id":  ids[0].ID,
		}).Warn("Natural key matches more than one entity, using the first")
	}
	return ids[0], true, nil
}
