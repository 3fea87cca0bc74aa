// Package recommend composes the local content-based scorer, the remote
// recommender and the product cache engine into a single recommendation
// entry point. Both recommenders are consumed as black boxes: if one side
// fails, the other side's results still answer the request.
package recommend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/retailstack/product-cache/pkg/catalog"
	"github.com/retailstack/product-cache/pkg/engine"
	"github.com/retailstack/product-cache/pkg/logging"
)

// ScoredID is a product id with a relevance score from the local model.
type ScoredID struct {
	ID    string
	Score float64
}

// Scorer is the local content-based recommender (e.g. TF-IDF cosine
// similarity over the catalog). Results come back ranked best-first.
type Scorer interface {
	Score(ctx context.Context, query string) ([]ScoredID, error)
}

// RemoteRecommender is the hosted recommendation service (e.g. a cloud
// retail API). Results come back ranked best-first.
type RemoteRecommender interface {
	Recommend(ctx context.Context, userID, productID string) ([]string, error)
}

// Orchestrator blends local and remote recommendations and resolves them
// to full products through the cache engine.
type Orchestrator struct {
	scorer Scorer
	remote RemoteRecommender
	engine *engine.Engine
	logger zerolog.Logger
}

// New creates an orchestrator. Either recommender may be nil; at least one
// must be provided.
func New(scorer Scorer, remote RemoteRecommender, eng *engine.Engine) (*Orchestrator, error) {
	if scorer == nil && remote == nil {
		return nil, fmt.Errorf("at least one recommender is required")
	}
	if eng == nil {
		return nil, fmt.Errorf("cache engine is required")
	}
	return &Orchestrator{
		scorer: scorer,
		remote: remote,
		engine: eng,
		logger: logging.NewLogger("recommender"),
	}, nil
}

// Recommend returns up to limit products for the given user and seed
// product. Local and remote candidate lists are interleaved (remote first)
// and de-duplicated, then resolved in one batch through the cache engine.
// Degraded placeholders are filtered out: a recommendation slate never
// shows "Unknown Product".
func (o *Orchestrator) Recommend(ctx context.Context, userID, productID string, limit int) ([]*catalog.Product, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: empty product id", catalog.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = 10
	}

	var remoteIDs []string
	if o.remote != nil {
		ids, err := o.remote.Recommend(ctx, userID, productID)
		if err != nil {
			o.logger.Warn().Err(err).Str("product_id", productID).
				Msg("Remote recommender failed, continuing with local scorer")
		} else {
			remoteIDs = ids
		}
	}

	var localIDs []string
	if o.scorer != nil {
		scored, err := o.scorer.Score(ctx, productID)
		if err != nil {
			o.logger.Warn().Err(err).Str("product_id", productID).
				Msg("Local scorer failed, continuing with remote results")
		} else {
			for _, s := range scored {
				localIDs = append(localIDs, s.ID)
			}
		}
	}

	candidates := interleave(remoteIDs, localIDs, productID, limit)
	if len(candidates) == 0 {
		return nil, nil
	}

	products, err := o.engine.GetProducts(ctx, candidates)
	if err != nil {
		return nil, err
	}

	out := make([]*catalog.Product, 0, len(candidates))
	for _, id := range candidates {
		p := products[id]
		if p == nil || !p.Available {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// interleave merges two ranked id lists (a first), dropping duplicates and
// the seed id, capped at limit.
func interleave(a, b []string, seed string, limit int) []string {
	seen := map[string]bool{seed: true}
	out := make([]string, 0, limit)

	for i := 0; len(out) < limit && (i < len(a) || i < len(b)); i++ {
		for _, list := range [][]string{a, b} {
			if i < len(list) && !seen[list[i]] && len(out) < limit {
				seen[list[i]] = true
				out = append(out, list[i])
			}
		}
	}
	return out
}
