package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/cognicore/corpact/pkg/corpact/internalerr"
	"github.com/cognicore/corpact/pkg/corpact/store"
)

// Resolver maps tickers to entities, creating them on first sighting.
type Resolver struct {
	store  store.Store
	logger arbor.ILogger
}

// NewResolver creates a resolver over st.
func NewResolver(st store.Store, logger arbor.ILogger) *Resolver {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	return &Resolver{store: st, logger: logger}
}

// Resolve returns the entity for ticker and whether this call created it.
// An empty ticker resolves to no entity.
func (r *Resolver) Resolve(ctx context.Context, ticker string) (store.Entity, bool, error) {
	ticker = store.NormalizeTicker(ticker)
	if ticker == "" {
		return store.Entity{}, false, nil
	}

	ent, ok, err := r.store.FindEntityByTicker(ctx, ticker)
	if err != nil {
		return store.Entity{}, false, fmt.Errorf("find entity %s: %w", ticker, err)
	}
	if ok {
		return ent, false, nil
	}

	ent, err = r.store.CreateEntity(ctx, store.NewEntity{Ticker: ticker, Name: ticker})
	if err == nil {
		r.logger.Debug().Str("ticker", ticker).Str("entity_id", ent.ID).Msg("Entity created")
		return ent, true, nil
	}
	if !errors.Is(err, internalerr.ErrDuplicate) {
		return store.Entity{}, false, fmt.Errorf("create entity %s: %w", ticker, err)
	}

	// another writer created it between lookup and insert
	ent, ok, err = r.store.FindEntityByTicker(ctx, ticker)
	if err != nil {
		return store.Entity{}, false, fmt.Errorf("reload entity %s: %w", ticker, err)
	}
	if !ok {
		return store.Entity{}, false, fmt.Errorf("entity %s vanished after duplicate insert: %w", ticker, internalerr.ErrNotFound)
	}
	return ent, false, nil
}
