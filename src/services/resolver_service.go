package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/model"
	"github.com/username/tradejournal/backend/src/processors"
)

const (
	ckAccount    = "account:%s"
	ckInstrument = "instrument:%s"
)

// batchResolver resolves references for a single batch. Its cache lives as long as the batch.
type batchResolver struct {
	db     *sql.DB
	userID int64
	broker string
	cache  *cache.Cache
}

// NewBatchResolver returns a resolver scoped to one user and one batch.
func NewBatchResolver(db *sql.DB, userID int64, broker string) ReferenceResolver {
	return &batchResolver{
		db:     db,
		userID: userID,
		broker: broker,
		cache:  cache.New(cache.NoExpiration, 0),
	}
}

func (r *batchResolver) ResolveAccount(ctx context.Context, externalID string) (int64, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return 0, fmt.Errorf("%w: missing account identifier", ErrUnresolvable)
	}
	key := fmt.Sprintf(ckAccount, externalID)
	if id, found := r.cache.Get(key); found {
		return id.(int64), nil
	}
	id, err := model.UpsertAccount(ctx, r.db, r.userID, externalID, r.broker)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve account %q: %w", externalID, err)
	}
	r.cache.SetDefault(key, id)
	return id, nil
}

func (r *batchResolver) ResolveInstrument(ctx context.Context, rootSymbol string) (int64, error) {
	rootSymbol = strings.ToUpper(strings.TrimSpace(rootSymbol))
	if rootSymbol == "" {
		return 0, fmt.Errorf("%w: missing root symbol", ErrUnresolvable)
	}
	key := fmt.Sprintf(ckInstrument, rootSymbol)
	if id, found := r.cache.Get(key); found {
		return id.(int64), nil
	}

	spec, known := processors.LookupContract(rootSymbol)
	if !known {
		spec = processors.UnknownContract(rootSymbol)
	}
	id, err := model.UpsertInstrument(ctx, r.db, r.userID, rootSymbol, spec, !known)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve instrument %q: %w", rootSymbol, err)
	}
	if !known {
		logger.FromContext(ctx).Warn("Instrument not in contract table, created with neutral economics",
			"rootSymbol", rootSymbol, "instrumentID", id)
	}
	r.cache.SetDefault(key, id)
	return id, nil
}
