package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/model"
	"github.com/username/tradejournal/backend/src/models"
	"github.com/username/tradejournal/backend/src/processors"
	"golang.org/x/sync/errgroup"
)

type tradeServiceImpl struct {
	db             *sql.DB
	tradeProcessor *processors.TradeProcessor
	workers        int
}

func NewTradeService(db *sql.DB, tradeProcessor *processors.TradeProcessor, workers int) TradeService {
	if workers < 1 {
		workers = 1
	}
	return &tradeServiceImpl{db: db, tradeProcessor: tradeProcessor, workers: workers}
}

// ReconstructAndPersist rebuilds the trades of every (account, instrument) stream the given
// fills belong to. A stream is segmented from all of its stored fills that have no trade yet,
// so fills an interrupted run left unlinked are picked up again. Streams run concurrently;
// the trades of one stream are stored in order. On error, the trades already committed are
// returned along with it.
func (s *tradeServiceImpl) ReconstructAndPersist(ctx context.Context, userID int64, fills []models.Fill) ([]models.Trade, error) {
	if len(fills) == 0 {
		return []models.Trade{}, nil
	}

	keys, _ := processors.GroupFills(fills)
	instrumentIDs := make([]int64, 0)
	seen := make(map[int64]bool)
	for _, key := range keys {
		if !seen[key.InstrumentID] {
			seen[key.InstrumentID] = true
			instrumentIDs = append(instrumentIDs, key.InstrumentID)
		}
	}
	instruments, err := model.GetInstrumentsByIDs(ctx, s.db, userID, instrumentIDs)
	if err != nil {
		return []models.Trade{}, fmt.Errorf("failed to load instruments: %w", err)
	}

	results := make([][]models.Trade, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, key := range keys {
		i, key := i, key
		multiplier := processors.MultiplierFor(instruments, key.InstrumentID)
		g.Go(func() error {
			group, err := model.ListUnlinkedFills(gctx, s.db, userID, key.AccountID, key.InstrumentID)
			if err != nil {
				return fmt.Errorf("account %d instrument %d: failed to load unlinked fills: %w", key.AccountID, key.InstrumentID, err)
			}
			for _, rt := range s.tradeProcessor.ReconstructGroup(group, multiplier) {
				if err := s.persistTrade(gctx, userID, &rt); err != nil {
					return fmt.Errorf("account %d instrument %d: %w", key.AccountID, key.InstrumentID, err)
				}
				results[i] = append(results[i], rt.Trade)
			}
			return nil
		})
	}
	err = g.Wait()

	trades := make([]models.Trade, 0)
	for _, r := range results {
		trades = append(trades, r...)
	}
	if err != nil {
		return trades, err
	}
	logger.FromContext(ctx).Info("Trades reconstructed", "userID", userID, "groups", len(keys), "trades", len(trades))
	return trades, nil
}

// persistTrade inserts the trade and links its fills in one transaction.
func (s *tradeServiceImpl) persistTrade(ctx context.Context, userID int64, rt *models.ReconstructedTrade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer tx.Rollback()

	rt.Trade.UserID = userID
	if err := model.InsertTrade(ctx, tx, &rt.Trade); err != nil {
		return fmt.Errorf("error inserting trade: %w", err)
	}
	fillIDs := make([]int64, len(rt.Fills))
	for i, f := range rt.Fills {
		fillIDs[i] = f.ID
	}
	linked, err := model.LinkFillsToTrade(ctx, tx, userID, rt.Trade.ID, fillIDs)
	if err != nil {
		return fmt.Errorf("error linking fills to trade: %w", err)
	}
	if linked != int64(len(fillIDs)) {
		return fmt.Errorf("linked %d of %d fills to trade: some fills already belong to a trade", linked, len(fillIDs))
	}
	return tx.Commit()
}
