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

type aggregateServiceImpl struct {
	db      *sql.DB
	workers int
}

func NewAggregateService(db *sql.DB, workers int) AggregateService {
	if workers < 1 {
		workers = 1
	}
	return &aggregateServiceImpl{db: db, workers: workers}
}

// summarize builds the summary of one day and chains it onto previous.
func summarize(ctx context.Context, q model.Querier, userID, accountID int64, tradingDay string, previous models.DailySummary) (*models.DailySummary, error) {
	trades, err := model.ListClosedTradesForDay(ctx, q, userID, accountID, tradingDay)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades for %s: %w", tradingDay, err)
	}
	s := processors.SummarizeDay(trades)
	s.UserID = userID
	s.AccountID = accountID
	s.TradingDay = tradingDay
	s.CumulativePnL = previous.CumulativePnL.Add(s.NetPnL)
	if err := model.UpsertDailySummary(ctx, q, &s); err != nil {
		return nil, fmt.Errorf("failed to upsert summary for %s: %w", tradingDay, err)
	}
	return &s, nil
}

func (s *aggregateServiceImpl) Recalculate(ctx context.Context, userID, accountID int64, tradingDay string) (*models.DailySummary, error) {
	prev, err := model.CumulativeBefore(ctx, s.db, userID, accountID, tradingDay)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous cumulative P&L: %w", err)
	}
	return summarize(ctx, s.db, userID, accountID, tradingDay, models.DailySummary{CumulativePnL: prev})
}

// RecomputeFrom folds the account's days >= fromDay in ascending order, each day starting
// from the cumulative value just written for the day before. The chain commits atomically.
func (s *aggregateServiceImpl) RecomputeFrom(ctx context.Context, userID, accountID int64, fromDay string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer tx.Rollback()

	days, err := model.TradingDaysFrom(ctx, tx, userID, accountID, fromDay)
	if err != nil {
		return 0, fmt.Errorf("failed to list trading days: %w", err)
	}
	if len(days) == 0 {
		return 0, nil
	}
	prevCumulative, err := model.CumulativeBefore(ctx, tx, userID, accountID, days[0])
	if err != nil {
		return 0, fmt.Errorf("failed to load previous cumulative P&L: %w", err)
	}

	previous := models.DailySummary{CumulativePnL: prevCumulative}
	for _, day := range days {
		current, err := summarize(ctx, tx, userID, accountID, day, previous)
		if err != nil {
			return 0, err
		}
		previous = *current
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing summaries: %w", err)
	}

	logger.FromContext(ctx).Info("Daily summaries recomputed", "userID", userID, "accountID", accountID,
		"fromDay", fromDay, "days", len(days), "cumulativePnL", previous.CumulativePnL.String())
	return len(days), nil
}

// RecomputeAccounts runs one chain per account; chains are independent.
func (s *aggregateServiceImpl) RecomputeAccounts(ctx context.Context, userID int64, fromDays map[int64]string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for accountID, fromDay := range fromDays {
		accountID, fromDay := accountID, fromDay
		g.Go(func() error {
			if _, err := s.RecomputeFrom(gctx, userID, accountID, fromDay); err != nil {
				return fmt.Errorf("account %d: %w", accountID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RecomputeAll rebuilds every summary of the account, including days whose trades are gone.
func (s *aggregateServiceImpl) RecomputeAll(ctx context.Context, userID, accountID int64) (int, error) {
	return s.RecomputeFrom(ctx, userID, accountID, "")
}
