package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/model"
	"github.com/username/tradejournal/backend/src/models"
)

type annotationServiceImpl struct {
	db         *sql.DB
	aggregates AggregateService
	journal    JournalService
}

func NewAnnotationService(db *sql.DB, aggregates AggregateService, journal JournalService) AnnotationService {
	return &annotationServiceImpl{db: db, aggregates: aggregates, journal: journal}
}

func (s *annotationServiceImpl) SetRMultiple(ctx context.Context, userID, tradeID int64, r decimal.Decimal) (*models.Trade, error) {
	trade, err := model.GetTrade(ctx, s.db, userID, tradeID)
	if err != nil {
		return nil, err
	}
	if err := model.SetTradeRMultiple(ctx, s.db, userID, tradeID, r); err != nil {
		return nil, err
	}
	trade.RMultiple = decimal.NewNullDecimal(r)

	// Open trades are not part of any summary. Net P&L is unchanged, so later days keep
	// their cumulative values and only this day is rebuilt.
	if !trade.IsOpen {
		if _, err := s.aggregates.Recalculate(ctx, userID, trade.AccountID, trade.TradingDay); err != nil {
			return nil, fmt.Errorf("recalculating %s after r-multiple change: %w", trade.TradingDay, err)
		}
	}
	s.journal.InvalidateUserCache(userID)

	logger.L.Info("R-multiple recorded", "userID", userID, "tradeID", tradeID, "rMultiple", r.String())
	return trade, nil
}
