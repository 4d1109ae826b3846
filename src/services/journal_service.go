package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/tradejournal/backend/src/model"
	"github.com/username/tradejournal/backend/src/models"
)

const (
	ckAccounts  = "accounts_user_%d"
	ckTrades    = "trades_user_%d_acct_%d_day_%s_batch_%d"
	ckSummaries = "summaries_user_%d_acct_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type journalServiceImpl struct {
	db          *sql.DB
	reportCache *cache.Cache
	expiration  time.Duration
}

// NewJournalService serves read queries through reportCache. Entries are dropped
// whenever an import finishes for the user.
func NewJournalService(db *sql.DB, reportCache *cache.Cache, expiration time.Duration) JournalService {
	if expiration <= 0 {
		expiration = DefaultCacheExpiration
	}
	return &journalServiceImpl{db: db, reportCache: reportCache, expiration: expiration}
}

func cached[T any](s *journalServiceImpl, key string, load func() (T, error)) (T, error) {
	if v, found := s.reportCache.Get(key); found {
		return v.(T), nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	s.reportCache.Set(key, v, s.expiration)
	return v, nil
}

func (s *journalServiceImpl) ListBatches(ctx context.Context, userID int64) ([]models.ImportBatch, error) {
	// Batch status changes outside imports (stale sweeps), so batches are read through.
	return model.ListBatches(ctx, s.db, userID, 100)
}

func (s *journalServiceImpl) GetBatch(ctx context.Context, userID, batchID int64) (*models.ImportBatch, error) {
	return model.GetBatch(ctx, s.db, userID, batchID)
}

// ListBatchFills returns the fills a batch persisted. Duplicates were never stored, so a
// batch that only re-imported known fills lists nothing.
func (s *journalServiceImpl) ListBatchFills(ctx context.Context, userID, batchID int64) ([]models.Fill, error) {
	if _, err := model.GetBatch(ctx, s.db, userID, batchID); err != nil {
		return nil, err
	}
	return model.ListFillsByBatch(ctx, s.db, userID, batchID)
}

func (s *journalServiceImpl) ListAccounts(ctx context.Context, userID int64) ([]models.Account, error) {
	return cached(s, fmt.Sprintf(ckAccounts, userID), func() ([]models.Account, error) {
		return model.ListAccounts(ctx, s.db, userID)
	})
}

func (s *journalServiceImpl) ListTrades(ctx context.Context, userID int64, filter model.TradeFilter) ([]models.TradeView, error) {
	key := fmt.Sprintf(ckTrades, userID, filter.AccountID, filter.TradingDay, filter.BatchID)
	return cached(s, key, func() ([]models.TradeView, error) {
		trades, err := model.ListTrades(ctx, s.db, userID, filter)
		if err != nil {
			return nil, err
		}
		views := make([]models.TradeView, len(trades))
		for i, t := range trades {
			views[i] = t.View()
		}
		return views, nil
	})
}

func (s *journalServiceImpl) ListDailySummaries(ctx context.Context, userID, accountID int64) ([]models.DailySummary, error) {
	return cached(s, fmt.Sprintf(ckSummaries, userID, accountID), func() ([]models.DailySummary, error) {
		return model.ListDailySummaries(ctx, s.db, userID, accountID)
	})
}

func (s *journalServiceImpl) GetDailySummary(ctx context.Context, userID, accountID int64, tradingDay string) (*models.DailySummary, error) {
	return model.GetDailySummary(ctx, s.db, userID, accountID, tradingDay)
}

// InvalidateUserCache drops every cached read of the user.
func (s *journalServiceImpl) InvalidateUserCache(userID int64) {
	accountsKey := fmt.Sprintf(ckAccounts, userID)
	prefixes := []string{
		fmt.Sprintf("trades_user_%d_", userID),
		fmt.Sprintf("summaries_user_%d_", userID),
	}
	for key := range s.reportCache.Items() {
		if key == accountsKey {
			s.reportCache.Delete(key)
			continue
		}
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) {
				s.reportCache.Delete(key)
				break
			}
		}
	}
}
