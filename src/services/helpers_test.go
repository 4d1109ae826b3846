package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/require"
	"github.com/username/tradejournal/backend/src/database"
	"github.com/username/tradejournal/backend/src/model"
	"github.com/username/tradejournal/backend/src/processors"
)

const tradovateHeader = "_id,_orderId,Account,Contract,Product,B/S,_qty,_price,_timestamp,_tradeDate,commission,_active"

type testEnv struct {
	db         *sql.DB
	userID     int64
	journal    JournalService
	aggregates AggregateService
	dedup      Deduplicator
	trades     TradeService
	imports    ImportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	user, err := model.CreateUser(context.Background(), db, "trader")
	require.NoError(t, err)

	env := &testEnv{db: db, userID: user.ID}
	env.journal = NewJournalService(db, cache.New(time.Minute, time.Minute), time.Minute)
	env.aggregates = NewAggregateService(db, 2)
	env.dedup = NewDedupService(db, processors.NewFillProcessor())
	env.trades = NewTradeService(db, processors.NewTradeProcessor(), 2)
	env.imports = env.importService(env.dedup, env.aggregates)
	return env
}

func (e *testEnv) importService(dedup Deduplicator, aggregates AggregateService) ImportService {
	return NewImportService(e.db, dedup, e.trades, aggregates, e.journal, "tradovate", "tradovate")
}

// row renders one Tradovate fill line; the root symbol is derived from the contract.
func row(id, account, contract, side string, qty int, price, timestamp, day string) string {
	return fmt.Sprintf("%s,ORD-%s,%s,%s,,%s,%d,%s,%s,%s,0,true", id, id, account, contract, side, qty, price, timestamp, day)
}

func csvFile(rows ...string) io.Reader {
	return strings.NewReader(tradovateHeader + "\n" + strings.Join(rows, "\n") + "\n")
}

func (e *testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
