// Package commands holds the subcommands of the trade journal binary.
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/google/subcommands"
	"github.com/patrickmn/go-cache"
	"github.com/username/tradejournal/backend/src/config"
	"github.com/username/tradejournal/backend/src/database"
	"github.com/username/tradejournal/backend/src/model"
	"github.com/username/tradejournal/backend/src/models"
	"github.com/username/tradejournal/backend/src/processors"
	"github.com/username/tradejournal/backend/src/services"
)

// Commands lists every subcommand registered by main.
var Commands = []subcommands.Command{
	&serveCmd{},
	&importCmd{},
	&recomputeCmd{},
	&sweepCmd{},
	&addUserCmd{},
	&reportCmd{},
	&instrumentCmd{},
}

// app wires the store and services the way every subcommand needs them.
type app struct {
	cfg         *config.AppConfig
	db          *sql.DB
	journal     services.JournalService
	aggregates  services.AggregateService
	imports     services.ImportService
	annotations services.AnnotationService
}

func newApp(cfg *config.AppConfig) (*app, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return wire(cfg, db), nil
}

func wire(cfg *config.AppConfig, db *sql.DB) *app {
	reportCache := cache.New(cfg.CacheExpiration, services.CacheCleanupInterval)
	journal := services.NewJournalService(db, reportCache, cfg.CacheExpiration)
	aggregates := services.NewAggregateService(db, cfg.Workers)
	imports := services.NewImportService(
		db,
		services.NewDedupService(db, processors.NewFillProcessor()),
		services.NewTradeService(db, processors.NewTradeProcessor(), cfg.Workers),
		aggregates,
		journal,
		cfg.DefaultBroker,
		cfg.ImportFormat,
	)
	return &app{
		cfg:         cfg,
		db:          db,
		journal:     journal,
		aggregates:  aggregates,
		imports:     imports,
		annotations: services.NewAnnotationService(db, aggregates, journal),
	}
}

func (a *app) Close() error { return a.db.Close() }

// lookupUser accepts a numeric id or a username.
func (a *app) lookupUser(ctx context.Context, ref string) (*models.User, error) {
	if ref == "" {
		return nil, fmt.Errorf("a user is required (-u)")
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return model.GetUserByID(ctx, a.db, id)
	}
	return model.GetUserByUsername(ctx, a.db, ref)
}

// accountsFor returns the named account, or every account of the user when externalID is empty.
func (a *app) accountsFor(ctx context.Context, userID int64, externalID string) ([]models.Account, error) {
	if externalID == "" {
		return model.ListAccounts(ctx, a.db, userID)
	}
	account, err := model.GetAccountByExternalID(ctx, a.db, userID, externalID)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", externalID, err)
	}
	return []models.Account{*account}, nil
}
