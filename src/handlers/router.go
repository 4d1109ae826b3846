package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/username/tradejournal/backend/src/services"
	"golang.org/x/time/rate"
)

// RouterConfig gathers what NewRouter wires into the HTTP surface.
type RouterConfig struct {
	Imports        services.ImportService
	Journal        services.JournalService
	Annotations    services.AnnotationService
	MaxUploadBytes int64
	Limiter        *rate.Limiter
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	importHandler := NewImportHandler(cfg.Imports, cfg.Journal, cfg.MaxUploadBytes)
	journalHandler := NewJournalHandler(cfg.Journal)
	tradeHandler := NewTradeHandler(cfg.Annotations)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(ContextualLoggerMiddleware)
	r.Use(proxyHeadersMiddleware)
	r.Use(enableCORS(cfg.AllowedOrigins))
	if cfg.Limiter != nil {
		r.Use(RateLimitMiddleware(cfg.Limiter))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Trade journal backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(UserIdentityMiddleware)

		r.Post("/imports", importHandler.HandleImport)
		r.Get("/imports", importHandler.HandleListImports)
		r.Get("/imports/{batchID}", importHandler.HandleGetImport)
		r.Get("/imports/{batchID}/fills", importHandler.HandleListImportFills)

		r.Get("/accounts", journalHandler.HandleListAccounts)
		r.Get("/trades", journalHandler.HandleListTrades)
		r.Put("/trades/{tradeID}/r-multiple", tradeHandler.HandleSetRMultiple)
		r.Get("/daily-summaries", journalHandler.HandleListDailySummaries)
		r.Get("/daily-summaries/{tradingDay}", journalHandler.HandleGetDailySummary)
	})

	return r
}
