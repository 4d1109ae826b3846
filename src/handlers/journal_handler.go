package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/model"
	"github.com/username/tradejournal/backend/src/models"
	"github.com/username/tradejournal/backend/src/security/validation"
	"github.com/username/tradejournal/backend/src/services"
	"github.com/username/tradejournal/backend/src/utils"
)

// JournalHandler serves read-only views of the journal to UI collaborators.
type JournalHandler struct {
	journalService services.JournalService
}

func NewJournalHandler(journalService services.JournalService) *JournalHandler {
	return &JournalHandler{journalService: journalService}
}

func (h *JournalHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "user identity is required", http.StatusUnauthorized)
		return
	}
	accounts, err := h.journalService.ListAccounts(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error listing accounts", "error", err)
		utils.SendJSONError(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	sendWithETag(w, r, accounts)
}

func (h *JournalHandler) HandleListTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "user identity is required", http.StatusUnauthorized)
		return
	}

	var filter model.TradeFilter
	var err error
	if filter.AccountID, err = optionalID(r, "account_id"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if filter.BatchID, err = optionalID(r, "batch_id"); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if day := r.URL.Query().Get("trading_day"); day != "" {
		if err := validation.ValidateTradingDay(day); err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.TradingDay = day
	}

	trades, err := h.journalService.ListTrades(r.Context(), userID, filter)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error listing trades", "error", err)
		utils.SendJSONError(w, "failed to list trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []models.TradeView{}
	}
	sendWithETag(w, r, trades)
}

func (h *JournalHandler) HandleListDailySummaries(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "user identity is required", http.StatusUnauthorized)
		return
	}
	accountID, err := optionalID(r, "account_id")
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if accountID == 0 {
		utils.SendJSONError(w, "account_id is required", http.StatusBadRequest)
		return
	}

	summaries, err := h.journalService.ListDailySummaries(r.Context(), userID, accountID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error listing daily summaries", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "failed to list daily summaries", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []models.DailySummary{}
	}
	sendWithETag(w, r, summaries)
}

func (h *JournalHandler) HandleGetDailySummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "user identity is required", http.StatusUnauthorized)
		return
	}
	tradingDay := chi.URLParam(r, "tradingDay")
	if err := validation.ValidateTradingDay(tradingDay); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	accountID, err := optionalID(r, "account_id")
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if accountID == 0 {
		utils.SendJSONError(w, "account_id is required", http.StatusBadRequest)
		return
	}

	summary, err := h.journalService.GetDailySummary(r.Context(), userID, accountID, tradingDay)
	if errors.Is(err, services.ErrNotFound) {
		utils.SendJSONError(w, "no summary for this trading day", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("Error loading daily summary", "accountID", accountID, "tradingDay", tradingDay, "error", err)
		utils.SendJSONError(w, "failed to load daily summary", http.StatusInternalServerError)
		return
	}
	sendWithETag(w, r, summary)
}

func optionalID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// sendWithETag answers 304 when the client already holds the current representation.
func sendWithETag(w http.ResponseWriter, r *http.Request, data any) {
	log := logger.FromContext(r.Context())
	w.Header().Set("Cache-Control", "no-cache, private")

	currentETag, err := utils.GenerateETag(data)
	if err != nil {
		log.Warn("Proceeding without ETag check due to ETag generation error", "error", err)
		utils.SendJSON(w, data, http.StatusOK)
		return
	}
	quotedETag := fmt.Sprintf("%q", currentETag)
	w.Header().Set("ETag", quotedETag)
	if clientETag := r.Header.Get("If-None-Match"); clientETag != "" {
		if utils.ETagMatches(clientETag, quotedETag) {
			log.Debug("ETag match", "path", r.URL.Path, "etag", currentETag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		log.Debug("ETag mismatch", "clientETags", clientETag, "serverETag", quotedETag)
	}
	utils.SendJSON(w, data, http.StatusOK)
}
