package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/services"
	"github.com/username/tradejournal/backend/src/utils"
)

// maxRMultiple bounds what a user may record; anything larger is a typo.
var maxRMultiple = decimal.NewFromInt(1000)

type TradeHandler struct {
	annotationService services.AnnotationService
}

func NewTradeHandler(annotationService services.AnnotationService) *TradeHandler {
	return &TradeHandler{annotationService: annotationService}
}

type rMultipleRequest struct {
	RMultiple *decimal.Decimal `json:"rMultiple"`
}

func (h *TradeHandler) HandleSetRMultiple(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "user identity is required", http.StatusUnauthorized)
		return
	}
	tradeID, err := strconv.ParseInt(chi.URLParam(r, "tradeID"), 10, 64)
	if err != nil || tradeID <= 0 {
		utils.SendJSONError(w, "invalid trade id", http.StatusBadRequest)
		return
	}

	var req rMultipleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RMultiple == nil {
		utils.SendJSONError(w, "rMultiple is required", http.StatusBadRequest)
		return
	}
	if req.RMultiple.Abs().GreaterThan(maxRMultiple) {
		utils.SendJSONError(w, "rMultiple is out of range", http.StatusBadRequest)
		return
	}

	trade, err := h.annotationService.SetRMultiple(r.Context(), userID, tradeID, *req.RMultiple)
	if errors.Is(err, services.ErrNotFound) {
		utils.SendJSONError(w, "trade not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error("Error setting r-multiple", "tradeID", tradeID, "error", err)
		utils.SendJSONError(w, "failed to update trade", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, trade.View(), http.StatusOK)
}
