package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/username/tradejournal/backend/src/logger"
	"github.com/username/tradejournal/backend/src/models"
	"github.com/username/tradejournal/backend/src/security/validation"
	"github.com/username/tradejournal/backend/src/services"
	"github.com/username/tradejournal/backend/src/utils"
)

type ImportHandler struct {
	importService  services.ImportService
	journalService services.JournalService
	maxUploadBytes int64
}

func NewImportHandler(importService services.ImportService, journalService services.JournalService, maxUploadBytes int64) *ImportHandler {
	return &ImportHandler{
		importService:  importService,
		journalService: journalService,
		maxUploadBytes: maxUploadBytes,
	}
}

// HandleImport accepts a multipart upload with a "file" part and an optional "format" field.
func (h *ImportHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "user identity is required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		log.Warn("Failed to parse multipart form or request too large", "error", err, "limit", h.maxUploadBytes)
		utils.SendJSONError(w, fmt.Sprintf("failed to read upload or file too large (max %d MB)", h.maxUploadBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.FormValue("format")))

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		log.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "failed to retrieve file from request, ensure the 'file' field is used", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := validation.ValidateFilename(fileHeader.Filename); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		log.Warn("Invalid client-declared file type", "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		log.Warn("Server-side file content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Info("Processing import request", "filename", fileHeader.Filename, "format", format,
		"clientType", clientContentType, "detectedType", detectedContentType, "size", fileHeader.Size)

	result, err := h.importService.Import(r.Context(), file, fileHeader.Filename, format, userID)
	switch {
	case err == nil:
		utils.SendJSON(w, result, http.StatusOK)
	case errors.Is(err, services.ErrProcessingFailed) && result != nil:
		utils.SendJSON(w, result, http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrMissingUser):
		utils.SendJSONError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, services.ErrUnknownUser):
		utils.SendJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrParsingFailed):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error("Import failed", "error", err)
		utils.SendJSONError(w, "import failed", http.StatusInternalServerError)
	}
}

func (h *ImportHandler) HandleListImports(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "user identity is required", http.StatusUnauthorized)
		return
	}
	batches, err := h.journalService.ListBatches(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error listing import batches", "error", err)
		utils.SendJSONError(w, "failed to list imports", http.StatusInternalServerError)
		return
	}
	if batches == nil {
		batches = []models.ImportBatch{}
	}
	sendWithETag(w, r, batches)
}

func (h *ImportHandler) HandleGetImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "user identity is required", http.StatusUnauthorized)
		return
	}
	batchID, err := strconv.ParseInt(chi.URLParam(r, "batchID"), 10, 64)
	if err != nil || batchID <= 0 {
		utils.SendJSONError(w, "invalid batch id", http.StatusBadRequest)
		return
	}
	batch, err := h.journalService.GetBatch(r.Context(), userID, batchID)
	if errors.Is(err, services.ErrNotFound) {
		utils.SendJSONError(w, "import not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("Error loading import batch", "batchID", batchID, "error", err)
		utils.SendJSONError(w, "failed to load import", http.StatusInternalServerError)
		return
	}
	sendWithETag(w, r, batch)
}

// HandleListImportFills lists the fills a batch stored, in insertion order.
func (h *ImportHandler) HandleListImportFills(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "user identity is required", http.StatusUnauthorized)
		return
	}
	batchID, err := strconv.ParseInt(chi.URLParam(r, "batchID"), 10, 64)
	if err != nil || batchID <= 0 {
		utils.SendJSONError(w, "invalid batch id", http.StatusBadRequest)
		return
	}
	fills, err := h.journalService.ListBatchFills(r.Context(), userID, batchID)
	if errors.Is(err, services.ErrNotFound) {
		utils.SendJSONError(w, "import not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("Error listing batch fills", "batchID", batchID, "error", err)
		utils.SendJSONError(w, "failed to list import fills", http.StatusInternalServerError)
		return
	}
	if fills == nil {
		fills = []models.Fill{}
	}
	sendWithETag(w, r, fills)
}
