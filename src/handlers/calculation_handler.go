package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"

	"github.com/m-tsaryk/InvestTax.Calculator/src/config"
	"github.com/m-tsaryk/InvestTax.Calculator/src/database"
	"github.com/m-tsaryk/InvestTax.Calculator/src/logger"
	"github.com/m-tsaryk/InvestTax.Calculator/src/processors"
	"github.com/m-tsaryk/InvestTax.Calculator/src/services"
	"github.com/m-tsaryk/InvestTax.Calculator/src/utils"
)

type CalculationHandler struct {
	calculationService services.CalculationService
}

func NewCalculationHandler(service services.CalculationService) *CalculationHandler {
	return &CalculationHandler{
		calculationService: service,
	}
}

// HandleSubmit accepts a multipart upload with the broker CSV under "file",
// the recipient under "email" and an optional "year" override.
func (h *CalculationHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	email := r.FormValue("email")
	if _, err := mail.ParseAddress(email); err != nil {
		logger.L.Warn("Rejecting submission with invalid email", "email", email)
		utils.SendJSONError(w, "A valid 'email' field is required.", http.StatusBadRequest)
		return
	}

	year := 0
	if rawYear := r.FormValue("year"); rawYear != "" {
		parsed, err := strconv.Atoi(rawYear)
		if err != nil || parsed < 2000 || parsed > 2100 {
			utils.SendJSONError(w, "Invalid 'year' field.", http.StatusBadRequest)
			return
		}
		year = parsed
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		logger.L.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		logger.L.Warn("Uploaded file too large", "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	logger.L.Info("Processing calculation request", "email", email, "filename", fileHeader.Filename, "year", year)
	job, err := h.calculationService.SubmitCalculation(r.Context(), file, email, year)
	if err != nil {
		var validationErr *services.ValidationFailedError
		var lotsErr *processors.InsufficientLotsError
		switch {
		case errors.As(err, &validationErr):
			logger.L.Warn("Submission failed validation", "filename", fileHeader.Filename, "errorCount", len(validationErr.Result.Errors))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			if encodeErr := json.NewEncoder(w).Encode(map[string]any{
				"error":      "File content validation failed",
				"job":        job,
				"validation": validationErr.Result,
			}); encodeErr != nil {
				logger.L.Error("Error encoding validation failure response", "error", encodeErr)
			}
		case errors.Is(err, services.ErrParsingFailed):
			logger.L.Warn("Submission failed CSV parsing", "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Error parsing CSV file: %v", err), http.StatusBadRequest)
		case errors.As(err, &lotsErr):
			logger.L.Warn("Submission failed FIFO matching", "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			logger.L.Error("Internal error processing submission", "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, "An internal error occurred while processing the file. Please try again later.", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(job); err != nil {
		logger.L.Error("Error encoding JSON response for job", "jobID", job.ID, "error", err)
	}
}

func (h *CalculationHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := h.calculationService.GetJob(id)
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			utils.SendJSONError(w, fmt.Sprintf("Job %s not found.", id), http.StatusNotFound)
			return
		}
		logger.L.Error("Error retrieving job", "jobID", id, "error", err)
		utils.SendJSONError(w, "An internal error occurred.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(job); err != nil {
		logger.L.Error("Error encoding JSON response for job", "jobID", id, "error", err)
	}
}

func (h *CalculationHandler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	report, err := h.calculationService.GetReport(id)
	if err != nil {
		h.sendResultError(w, id, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(report)); err != nil {
		logger.L.Error("Error writing report response", "jobID", id, "error", err)
	}
}

func (h *CalculationHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	summary, err := h.calculationService.GetSummary(id)
	if err != nil {
		h.sendResultError(w, id, err)
		return
	}

	currentETag, etagErr := utils.GenerateETag(summary)
	if etagErr != nil {
		logger.L.Error("Failed to generate ETag for summary", "jobID", id, "error", etagErr)
	}

	w.Header().Set("Cache-Control", "no-cache, private")
	if currentETag != "" {
		w.Header().Set("ETag", currentETag)
		if r.Header.Get("If-None-Match") == currentETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		logger.L.Error("Error encoding JSON response for summary", "jobID", id, "error", err)
	}
}

func (h *CalculationHandler) sendResultError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, database.ErrJobNotFound):
		utils.SendJSONError(w, fmt.Sprintf("Job %s not found.", id), http.StatusNotFound)
	case errors.Is(err, services.ErrJobNotReady):
		utils.SendJSONError(w, fmt.Sprintf("Job %s has not completed yet.", id), http.StatusConflict)
	default:
		logger.L.Error("Error retrieving job result", "jobID", id, "error", err)
		utils.SendJSONError(w, "An internal error occurred.", http.StatusInternalServerError)
	}
}
