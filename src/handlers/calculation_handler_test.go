package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-tsaryk/InvestTax.Calculator/src/config"
	"github.com/m-tsaryk/InvestTax.Calculator/src/database"
	"github.com/m-tsaryk/InvestTax.Calculator/src/logger"
	"github.com/m-tsaryk/InvestTax.Calculator/src/models"
	"github.com/m-tsaryk/InvestTax.Calculator/src/processors"
	"github.com/m-tsaryk/InvestTax.Calculator/src/services"
	"github.com/m-tsaryk/InvestTax.Calculator/src/validation"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	config.Cfg = &config.AppConfig{MaxUploadSizeBytes: 5 * 1024 * 1024}
	m.Run()
}

type stubCalculationService struct {
	submitJob  *models.Job
	submitErr  error
	job        *models.Job
	jobErr     error
	report     string
	reportErr  error
	summary    *models.TaxSummary
	summaryErr error
}

func (s *stubCalculationService) SubmitCalculation(ctx context.Context, fileReader io.Reader, email string, year int) (*models.Job, error) {
	return s.submitJob, s.submitErr
}

func (s *stubCalculationService) GetJob(id string) (*models.Job, error) {
	return s.job, s.jobErr
}

func (s *stubCalculationService) GetReport(id string) (string, error) {
	return s.report, s.reportErr
}

func (s *stubCalculationService) GetSummary(id string) (*models.TaxSummary, error) {
	return s.summary, s.summaryErr
}

func newMux(service services.CalculationService) *http.ServeMux {
	handler := NewCalculationHandler(service)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/calculations", handler.HandleSubmit)
	mux.HandleFunc("GET /api/calculations/{id}", handler.HandleGetJob)
	mux.HandleFunc("GET /api/calculations/{id}/report", handler.HandleGetReport)
	mux.HandleFunc("GET /api/calculations/{id}/summary", handler.HandleGetSummary)
	return mux
}

func multipartRequest(t *testing.T, fields map[string]string, fileContent string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if fileContent != "" {
		part, err := writer.CreateFormFile("file", "transactions.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(fileContent))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/calculations", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func completedJob() *models.Job {
	now := time.Now().UTC()
	return &models.Job{
		ID:        "job-1",
		Email:     "user@example.com",
		Year:      2024,
		Status:    models.JobStatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestHandleSubmitSuccess(t *testing.T) {
	service := &stubCalculationService{submitJob: completedJob()}
	mux := newMux(service)

	req := multipartRequest(t, map[string]string{"email": "user@example.com"}, "Action|Time\n")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}

func TestHandleSubmitRejectsMissingEmail(t *testing.T) {
	mux := newMux(&stubCalculationService{})

	req := multipartRequest(t, map[string]string{}, "Action|Time\n")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email")
}

func TestHandleSubmitRejectsInvalidYear(t *testing.T) {
	mux := newMux(&stubCalculationService{})

	req := multipartRequest(t, map[string]string{"email": "user@example.com", "year": "not-a-year"}, "Action|Time\n")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "year")
}

func TestHandleSubmitRejectsMissingFile(t *testing.T) {
	mux := newMux(&stubCalculationService{})

	req := multipartRequest(t, map[string]string{"email": "user@example.com"}, "")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "file")
}

func TestHandleSubmitValidationFailure(t *testing.T) {
	failed := completedJob()
	failed.Status = models.JobStatusFailed
	service := &stubCalculationService{
		submitJob: failed,
		submitErr: &services.ValidationFailedError{Result: validation.ValidationResult{
			RowCount: 1,
			Errors:   []validation.ValidationError{{Row: 2, Column: "ISIN", Message: "too short"}},
		}},
	}
	mux := newMux(service)

	req := multipartRequest(t, map[string]string{"email": "user@example.com"}, "Action|Time\n")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var response struct {
		Error      string                      `json:"error"`
		Validation validation.ValidationResult `json:"validation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "File content validation failed", response.Error)
	require.Len(t, response.Validation.Errors, 1)
	assert.Equal(t, "ISIN", response.Validation.Errors[0].Column)
}

func TestHandleSubmitInsufficientLots(t *testing.T) {
	service := &stubCalculationService{
		submitErr: &processors.InsufficientLotsError{ISIN: "US0378331005", UnmatchedShares: decimal.NewFromInt(5)},
	}
	mux := newMux(service)

	req := multipartRequest(t, map[string]string{"email": "user@example.com"}, "Action|Time\n")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "US0378331005")
}

func TestHandleGetJobFound(t *testing.T) {
	mux := newMux(&stubCalculationService{job: completedJob()})

	req := httptest.NewRequest(http.MethodGet, "/api/calculations/job-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var job models.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "job-1", job.ID)
}

func TestHandleGetJobNotFound(t *testing.T) {
	mux := newMux(&stubCalculationService{jobErr: database.ErrJobNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/calculations/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetReport(t *testing.T) {
	mux := newMux(&stubCalculationService{report: "REPORT BODY"})

	req := httptest.NewRequest(http.MethodGet, "/api/calculations/job-1/report", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "REPORT BODY", rec.Body.String())
}

func TestHandleGetReportNotReady(t *testing.T) {
	mux := newMux(&stubCalculationService{reportErr: services.ErrJobNotReady})

	req := httptest.NewRequest(http.MethodGet, "/api/calculations/job-1/report", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleGetSummaryWithETag(t *testing.T) {
	summary := &models.TaxSummary{Year: 2024, TotalGainsPLN: decimal.NewFromInt(1380)}
	mux := newMux(&stubCalculationService{summary: summary})

	req := httptest.NewRequest(http.MethodGet, "/api/calculations/job-1/summary", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	cached := httptest.NewRequest(http.MethodGet, "/api/calculations/job-1/summary", nil)
	cached.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, cached)

	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestHandleGetSummaryNotFound(t *testing.T) {
	mux := newMux(&stubCalculationService{summaryErr: database.ErrJobNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/calculations/job-1/summary", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
