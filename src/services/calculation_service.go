package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/m-tsaryk/InvestTax.Calculator/src/logger"
	"github.com/m-tsaryk/InvestTax.Calculator/src/models"
	"github.com/m-tsaryk/InvestTax.Calculator/src/parsers"
	"github.com/m-tsaryk/InvestTax.Calculator/src/processors"
	"github.com/m-tsaryk/InvestTax.Calculator/src/reports"
	"github.com/m-tsaryk/InvestTax.Calculator/src/validation"
)

const (
	ckJobSummary = "summary_job_%s"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

var (
	ErrParsingFailed = errors.New("failed to parse CSV file")
	ErrJobNotReady   = errors.New("job has not completed")
)

// ValidationFailedError carries every row problem found in the upload.
type ValidationFailedError struct {
	Result validation.ValidationResult
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("csv validation failed with %d errors", len(e.Result.Errors))
}

// JobRepository persists calculation jobs and their results.
type JobRepository interface {
	CreateJob(job *models.Job) error
	GetJob(id string) (*models.Job, error)
	UpdateStatus(id string, status models.JobStatus) error
	SetYear(id string, year int) error
	SetTransactionCount(id string, count int) error
	MarkCompleted(id, report, summaryJSON string, duration time.Duration) error
	MarkFailed(id, message string) error
	GetReport(id string) (string, error)
	GetSummaryJSON(id string) (string, error)
}

type CalculationService interface {
	SubmitCalculation(ctx context.Context, fileReader io.Reader, email string, year int) (*models.Job, error)
	GetJob(id string) (*models.Job, error)
	GetReport(id string) (string, error)
	GetSummary(id string) (*models.TaxSummary, error)
}

type calculationServiceImpl struct {
	jobs         JobRepository
	parser       *parsers.CSVParser
	validator    *validation.Validator
	normalizer   *parsers.Normalizer
	rateBuilder  *processors.RateMapBuilder
	fifo         *processors.FifoProcessor
	summarizer   *processors.SummaryProcessor
	reportGen    *reports.TextReportGenerator
	email        EmailService
	summaryCache *cache.Cache
}

func NewCalculationService(
	jobs JobRepository,
	validator *validation.Validator,
	normalizer *parsers.Normalizer,
	rateBuilder *processors.RateMapBuilder,
	email EmailService,
	summaryCache *cache.Cache,
) CalculationService {
	return &calculationServiceImpl{
		jobs:         jobs,
		parser:       parsers.NewCSVParser(),
		validator:    validator,
		normalizer:   normalizer,
		rateBuilder:  rateBuilder,
		fifo:         processors.NewFifoProcessor(),
		summarizer:   processors.NewSummaryProcessor(),
		reportGen:    reports.NewTextReportGenerator(),
		email:        email,
		summaryCache: summaryCache,
	}
}

// SubmitCalculation runs the whole pipeline for one upload. The job row is
// updated after every stage so its status history survives a crash. A failed
// stage aborts the job; no partial results are stored.
func (s *calculationServiceImpl) SubmitCalculation(ctx context.Context, fileReader io.Reader, email string, year int) (*models.Job, error) {
	startTime := time.Now()
	now := startTime.UTC()

	job := &models.Job{
		ID:        uuid.NewString(),
		Email:     email,
		Year:      year,
		Status:    models.JobStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.CreateJob(job); err != nil {
		return nil, err
	}
	logger.L.Info("Calculation job created", "jobID", job.ID, "email", email, "year", year)

	stage, err := s.runPipeline(ctx, job, fileReader, startTime)
	if err != nil {
		s.failJob(job, stage, err)
		failed, loadErr := s.jobs.GetJob(job.ID)
		if loadErr != nil {
			return job, err
		}
		return failed, err
	}

	completed, err := s.jobs.GetJob(job.ID)
	if err != nil {
		return job, err
	}
	logger.L.Info("Calculation job completed", "jobID", job.ID, "duration", time.Since(startTime))
	return completed, nil
}

// runPipeline returns the stage that failed alongside the error.
func (s *calculationServiceImpl) runPipeline(ctx context.Context, job *models.Job, fileReader io.Reader, startTime time.Time) (models.JobStatus, error) {
	if err := s.setStatus(job, models.JobStatusValidating); err != nil {
		return models.JobStatusValidating, err
	}
	rows, err := s.parser.Parse(fileReader)
	if err != nil {
		return models.JobStatusValidating, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	result := s.validator.Validate(rows)
	if !result.Valid {
		return models.JobStatusValidating, &ValidationFailedError{Result: result}
	}
	if job.Year == 0 {
		job.Year = result.Year
		if err := s.jobs.SetYear(job.ID, job.Year); err != nil {
			return models.JobStatusValidating, err
		}
	}

	if err := s.setStatus(job, models.JobStatusNormalizing); err != nil {
		return models.JobStatusNormalizing, err
	}
	groups, err := s.normalizer.Normalize(rows)
	if err != nil {
		return models.JobStatusNormalizing, err
	}
	if err := s.jobs.SetTransactionCount(job.ID, len(rows)); err != nil {
		return models.JobStatusNormalizing, err
	}

	if err := s.setStatus(job, models.JobStatusFetchingRates); err != nil {
		return models.JobStatusFetchingRates, err
	}
	rates, err := s.rateBuilder.Build(ctx, groups)
	if err != nil {
		return models.JobStatusFetchingRates, err
	}

	if err := s.setStatus(job, models.JobStatusCalculating); err != nil {
		return models.JobStatusCalculating, err
	}
	calculations, warnings, err := s.fifo.Process(groups, rates)
	if err != nil {
		return models.JobStatusCalculating, err
	}
	summary := s.summarizer.Aggregate(job.Year, calculations, warnings)

	if err := s.setStatus(job, models.JobStatusGeneratingReport); err != nil {
		return models.JobStatusGeneratingReport, err
	}
	report := s.reportGen.GenerateReport(&summary, job.ID, job.Email)
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return models.JobStatusGeneratingReport, fmt.Errorf("failed to encode summary: %w", err)
	}

	if err := s.setStatus(job, models.JobStatusSendingEmail); err != nil {
		return models.JobStatusSendingEmail, err
	}
	if err := s.email.SendReportEmail(job.Email, job.ID, job.Year, report); err != nil {
		return models.JobStatusSendingEmail, err
	}

	if err := s.jobs.MarkCompleted(job.ID, report, string(summaryJSON), time.Since(startTime)); err != nil {
		return models.JobStatusSendingEmail, err
	}
	s.summaryCache.Set(fmt.Sprintf(ckJobSummary, job.ID), &summary, cache.DefaultExpiration)
	return models.JobStatusCompleted, nil
}

func (s *calculationServiceImpl) setStatus(job *models.Job, status models.JobStatus) error {
	if err := s.jobs.UpdateStatus(job.ID, status); err != nil {
		return err
	}
	job.Status = status
	logger.L.Debug("Job stage started", "jobID", job.ID, "stage", string(status))
	return nil
}

func (s *calculationServiceImpl) failJob(job *models.Job, stage models.JobStatus, cause error) {
	logger.L.Error("Calculation job failed", "jobID", job.ID, "stage", string(stage), "error", cause)
	if err := s.jobs.MarkFailed(job.ID, cause.Error()); err != nil {
		logger.L.Error("Failed to record job failure", "jobID", job.ID, "error", err)
	}
	if err := s.email.SendFailureEmail(job.Email, job.ID, job.Year, string(stage), cause.Error()); err != nil {
		logger.L.Error("Failed to send failure email", "jobID", job.ID, "error", err)
	}
}

func (s *calculationServiceImpl) GetJob(id string) (*models.Job, error) {
	return s.jobs.GetJob(id)
}

func (s *calculationServiceImpl) GetReport(id string) (string, error) {
	job, err := s.jobs.GetJob(id)
	if err != nil {
		return "", err
	}
	if job.Status != models.JobStatusCompleted {
		return "", ErrJobNotReady
	}
	return s.jobs.GetReport(id)
}

func (s *calculationServiceImpl) GetSummary(id string) (*models.TaxSummary, error) {
	cacheKey := fmt.Sprintf(ckJobSummary, id)
	if cached, found := s.summaryCache.Get(cacheKey); found {
		if summary, ok := cached.(*models.TaxSummary); ok {
			return summary, nil
		}
	}

	job, err := s.jobs.GetJob(id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return nil, ErrJobNotReady
	}

	summaryJSON, err := s.jobs.GetSummaryJSON(id)
	if err != nil {
		return nil, err
	}
	var summary models.TaxSummary
	if err := json.Unmarshal([]byte(summaryJSON), &summary); err != nil {
		return nil, fmt.Errorf("failed to decode stored summary of job %s: %w", id, err)
	}

	s.summaryCache.Set(cacheKey, &summary, cache.DefaultExpiration)
	return &summary, nil
}
