package models

import "time"

// JobStatus tracks a calculation job through the pipeline stages.
type JobStatus string

const (
	JobStatusCreated          JobStatus = "created"
	JobStatusValidating       JobStatus = "validating"
	JobStatusNormalizing      JobStatus = "normalizing"
	JobStatusFetchingRates    JobStatus = "fetching_rates"
	JobStatusCalculating      JobStatus = "calculating"
	JobStatusGeneratingReport JobStatus = "generating_report"
	JobStatusSendingEmail     JobStatus = "sending_email"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusFailed           JobStatus = "failed"
)

// Job is one tax calculation request, persisted across pipeline stages.
type Job struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Year             int        `json:"year"`
	Status           JobStatus  `json:"status"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	TransactionCount int        `json:"transactionCount"`
	DurationSeconds  float64    `json:"durationSeconds"`
}
