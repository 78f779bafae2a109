package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/m-tsaryk/InvestTax.Calculator/src/models"
)

var ErrJobNotFound = errors.New("job not found")

// SQLJobRepository persists calculation jobs in SQLite.
type SQLJobRepository struct {
	db *sql.DB
}

func NewSQLJobRepository(db *sql.DB) *SQLJobRepository {
	return &SQLJobRepository{db: db}
}

func (r *SQLJobRepository) CreateJob(job *models.Job) error {
	_, err := r.db.Exec(`
		INSERT INTO jobs (id, email, year, status, created_at, updated_at, error_message, transaction_count, duration_seconds, report, summary_json)
		VALUES (?, ?, ?, ?, ?, ?, '', 0, 0, '', '')`,
		job.ID, job.Email, job.Year, string(job.Status), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

func (r *SQLJobRepository) GetJob(id string) (*models.Job, error) {
	row := r.db.QueryRow(`
		SELECT id, email, year, status, created_at, updated_at, completed_at, error_message, transaction_count, duration_seconds
		FROM jobs WHERE id = ?`, id)

	var job models.Job
	var status string
	var completedAt sql.NullTime
	err := row.Scan(&job.ID, &job.Email, &job.Year, &status, &job.CreatedAt, &job.UpdatedAt,
		&completedAt, &job.ErrorMessage, &job.TransactionCount, &job.DurationSeconds)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	job.Status = models.JobStatus(status)
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

func (r *SQLJobRepository) UpdateStatus(id string, status models.JobStatus) error {
	result, err := r.db.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update status of job %s: %w", id, err)
	}
	return checkAffected(result, id)
}

func (r *SQLJobRepository) SetYear(id string, year int) error {
	result, err := r.db.Exec(`UPDATE jobs SET year = ?, updated_at = ? WHERE id = ?`,
		year, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update year of job %s: %w", id, err)
	}
	return checkAffected(result, id)
}

func (r *SQLJobRepository) SetTransactionCount(id string, count int) error {
	result, err := r.db.Exec(`UPDATE jobs SET transaction_count = ?, updated_at = ? WHERE id = ?`,
		count, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update transaction count of job %s: %w", id, err)
	}
	return checkAffected(result, id)
}

func (r *SQLJobRepository) MarkCompleted(id, report, summaryJSON string, duration time.Duration) error {
	now := time.Now().UTC()
	result, err := r.db.Exec(`
		UPDATE jobs
		SET status = ?, updated_at = ?, completed_at = ?, report = ?, summary_json = ?, duration_seconds = ?
		WHERE id = ?`,
		string(models.JobStatusCompleted), now, now, report, summaryJSON, duration.Seconds(), id)
	if err != nil {
		return fmt.Errorf("failed to mark job %s completed: %w", id, err)
	}
	return checkAffected(result, id)
}

func (r *SQLJobRepository) MarkFailed(id, message string) error {
	now := time.Now().UTC()
	result, err := r.db.Exec(`
		UPDATE jobs
		SET status = ?, updated_at = ?, completed_at = ?, error_message = ?
		WHERE id = ?`,
		string(models.JobStatusFailed), now, now, message, id)
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", id, err)
	}
	return checkAffected(result, id)
}

func (r *SQLJobRepository) GetReport(id string) (string, error) {
	var report string
	err := r.db.QueryRow(`SELECT report FROM jobs WHERE id = ?`, id).Scan(&report)
	if err == sql.ErrNoRows {
		return "", ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load report of job %s: %w", id, err)
	}
	return report, nil
}

func (r *SQLJobRepository) GetSummaryJSON(id string) (string, error) {
	var summary string
	err := r.db.QueryRow(`SELECT summary_json FROM jobs WHERE id = ?`, id).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load summary of job %s: %w", id, err)
	}
	return summary, nil
}

func checkAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of job %s: %w", id, err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}
