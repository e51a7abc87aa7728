package repository

import (
	"context"
	"time"

	"finesight-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AssessmentJobRepository handles database operations for assessment jobs
type AssessmentJobRepository struct {
	db *pgxpool.Pool
}

// NewAssessmentJobRepository creates a new assessment job repository
func NewAssessmentJobRepository(db *pgxpool.Pool) *AssessmentJobRepository {
	return &AssessmentJobRepository{db: db}
}

// Create creates a new assessment job
func (r *AssessmentJobRepository) Create(ctx context.Context, job *models.AssessmentJob) error {
	query := `
		INSERT INTO assessment_jobs (
			input, status, current_step, steps, error_message
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(
		ctx, query,
		job.Input,
		job.Status,
		job.CurrentStep,
		job.Steps,
		job.ErrorMessage,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)

	return err
}

// GetByID retrieves an assessment job by ID
func (r *AssessmentJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AssessmentJob, error) {
	job := &models.AssessmentJob{}
	query := `
		SELECT id, input, status, current_step, steps, result, error_message,
			created_at, updated_at, completed_at
		FROM assessment_jobs
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.Input,
		&job.Status,
		&job.CurrentStep,
		&job.Steps,
		&job.Result,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)

	if err != nil {
		return nil, err
	}

	// Safeguard in case Scan didn't handle NULL steps
	if job.Steps == nil {
		job.Steps = make(models.AssessmentSteps, 0)
	}

	return job, nil
}

// UpdateStatus updates the status of an assessment job
func (r *AssessmentJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.AssessmentJobStatus) error {
	query := `
		UPDATE assessment_jobs SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, status)
	return err
}

// UpdateProgress updates the stage progress of an assessment job
func (r *AssessmentJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, currentStep string, steps models.AssessmentSteps) error {
	query := `
		UPDATE assessment_jobs SET
			current_step = $2,
			steps = $3,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, currentStep, steps)
	return err
}

// Complete marks an assessment job as completed and stores its result
func (r *AssessmentJobRepository) Complete(ctx context.Context, id uuid.UUID, result models.JobResult) error {
	now := time.Now()
	query := `
		UPDATE assessment_jobs SET
			status = $2,
			result = $3,
			completed_at = $4,
			updated_at = $4
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.JobStatusCompleted, result, now)
	return err
}

// Fail marks an assessment job as failed
func (r *AssessmentJobRepository) Fail(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE assessment_jobs SET
			status = $2,
			error_message = $3,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.JobStatusFailed, errorMessage)
	return err
}
