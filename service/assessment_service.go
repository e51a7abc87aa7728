package service

import (
	"context"
	"errors"
	"fmt"

	"finesight-backend/models"
	"finesight-backend/repository"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned when an assessment job id is unknown
var ErrJobNotFound = errors.New("assessment job not found")

// assessmentStepNames are the job-visible stage names, in pipeline order
var assessmentStepNames = []string{
	"Retrieving precedents",
	"Analyzing similarity",
	"Aggregating prediction",
}

// AssessmentService runs breach-impact predictions as background jobs so the
// dashboard can enqueue a case and poll stage progress, the same pipeline the
// synchronous endpoint runs inline.
type AssessmentService struct {
	jobRepo    *repository.AssessmentJobRepository
	prediction *PredictionService
}

// AssessmentServiceOption is a functional option for AssessmentService
type AssessmentServiceOption func(*AssessmentService)

// WithAssessmentJobRepository sets the job repository
func WithAssessmentJobRepository(repo *repository.AssessmentJobRepository) AssessmentServiceOption {
	return func(s *AssessmentService) {
		s.jobRepo = repo
	}
}

// WithPredictionService sets the underlying prediction pipeline
func WithPredictionService(p *PredictionService) AssessmentServiceOption {
	return func(s *AssessmentService) {
		s.prediction = p
	}
}

// NewAssessmentService creates a new assessment service
func NewAssessmentService(opts ...AssessmentServiceOption) *AssessmentService {
	s := &AssessmentService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue validates the input, creates a pending job, and returns its id.
// This must stay fast; the pipeline itself runs in ProcessAssessment.
func (s *AssessmentService) Enqueue(ctx context.Context, input *models.CaseInput) (uuid.UUID, error) {
	if s.jobRepo == nil {
		return uuid.Nil, errors.New("assessment job repository not set")
	}

	if err := input.Validate(); err != nil {
		return uuid.Nil, err
	}

	steps := make(models.AssessmentSteps, 0, len(assessmentStepNames))
	for _, name := range assessmentStepNames {
		steps = append(steps, models.AssessmentStep{Name: name, Status: "pending"})
	}

	job := &models.AssessmentJob{
		Input:  models.JobCaseInput(*input),
		Status: models.JobStatusPending,
		Steps:  steps,
	}

	if err := s.jobRepo.Create(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create assessment job: %w", err)
	}

	return job.ID, nil
}

// GetJob retrieves an assessment job by id
func (s *AssessmentService) GetJob(ctx context.Context, id uuid.UUID) (*models.AssessmentJob, error) {
	if s.jobRepo == nil {
		return nil, errors.New("assessment job repository not set")
	}

	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ProcessAssessment performs the pipeline work in the background. It runs in
// a goroutine and updates the job's stage statuses as it goes.
func (s *AssessmentService) ProcessAssessment(ctx context.Context, jobID uuid.UUID) error {
	if s.jobRepo == nil {
		return errors.New("assessment job repository not set")
	}
	if s.prediction == nil {
		return errors.New("prediction service not set")
	}

	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load assessment job: %w", err)
	}

	if err := s.jobRepo.UpdateStatus(ctx, jobID, models.JobStatusInProgress); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	input := models.CaseInput(job.Input)

	// Stage transitions are mirrored onto the job's step list: entering a
	// stage completes the previous step and marks the new one in_progress.
	var lastStep string
	observe := func(stage PipelineStage) {
		stepName := stepForStage(stage)
		if stepName == lastStep {
			return
		}
		if lastStep != "" {
			if err := s.updateStepStatus(ctx, jobID, lastStep, "completed"); err != nil {
				return
			}
		}
		if stepName != "" {
			if err := s.updateStepStatus(ctx, jobID, stepName, "in_progress"); err != nil {
				return
			}
		}
		lastStep = stepName
	}

	result, err := s.prediction.PredictObserved(ctx, &input, observe)
	if err != nil {
		if lastStep != "" {
			_ = s.updateStepStatus(ctx, jobID, lastStep, "failed")
		}
		s.markJobFailed(ctx, jobID, err.Error())
		return err
	}

	if err := s.jobRepo.Complete(ctx, jobID, models.JobResult(*result)); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	return nil
}

// stepForStage maps pipeline stages to the coarser job-visible steps.
// Validating happens before the job is created, so it has no step.
func stepForStage(stage PipelineStage) string {
	switch stage {
	case StageRetrieving, StageSelecting, StageFetchingDetails:
		return assessmentStepNames[0]
	case StageAnalyzing:
		return assessmentStepNames[1]
	case StageAggregating:
		return assessmentStepNames[2]
	default:
		return ""
	}
}

// updateStepStatus updates the status of a named step on the job
func (s *AssessmentService) updateStepStatus(ctx context.Context, jobID uuid.UUID, stepName, status string) error {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	steps := job.Steps
	var currentStep string
	if job.CurrentStep != nil {
		currentStep = *job.CurrentStep
	}

	for i := range steps {
		if steps[i].Name == stepName {
			steps[i].Status = status
			if status == "in_progress" {
				currentStep = stepName
			}
			break
		}
	}

	return s.jobRepo.UpdateProgress(ctx, jobID, currentStep, steps)
}

// markJobFailed marks a job as failed with an error message
func (s *AssessmentService) markJobFailed(ctx context.Context, jobID uuid.UUID, errorMessage string) {
	if err := s.jobRepo.Fail(ctx, jobID, errorMessage); err != nil {
		// Already in error handling; nothing useful left to do
		_ = err
	}
}
