package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terminalledger/commission-recon/internal/application/recon"
	"github.com/terminalledger/commission-recon/internal/infrastructure/config"
	"github.com/terminalledger/commission-recon/internal/infrastructure/logging"
	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

// JobStatus represents the current state of a reconciliation job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// ReconRequest holds parameters for starting a reconciliation.
type ReconRequest struct {
	StartDate        *time.Time
	EndDate          *time.Time
	OrganizationID   int64
	BatchSize        int
	MaxTimeDiffHours float64
	DryRun           bool
	Verbose          bool
}

// ReconJob represents a running or completed reconciliation job.
type ReconJob struct {
	ID          string
	Status      JobStatus
	Request     ReconRequest
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *recon.Result
	Error       error
	cancelFunc  context.CancelFunc
}

// ReconService manages reconciliation runs. The engine writes cumulative
// fees, so two concurrent runs over the same data would double-apply them;
// a single run lock serializes execution process-wide.
type ReconService struct {
	cfg     *config.Config
	storage storage.Repository
	logger  *slog.Logger

	jobs      map[string]*ReconJob
	jobsMutex sync.RWMutex

	runLock sync.Mutex
}

// NewReconService creates a new reconciliation service.
func NewReconService(cfg *config.Config, store storage.Repository, logger *slog.Logger) *ReconService {
	return &ReconService{
		cfg:     cfg,
		storage: store,
		logger:  logger,
		jobs:    make(map[string]*ReconJob),
	}
}

// StartReconciliation starts a reconciliation job asynchronously.
// Note: The passed context is NOT used as the parent for the background job.
// Background jobs use context.Background() to avoid being cancelled when the
// HTTP request completes. Use CancelJob() to cancel a running job.
//
// Only one run may be active at a time; a second request while a run is in
// flight returns an error rather than queueing.
func (s *ReconService) StartReconciliation(_ context.Context, req ReconRequest) (string, error) {
	if !s.runLock.TryLock() {
		return "", fmt.Errorf("a reconciliation run is already in progress")
	}

	jobID := uuid.NewString()

	// Cancellable context from Background - NOT from the request context.
	jobCtx, cancel := context.WithCancel(context.Background())

	job := &ReconJob{
		ID:         jobID,
		Status:     StatusPending,
		Request:    req,
		StartedAt:  time.Now(),
		cancelFunc: cancel,
	}

	s.jobsMutex.Lock()
	s.jobs[jobID] = job
	s.jobsMutex.Unlock()

	go s.runJob(jobCtx, job)

	s.logger.Info("reconciliation job started",
		"job_id", jobID,
		"organization_id", req.OrganizationID,
		"dry_run", req.DryRun,
	)

	return jobID, nil
}

// GetJob retrieves a job by ID.
func (s *ReconService) GetJob(jobID string) (*ReconJob, error) {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return job, nil
}

// ListActiveJobs returns all running or pending jobs.
func (s *ReconService) ListActiveJobs() []*ReconJob {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	var active []*ReconJob
	for _, job := range s.jobs {
		if job.Status == StatusPending || job.Status == StatusRunning {
			active = append(active, job)
		}
	}
	return active
}

// ListAllJobs returns all jobs (for debugging/monitoring).
func (s *ReconService) ListAllJobs() []*ReconJob {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	jobs := make([]*ReconJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// CancelJob cancels a running reconciliation job.
func (s *ReconService) CancelJob(jobID string) error {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.Status != StatusPending && job.Status != StatusRunning {
		return fmt.Errorf("job cannot be cancelled: status=%s", job.Status)
	}

	job.cancelFunc()
	job.Status = StatusCancelled
	now := time.Now()
	job.CompletedAt = &now

	s.logger.Info("reconciliation job cancelled", "job_id", jobID)
	return nil
}

// runJob executes the reconciliation in a background goroutine.
func (s *ReconService) runJob(ctx context.Context, job *ReconJob) {
	defer s.runLock.Unlock()

	s.setJobStatus(job.ID, StatusRunning)

	loggingCfg := s.cfg.Observability.Logging
	if job.Request.Verbose {
		loggingCfg.Level = "debug"
	}
	runLogger := logging.NewLoggerWithSystem(loggingCfg, "recon")

	matcherCfg, err := s.cfg.MatcherConfig()
	if err != nil {
		s.failJob(job.ID, err)
		return
	}

	runner := recon.NewRunner(s.storage, matcherCfg, s.cfg.Reconciliation.DetailLimit, runLogger)

	opts := recon.Options{
		StartDate:        job.Request.StartDate,
		EndDate:          job.Request.EndDate,
		OrganizationID:   job.Request.OrganizationID,
		BatchSize:        job.Request.BatchSize,
		MaxTimeDiffHours: job.Request.MaxTimeDiffHours,
		DryRun:           job.Request.DryRun,
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = s.cfg.Reconciliation.BatchSize
	}
	if opts.MaxTimeDiffHours <= 0 {
		opts.MaxTimeDiffHours = s.cfg.Reconciliation.MaxTimeDiffHours
	}

	result, err := runner.Run(ctx, opts)
	if err != nil {
		if ctx.Err() == context.Canceled {
			// Already marked as cancelled in CancelJob
			return
		}
		s.failJob(job.ID, err)
		return
	}

	s.completeJob(job.ID, result)
}

func (s *ReconService) setJobStatus(jobID string, status JobStatus) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists {
		job.Status = status
	}
}

func (s *ReconService) completeJob(jobID string, result *recon.Result) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists {
		now := time.Now()
		job.Status = StatusCompleted
		job.CompletedAt = &now
		job.Result = result
		s.logger.Info("reconciliation job completed",
			"job_id", jobID,
			"run_id", result.RunID,
			"matched", result.Report.Summary.Matched,
			"failed", result.Report.Summary.Failed,
		)
	}
}

func (s *ReconService) failJob(jobID string, err error) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if job, exists := s.jobs[jobID]; exists {
		now := time.Now()
		job.Status = StatusFailed
		job.CompletedAt = &now
		job.Error = err
		s.logger.Error("reconciliation job failed", "job_id", jobID, "error", err)
	}
}

// CleanupOldJobs removes finished jobs older than maxAge. Returns the number
// of jobs removed.
func (s *ReconService) CleanupOldJobs(maxAge time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range s.jobs {
		if job.Status == StatusCompleted || job.Status == StatusFailed || job.Status == StatusCancelled {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(s.jobs, id)
				removed++
			}
		}
	}
	return removed
}
