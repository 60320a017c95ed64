// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package retrain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/savora/internal/evaluate"
	prom "github.com/tomtom215/savora/internal/metrics"
	"github.com/tomtom215/savora/internal/registry"
)

var (
	// ErrUnknownJob indicates a job ID absent from the orchestrator's table.
	ErrUnknownJob = errors.New("retrain: unknown job")

	// ErrInvalidJobState indicates an operation incompatible with the job's
	// current status.
	ErrInvalidJobState = errors.New("retrain: invalid job state")

	// ErrNoTrainingData cancels a job whose training dataset is empty.
	ErrNoTrainingData = errors.New("retrain: no training data")
)

// Config is the retraining policy. Immutable after construction; shared by
// the orchestrator and scheduler.
type Config struct {
	Enabled      bool    `koanf:"enabled"`
	IntervalDays int     `koanf:"interval_days"`
	MinSamples   int     `koanf:"min_samples"`
	TestSize     float64 `koanf:"test_size"`
	CVFolds      int     `koanf:"cv_folds"`

	// PerformanceThreshold is the tolerated relative performance drop before
	// monitoring flags the production model.
	PerformanceThreshold float64 `koanf:"performance_threshold"`

	// AutoApprove lets promotion proceed without manual approval.
	AutoApprove bool `koanf:"auto_approve"`

	// ImprovementMargin is the relative gain over the production model a
	// candidate needs to be promoted instead of archived.
	ImprovementMargin float64 `koanf:"improvement_margin"`

	// PromotionMetric names the metric compared during promotion.
	PromotionMetric string `koanf:"promotion_metric"`

	// ReportDir receives evaluation report JSON files. Empty disables
	// report writing.
	ReportDir string `koanf:"report_dir"`
}

// DefaultConfig mirrors the deployed retraining policy.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		IntervalDays:         7,
		MinSamples:           1000,
		TestSize:             0.2,
		CVFolds:              5,
		PerformanceThreshold: 0.05,
		AutoApprove:          false,
		ImprovementMargin:    0.02,
		PromotionMetric:      "accuracy",
	}
}

// Orchestrator tracks retraining jobs and drives the retrain → register →
// promote-or-archive workflow against the model registry.
type Orchestrator struct {
	cfg      Config
	registry *registry.Registry
	trainer  Trainer
	data     DataSource
	logger   zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*Job

	// now is swappable for tests.
	now func() time.Time
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(cfg Config, reg *registry.Registry, trainer Trainer, data DataSource, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		registry: reg,
		trainer:  trainer,
		data:     data,
		logger:   logger.With().Str("component", "retrain").Logger(),
		jobs:     make(map[string]*Job),
		now:      time.Now,
	}
}

// CheckRetrainNeeded reports whether modelID is due for retraining and why.
// All triggered reasons are accumulated, not just the first. A model with no
// production version reports not-needed with an explanatory reason.
func (o *Orchestrator) CheckRetrainNeeded(modelID string) (bool, map[string]string) {
	reasons := make(map[string]string)

	prod, ok := o.registry.ProductionModel(modelID)
	if !ok {
		o.logger.Warn().Str("model_id", modelID).Msg("No production model found")
		return false, map[string]string{"reason": "no_production_model"}
	}

	needed := false
	if prod.DeploymentDate != nil {
		days := int(o.now().UTC().Sub(*prod.DeploymentDate).Hours() / 24)
		if days >= o.cfg.IntervalDays {
			reasons["time_interval"] = fmt.Sprintf("Deployed %d days ago", days)
			needed = true
		}
	}

	count, err := o.data.NewSampleCount(modelID)
	if err != nil {
		o.logger.Warn().Err(err).Str("model_id", modelID).Msg("Failed to count new samples")
	} else if count >= o.cfg.MinSamples {
		reasons["new_data"] = fmt.Sprintf("%d new samples available", count)
		needed = true
	}

	if needed {
		o.logger.Info().Str("model_id", modelID).Interface("reasons", reasons).
			Msg("Retraining needed")
	}
	return needed, reasons
}

// CreateJob allocates a fresh pending job for modelID.
func (o *Orchestrator) CreateJob(modelID string) Job {
	createdAt := o.now().UTC()
	job := &Job{
		ID:        newJobID(modelID, createdAt),
		ModelID:   modelID,
		Status:    JobPending,
		CreatedAt: createdAt,
	}

	o.mu.Lock()
	o.jobs[job.ID] = job
	o.mu.Unlock()

	o.logger.Info().Str("job_id", job.ID).Str("model_id", modelID).Msg("Retraining job created")
	return *job
}

// ExecuteRetrain runs a pending job: trains via the Trainer, computes the
// candidate version (minor bump of the highest existing version, or 0.1.0
// for a fresh lineage), and registers the candidate with status validation.
//
// An empty training set cancels the job with ErrNoTrainingData; a Trainer
// error fails it with the message captured on the job.
func (o *Orchestrator) ExecuteRetrain(ctx context.Context, jobID string, training, validation evaluate.Dataset) error {
	o.mu.Lock()
	job, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if job.Status != JobPending {
		status := job.Status
		o.mu.Unlock()
		return fmt.Errorf("%w: job %s is %s, want pending", ErrInvalidJobState, jobID, status)
	}

	startedAt := o.now().UTC()
	job.Status = JobRunning
	job.StartedAt = &startedAt
	job.DataSize = datasetRows(training)
	o.mu.Unlock()

	if datasetRows(training) == 0 {
		o.finishJob(jobID, JobCancelled, "", nil, ErrNoTrainingData.Error())
		return ErrNoTrainingData
	}

	o.logger.Info().Str("job_id", jobID).Int("data_size", datasetRows(training)).
		Msg("Retraining started")

	metrics, err := o.trainer.Train(ctx, job.ModelID, training, validation)
	if err != nil {
		o.finishJob(jobID, JobFailed, "", nil, err.Error())
		return fmt.Errorf("train %s: %w", job.ModelID, err)
	}

	newVersion := o.nextVersion(job.ModelID)
	meta := registry.Metadata{
		ModelID:     job.ModelID,
		Version:     newVersion,
		ModelType:   registry.TypeHybrid,
		Description: fmt.Sprintf("Retrained model from job %s", jobID),
		Metrics:     metrics,
		Parameters: map[string]any{
			"interval_days": o.cfg.IntervalDays,
			"min_samples":   o.cfg.MinSamples,
			"test_size":     o.cfg.TestSize,
			"cv_folds":      o.cfg.CVFolds,
		},
		Status: registry.StatusValidation,
		Tags:   map[string]string{"retrain_job": jobID},
	}
	if err := o.registry.Register(meta); err != nil {
		o.finishJob(jobID, JobFailed, "", nil, err.Error())
		return fmt.Errorf("register candidate %s %s: %w", job.ModelID, newVersion, err)
	}

	o.finishJob(jobID, JobCompleted, newVersion, metrics, "")
	o.logger.Info().Str("job_id", jobID).Str("new_version", newVersion).
		Msg("Retraining completed")
	return nil
}

// CancelJob moves a pending or running job to cancelled, recording reason as
// the job's error message. Terminal jobs return ErrInvalidJobState.
func (o *Orchestrator) CancelJob(jobID, reason string) error {
	o.mu.Lock()
	job, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if job.Status != JobPending && job.Status != JobRunning {
		status := job.Status
		o.mu.Unlock()
		return fmt.Errorf("%w: job %s is %s, want pending or running", ErrInvalidJobState, jobID, status)
	}
	o.mu.Unlock()

	o.finishJob(jobID, JobCancelled, "", nil, reason)
	o.logger.Info().Str("job_id", jobID).Str("reason", reason).Msg("Retraining job cancelled")
	return nil
}

// finishJob transitions a job to a terminal status.
func (o *Orchestrator) finishJob(jobID string, status JobStatus, newVersion string, metrics map[string]float64, errMsg string) {
	completedAt := o.now().UTC()

	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok {
		return
	}
	job.Status = status
	job.CompletedAt = &completedAt
	job.NewVersion = newVersion
	job.Metrics = metrics
	job.ErrorMsg = errMsg

	prom.RecordRetrainJob(string(status))
}

// nextVersion computes the candidate version for modelID.
func (o *Orchestrator) nextVersion(modelID string) string {
	highest := registry.HighestVersion(o.registry.Versions(modelID))
	if highest == "" {
		return registry.InitialVersion
	}
	next, err := registry.BumpMinor(highest)
	if err != nil {
		return registry.InitialVersion
	}
	return next
}

// PromoteToProduction promotes (modelID, version), gated by approval policy:
// when approvalRequired is set and the config does not auto-approve, the
// promotion is refused as (false, nil) and left for a human.
func (o *Orchestrator) PromoteToProduction(modelID, version string, approvalRequired bool) (bool, error) {
	if approvalRequired && !o.cfg.AutoApprove {
		o.logger.Warn().Str("model_id", modelID).Str("version", version).
			Msg("Manual approval required for promotion")
		return false, nil
	}
	return o.registry.UpdateStatus(modelID, version, registry.StatusProduction)
}

// PromotionDecision records the outcome of a candidate evaluation.
type PromotionDecision struct {
	Promoted bool   `json:"promoted"`
	Reason   string `json:"reason"`
}

// EvaluateCandidate decides a validated candidate's fate against the current
// production model using the configured promotion metric.
//
// The first-ever model of a lineage is promoted unconditionally (no baseline
// to compare against). Otherwise the candidate is promoted only when its
// metric beats production by more than the relative improvement margin;
// anything less is archived.
func (o *Orchestrator) EvaluateCandidate(modelID, version string) (PromotionDecision, error) {
	candidate, ok := o.registry.Get(modelID, version)
	if !ok {
		return PromotionDecision{}, fmt.Errorf("%w: candidate %s %s not registered", ErrUnknownJob, modelID, version)
	}

	prod, hasProd := o.registry.ProductionModel(modelID)
	if !hasProd {
		ok, err := o.registry.UpdateStatus(modelID, version, registry.StatusProduction)
		if err != nil || !ok {
			return PromotionDecision{}, fmt.Errorf("promote first model %s %s: %w", modelID, version, err)
		}
		o.logger.Info().Str("model_id", modelID).Str("version", version).
			Msg("First model promoted unconditionally")
		prom.RecordPromotionDecision(true)
		return PromotionDecision{Promoted: true, Reason: "first model for lineage"}, nil
	}

	metric := o.cfg.PromotionMetric
	newValue, newOK := candidate.Metrics[metric]
	oldValue, oldOK := prod.Metrics[metric]

	var promote bool
	var reason string
	improvement := 0.0

	switch {
	case !oldOK || oldValue == 0:
		// A production model without the promotion metric (the startup
		// baseline, or a hand-registered entry) sets the bar at zero: any
		// candidate with a positive value clears it.
		promote = newOK && newValue > 0
		if promote {
			reason = fmt.Sprintf("production has no %s baseline", metric)
		} else {
			reason = fmt.Sprintf("candidate lacks a positive %s", metric)
		}
	default:
		if newOK {
			improvement = (newValue - oldValue) / oldValue
		}
		promote = improvement > o.cfg.ImprovementMargin
		if promote {
			reason = fmt.Sprintf("%s improved %.2f%% over production", metric, improvement*100)
		} else {
			reason = fmt.Sprintf("%s improvement %.2f%% below margin", metric, improvement*100)
		}
	}

	o.writeReport(candidate, prod, improvement)

	if promote {
		ok, err := o.registry.UpdateStatus(modelID, version, registry.StatusProduction)
		if err != nil || !ok {
			return PromotionDecision{}, fmt.Errorf("promote %s %s: %w", modelID, version, err)
		}
		o.logger.Info().Str("model_id", modelID).Str("version", version).
			Float64("improvement", improvement).Str("reason", reason).Msg("Candidate promoted")
		prom.RecordPromotionDecision(true)
		return PromotionDecision{Promoted: true, Reason: reason}, nil
	}

	if _, err := o.registry.UpdateStatus(modelID, version, registry.StatusArchived); err != nil {
		return PromotionDecision{}, fmt.Errorf("archive %s %s: %w", modelID, version, err)
	}
	o.logger.Info().Str("model_id", modelID).Str("version", version).
		Float64("improvement", improvement).Str("reason", reason).Msg("Candidate archived")
	prom.RecordPromotionDecision(false)
	return PromotionDecision{Promoted: false, Reason: reason}, nil
}

// writeReport persists an evaluation report for the candidate. Report
// writing is telemetry: failures are logged and never fail the evaluation.
func (o *Orchestrator) writeReport(candidate, prod registry.Metadata, improvement float64) {
	if o.cfg.ReportDir == "" {
		return
	}

	report := evaluate.NewReport(candidate.ModelID, candidate.Version)
	report.AddMetrics(candidate.Metrics)
	report.AddMetrics(map[string]float64{
		"production_" + o.cfg.PromotionMetric: prod.Metrics[o.cfg.PromotionMetric],
		"relative_improvement":                improvement,
	})

	path, err := report.Save(o.cfg.ReportDir)
	if err != nil {
		o.logger.Warn().Err(err).Str("model_id", candidate.ModelID).
			Str("version", candidate.Version).Msg("Failed to write evaluation report")
		return
	}
	o.logger.Info().Str("path", path).Msg("Evaluation report written")
}

// JobByID returns a copy of the job, or false when unknown.
func (o *Orchestrator) JobByID(jobID string) (Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// ListJobs returns copies of jobs filtered by modelID and status (empty
// values match everything), sorted by creation time descending.
func (o *Orchestrator) ListJobs(modelID string, status JobStatus) []Job {
	o.mu.Lock()
	out := make([]Job, 0, len(o.jobs))
	for _, job := range o.jobs {
		if modelID != "" && job.ModelID != modelID {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, *job)
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
