// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package retrain

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ScheduleResult summarizes one scheduler sweep.
type ScheduleResult struct {
	Timestamp        time.Time           `json:"timestamp"`
	ModelsChecked    int                 `json:"models_checked"`
	RetrainingNeeded []ModelCheck        `json:"retraining_needed"`
	ScheduledJobs    []string            `json:"scheduled_jobs"`
	Decisions        []PromotionDecision `json:"decisions,omitempty"`
}

// ModelCheck is one model's positive retraining check.
type ModelCheck struct {
	ModelID string            `json:"model_id"`
	Reasons map[string]string `json:"reasons"`
}

// Scheduler periodically checks the configured model lineages and runs the
// full retrain → evaluate → promote-or-archive cycle for the ones that are
// due. It implements suture.Service.
type Scheduler struct {
	orchestrator *Orchestrator
	data         DataSource
	modelIDs     []string
	interval     time.Duration
	enabled      bool
	logger       zerolog.Logger
}

// NewScheduler builds a scheduler sweeping modelIDs every interval.
func NewScheduler(o *Orchestrator, data DataSource, modelIDs []string, interval time.Duration, enabled bool, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		orchestrator: o,
		data:         data,
		modelIDs:     modelIDs,
		interval:     interval,
		enabled:      enabled,
		logger:       logger.With().Str("component", "retrain_scheduler").Logger(),
	}
}

// Serve runs the sweep loop until the context is cancelled. Sweep failures
// are logged and the loop continues; one bad cycle must not take the
// scheduler down.
func (s *Scheduler) Serve(ctx context.Context) error {
	if !s.enabled {
		s.logger.Info().Msg("Retraining scheduler disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	s.logger.Info().Dur("interval", s.interval).Strs("models", s.modelIDs).
		Msg("Retraining scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Retraining scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			result := s.Sweep(ctx)
			s.logger.Info().Int("models_checked", result.ModelsChecked).
				Int("jobs_scheduled", len(result.ScheduledJobs)).
				Msg("Retraining sweep complete")
		}
	}
}

// Sweep checks every configured lineage once, executing and evaluating a
// retraining job for each model that needs one.
func (s *Scheduler) Sweep(ctx context.Context) ScheduleResult {
	result := ScheduleResult{
		Timestamp:     time.Now().UTC(),
		ModelsChecked: len(s.modelIDs),
	}

	for _, modelID := range s.modelIDs {
		needed, reasons := s.orchestrator.CheckRetrainNeeded(modelID)
		if !needed {
			continue
		}
		result.RetrainingNeeded = append(result.RetrainingNeeded, ModelCheck{
			ModelID: modelID,
			Reasons: reasons,
		})

		job := s.orchestrator.CreateJob(modelID)
		result.ScheduledJobs = append(result.ScheduledJobs, job.ID)

		training, validation, err := s.data.TrainingData(modelID)
		if err != nil {
			s.logger.Warn().Err(err).Str("model_id", modelID).
				Msg("Failed to load training data, cancelling job")
			if cerr := s.orchestrator.CancelJob(job.ID, "training data unavailable: "+err.Error()); cerr != nil {
				s.logger.Warn().Err(cerr).Str("job_id", job.ID).Msg("Failed to cancel job")
			}
			continue
		}
		if err := s.orchestrator.ExecuteRetrain(ctx, job.ID, training, validation); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Retraining job failed")
			continue
		}

		done, ok := s.orchestrator.JobByID(job.ID)
		if !ok || done.NewVersion == "" {
			continue
		}
		decision, err := s.orchestrator.EvaluateCandidate(modelID, done.NewVersion)
		if err != nil {
			s.logger.Warn().Err(err).Str("model_id", modelID).Str("version", done.NewVersion).
				Msg("Candidate evaluation failed")
			continue
		}
		result.Decisions = append(result.Decisions, decision)
	}

	return result
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string {
	return "retrain-scheduler"
}
