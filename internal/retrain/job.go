// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

// Package retrain decides when models need retraining, runs retraining jobs
// through a pluggable Trainer, and gates promotion of the resulting
// candidate versions.
//
// Actual model fitting is out of scope; the Trainer collaborator supplies
// evaluation metrics and this package handles versioning, registration, and
// the promote-or-archive decision.
package retrain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is a retraining job's state. Lifecycle:
// pending → running → {completed, failed}, with cancelled reachable from
// pending or running when preconditions fail before training starts.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Job is one tracked retraining unit of work. Jobs live in the
// orchestrator's in-memory table for the process lifetime; they are not
// persisted.
type Job struct {
	ID          string             `json:"job_id"`
	ModelID     string             `json:"model_id"`
	Status      JobStatus          `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	ErrorMsg    string             `json:"error_message,omitempty"`
	NewVersion  string             `json:"new_version,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	DataSize    int                `json:"data_size"`
}

// newJobID builds a unique job identifier. The UUID suffix guarantees
// uniqueness even for jobs created in the same instant for the same model.
func newJobID(modelID string, createdAt time.Time) string {
	return modelID + "_" + createdAt.UTC().Format("20060102T150405") + "_" + uuid.NewString()[:8]
}
