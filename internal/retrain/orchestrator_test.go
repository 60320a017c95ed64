// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package retrain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/savora/internal/evaluate"
	"github.com/tomtom215/savora/internal/logging"
	"github.com/tomtom215/savora/internal/registry"
)

type fakeTrainer struct {
	metrics map[string]float64
	err     error
	calls   int
}

func (f *fakeTrainer) Train(_ context.Context, _ string, _, _ evaluate.Dataset) (map[string]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.metrics, nil
}

type fakeDataSource struct {
	samples     int
	err         error
	training    evaluate.Dataset
	trainingErr error
}

func (f *fakeDataSource) NewSampleCount(string) (int, error) {
	return f.samples, f.err
}

func (f *fakeDataSource) TrainingData(string) (evaluate.Dataset, evaluate.Dataset, error) {
	return f.training, nil, f.trainingErr
}

func newTestOrchestrator(t *testing.T, cfg Config, trainer Trainer, data DataSource) (*Orchestrator, *registry.Registry) {
	t.Helper()
	logger := logging.NewTestLogger(os.Stderr)
	reg, err := registry.New(filepath.Join(t.TempDir(), "registry.json"), logger)
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}
	return NewOrchestrator(cfg, reg, trainer, data, logger), reg
}

func trainingSet() evaluate.Dataset {
	return evaluate.Dataset{"rating": {4, 5, 3, 4}}
}

func registerProduction(t *testing.T, reg *registry.Registry, modelID, version string, accuracy float64, deployedDaysAgo int) {
	t.Helper()
	deployed := time.Now().UTC().AddDate(0, 0, -deployedDaysAgo)
	err := reg.Register(registry.Metadata{
		ModelID:        modelID,
		Version:        version,
		ModelType:      registry.TypeHybrid,
		Metrics:        map[string]float64{"accuracy": accuracy},
		Status:         registry.StatusProduction,
		DeploymentDate: &deployed,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
}

func TestCheckRetrainNeeded(t *testing.T) {
	tests := []struct {
		name            string
		deployedDaysAgo int
		samples         int
		wantNeeded      bool
		wantReasons     []string
	}{
		{
			name:            "fresh deployment with little data",
			deployedDaysAgo: 1,
			samples:         10,
			wantNeeded:      false,
		},
		{
			name:            "deployment age exceeded",
			deployedDaysAgo: 30,
			samples:         10,
			wantNeeded:      true,
			wantReasons:     []string{"time_interval"},
		},
		{
			name:            "enough new samples",
			deployedDaysAgo: 1,
			samples:         5000,
			wantNeeded:      true,
			wantReasons:     []string{"new_data"},
		},
		{
			name:            "both reasons accumulate",
			deployedDaysAgo: 30,
			samples:         5000,
			wantNeeded:      true,
			wantReasons:     []string{"time_interval", "new_data"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.IntervalDays = 7
			cfg.MinSamples = 1000
			o, reg := newTestOrchestrator(t, cfg, &fakeTrainer{}, &fakeDataSource{samples: tt.samples})
			registerProduction(t, reg, "m", "1.0.0", 0.9, tt.deployedDaysAgo)

			needed, reasons := o.CheckRetrainNeeded("m")
			if needed != tt.wantNeeded {
				t.Errorf("needed = %v, want %v (reasons: %v)", needed, tt.wantNeeded, reasons)
			}
			for _, key := range tt.wantReasons {
				if _, ok := reasons[key]; !ok {
					t.Errorf("reasons %v missing %q", reasons, key)
				}
			}
			if len(reasons) != len(tt.wantReasons) && tt.wantNeeded {
				t.Errorf("reasons = %v, want exactly %v", reasons, tt.wantReasons)
			}
		})
	}
}

func TestCheckRetrainNeeded_NoProductionModel(t *testing.T) {
	o, _ := newTestOrchestrator(t, DefaultConfig(), &fakeTrainer{}, &fakeDataSource{})

	needed, reasons := o.CheckRetrainNeeded("ghost")
	if needed {
		t.Error("needed = true without a production model, want false")
	}
	if reasons["reason"] != "no_production_model" {
		t.Errorf("reasons = %v, want no_production_model", reasons)
	}
}

func TestCreateJob_UniqueIDs(t *testing.T) {
	o, _ := newTestOrchestrator(t, DefaultConfig(), &fakeTrainer{}, &fakeDataSource{})

	a := o.CreateJob("m")
	b := o.CreateJob("m")
	if a.ID == b.ID {
		t.Errorf("job IDs collide: %q", a.ID)
	}
	if a.Status != JobPending || b.Status != JobPending {
		t.Error("new jobs must start pending")
	}
}

func TestExecuteRetrain_Success(t *testing.T) {
	trainer := &fakeTrainer{metrics: map[string]float64{"accuracy": 0.93}}
	o, reg := newTestOrchestrator(t, DefaultConfig(), trainer, &fakeDataSource{})
	registerProduction(t, reg, "m", "1.2.0", 0.9, 0)

	job := o.CreateJob("m")
	if err := o.ExecuteRetrain(context.Background(), job.ID, trainingSet(), nil); err != nil {
		t.Fatalf("ExecuteRetrain() error = %v", err)
	}

	done, ok := o.JobByID(job.ID)
	if !ok {
		t.Fatal("job vanished")
	}
	if done.Status != JobCompleted {
		t.Errorf("status = %q, want completed", done.Status)
	}
	if done.NewVersion != "1.3.0" {
		t.Errorf("NewVersion = %q, want minor bump 1.3.0", done.NewVersion)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("timestamps not stamped")
	}
	if done.DataSize != 4 {
		t.Errorf("DataSize = %d, want 4", done.DataSize)
	}

	candidate, ok := reg.Get("m", "1.3.0")
	if !ok {
		t.Fatal("candidate not registered")
	}
	if candidate.Status != registry.StatusValidation {
		t.Errorf("candidate status = %q, want validation", candidate.Status)
	}
	if candidate.Metrics["accuracy"] != 0.93 {
		t.Errorf("candidate accuracy = %f, want 0.93", candidate.Metrics["accuracy"])
	}
	if candidate.Tags["retrain_job"] != job.ID {
		t.Errorf("candidate tags = %v, want retrain_job back-reference", candidate.Tags)
	}
}

func TestExecuteRetrain_FirstLineageStartsAtInitialVersion(t *testing.T) {
	trainer := &fakeTrainer{metrics: map[string]float64{"accuracy": 0.9}}
	o, reg := newTestOrchestrator(t, DefaultConfig(), trainer, &fakeDataSource{})

	job := o.CreateJob("fresh")
	if err := o.ExecuteRetrain(context.Background(), job.ID, trainingSet(), nil); err != nil {
		t.Fatalf("ExecuteRetrain() error = %v", err)
	}

	if _, ok := reg.Get("fresh", registry.InitialVersion); !ok {
		t.Errorf("first candidate not registered at %s", registry.InitialVersion)
	}
}

func TestExecuteRetrain_TrainerFailure(t *testing.T) {
	trainer := &fakeTrainer{err: errors.New("gpu on fire")}
	o, _ := newTestOrchestrator(t, DefaultConfig(), trainer, &fakeDataSource{})

	job := o.CreateJob("m")
	if err := o.ExecuteRetrain(context.Background(), job.ID, trainingSet(), nil); err == nil {
		t.Fatal("ExecuteRetrain() error = nil, want trainer failure")
	}

	done, _ := o.JobByID(job.ID)
	if done.Status != JobFailed {
		t.Errorf("status = %q, want failed", done.Status)
	}
	if done.ErrorMsg == "" {
		t.Error("error message not captured on job")
	}
}

func TestExecuteRetrain_EmptyDataCancels(t *testing.T) {
	o, _ := newTestOrchestrator(t, DefaultConfig(), &fakeTrainer{}, &fakeDataSource{})

	job := o.CreateJob("m")
	err := o.ExecuteRetrain(context.Background(), job.ID, evaluate.Dataset{}, nil)
	if !errors.Is(err, ErrNoTrainingData) {
		t.Fatalf("ExecuteRetrain() error = %v, want ErrNoTrainingData", err)
	}

	done, _ := o.JobByID(job.ID)
	if done.Status != JobCancelled {
		t.Errorf("status = %q, want cancelled on failed precondition", done.Status)
	}
}

func TestCancelJob(t *testing.T) {
	trainer := &fakeTrainer{metrics: map[string]float64{"accuracy": 0.9}}
	o, _ := newTestOrchestrator(t, DefaultConfig(), trainer, &fakeDataSource{})

	job := o.CreateJob("m")
	if err := o.CancelJob(job.ID, "data source offline"); err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	done, _ := o.JobByID(job.ID)
	if done.Status != JobCancelled || done.ErrorMsg != "data source offline" {
		t.Errorf("job = %+v, want cancelled with reason", done)
	}
	if done.CompletedAt == nil {
		t.Error("cancelled job missing completion timestamp")
	}

	// Terminal jobs cannot be cancelled again.
	if err := o.CancelJob(job.ID, "again"); !errors.Is(err, ErrInvalidJobState) {
		t.Errorf("CancelJob(cancelled) error = %v, want ErrInvalidJobState", err)
	}
	if err := o.CancelJob("ghost", "x"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("CancelJob(ghost) error = %v, want ErrUnknownJob", err)
	}
}

func TestExecuteRetrain_RejectsNonPendingJob(t *testing.T) {
	trainer := &fakeTrainer{metrics: map[string]float64{"accuracy": 0.9}}
	o, _ := newTestOrchestrator(t, DefaultConfig(), trainer, &fakeDataSource{})

	job := o.CreateJob("m")
	if err := o.ExecuteRetrain(context.Background(), job.ID, trainingSet(), nil); err != nil {
		t.Fatalf("first ExecuteRetrain() error = %v", err)
	}
	err := o.ExecuteRetrain(context.Background(), job.ID, trainingSet(), nil)
	if !errors.Is(err, ErrInvalidJobState) {
		t.Errorf("re-run error = %v, want ErrInvalidJobState", err)
	}
}

func TestExecuteRetrain_UnknownJob(t *testing.T) {
	o, _ := newTestOrchestrator(t, DefaultConfig(), &fakeTrainer{}, &fakeDataSource{})

	err := o.ExecuteRetrain(context.Background(), "ghost", trainingSet(), nil)
	if !errors.Is(err, ErrUnknownJob) {
		t.Errorf("ExecuteRetrain(ghost) error = %v, want ErrUnknownJob", err)
	}
}

func TestPromoteToProduction_ApprovalGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoApprove = false
	o, reg := newTestOrchestrator(t, cfg, &fakeTrainer{}, &fakeDataSource{})
	if err := reg.Register(registry.Metadata{
		ModelID: "m", Version: "1.0.0", ModelType: registry.TypeHybrid,
		Status: registry.StatusValidation,
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ok, err := o.PromoteToProduction("m", "1.0.0", true)
	if err != nil {
		t.Fatalf("PromoteToProduction() error = %v", err)
	}
	if ok {
		t.Error("promotion succeeded without approval, want refusal")
	}

	// Bypassing the approval requirement promotes.
	ok, err = o.PromoteToProduction("m", "1.0.0", false)
	if err != nil || !ok {
		t.Fatalf("PromoteToProduction(no approval) = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestEvaluateCandidate_FirstModelPromotedUnconditionally(t *testing.T) {
	trainer := &fakeTrainer{metrics: map[string]float64{"accuracy": 0.5}}
	o, reg := newTestOrchestrator(t, DefaultConfig(), trainer, &fakeDataSource{})

	job := o.CreateJob("x")
	if err := o.ExecuteRetrain(context.Background(), job.ID, trainingSet(), nil); err != nil {
		t.Fatalf("ExecuteRetrain() error = %v", err)
	}

	decision, err := o.EvaluateCandidate("x", registry.InitialVersion)
	if err != nil {
		t.Fatalf("EvaluateCandidate() error = %v", err)
	}
	if !decision.Promoted {
		t.Error("first model not promoted unconditionally")
	}

	prod, ok := reg.ProductionModel("x")
	if !ok || prod.Version != registry.InitialVersion {
		t.Errorf("production = (%+v, %v), want 0.1.0", prod, ok)
	}
}

func TestEvaluateCandidate_MetriclessProductionBaseline(t *testing.T) {
	// Startup seeds production entries without evaluation metrics. A
	// candidate with a positive accuracy must clear that empty bar instead
	// of being archived on a zero improvement.
	trainer := &fakeTrainer{metrics: map[string]float64{"accuracy": 0.87}}
	o, reg := newTestOrchestrator(t, DefaultConfig(), trainer, &fakeDataSource{})
	if err := reg.Register(registry.Metadata{
		ModelID:     "x",
		Version:     "1.0.0",
		ModelType:   registry.TypeHybrid,
		Status:      registry.StatusProduction,
		Description: "initial baseline",
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	job := o.CreateJob("x")
	if err := o.ExecuteRetrain(context.Background(), job.ID, trainingSet(), nil); err != nil {
		t.Fatalf("ExecuteRetrain() error = %v", err)
	}

	decision, err := o.EvaluateCandidate("x", "1.1.0")
	if err != nil {
		t.Fatalf("EvaluateCandidate() error = %v", err)
	}
	if !decision.Promoted {
		t.Fatalf("candidate not promoted over metric-less baseline: %+v", decision)
	}

	prod, ok := reg.ProductionModel("x")
	if !ok || prod.Version != "1.1.0" {
		t.Errorf("production = (%q, %v), want 1.1.0", prod.Version, ok)
	}
	old, _ := reg.Get("x", "1.0.0")
	if old.Status != registry.StatusArchived {
		t.Errorf("baseline status = %q, want archived after promotion", old.Status)
	}
}

func TestEvaluateCandidate_SmallImprovementArchived(t *testing.T) {
	// 0.909 over 0.9 is a 1% relative improvement, below the 2% margin.
	trainer := &fakeTrainer{metrics: map[string]float64{"accuracy": 0.909}}
	o, reg := newTestOrchestrator(t, DefaultConfig(), trainer, &fakeDataSource{})
	registerProduction(t, reg, "x", "1.0.0", 0.9, 0)

	job := o.CreateJob("x")
	if err := o.ExecuteRetrain(context.Background(), job.ID, trainingSet(), nil); err != nil {
		t.Fatalf("ExecuteRetrain() error = %v", err)
	}

	decision, err := o.EvaluateCandidate("x", "1.1.0")
	if err != nil {
		t.Fatalf("EvaluateCandidate() error = %v", err)
	}
	if decision.Promoted {
		t.Error("candidate below improvement margin was promoted, want archived")
	}

	candidate, _ := reg.Get("x", "1.1.0")
	if candidate.Status != registry.StatusArchived {
		t.Errorf("candidate status = %q, want archived", candidate.Status)
	}
	prod, _ := reg.ProductionModel("x")
	if prod.Version != "1.0.0" {
		t.Errorf("production = %q, want unchanged 1.0.0", prod.Version)
	}
}

func TestEvaluateCandidate_ClearImprovementPromoted(t *testing.T) {
	trainer := &fakeTrainer{metrics: map[string]float64{"accuracy": 0.95}}
	o, reg := newTestOrchestrator(t, DefaultConfig(), trainer, &fakeDataSource{})
	registerProduction(t, reg, "x", "1.0.0", 0.9, 0)

	job := o.CreateJob("x")
	if err := o.ExecuteRetrain(context.Background(), job.ID, trainingSet(), nil); err != nil {
		t.Fatalf("ExecuteRetrain() error = %v", err)
	}

	decision, err := o.EvaluateCandidate("x", "1.1.0")
	if err != nil {
		t.Fatalf("EvaluateCandidate() error = %v", err)
	}
	if !decision.Promoted {
		t.Errorf("5%% improvement not promoted: %+v", decision)
	}

	old, _ := reg.Get("x", "1.0.0")
	if old.Status != registry.StatusArchived {
		t.Errorf("prior production status = %q, want archived after promotion", old.Status)
	}
}

func TestEvaluateCandidate_WritesReport(t *testing.T) {
	reportDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ReportDir = reportDir

	trainer := &fakeTrainer{metrics: map[string]float64{"accuracy": 0.95}}
	o, reg := newTestOrchestrator(t, cfg, trainer, &fakeDataSource{})
	registerProduction(t, reg, "x", "1.0.0", 0.9, 0)

	job := o.CreateJob("x")
	if err := o.ExecuteRetrain(context.Background(), job.ID, trainingSet(), nil); err != nil {
		t.Fatalf("ExecuteRetrain() error = %v", err)
	}
	if _, err := o.EvaluateCandidate("x", "1.1.0"); err != nil {
		t.Fatalf("EvaluateCandidate() error = %v", err)
	}

	entries, err := os.ReadDir(reportDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("report dir has %d files, want 1", len(entries))
	}
	if name := entries[0].Name(); !strings.HasPrefix(name, "x_1.1.0_") {
		t.Errorf("report file = %q, want x_1.1.0_* prefix", name)
	}
}

func TestListJobs(t *testing.T) {
	trainer := &fakeTrainer{metrics: map[string]float64{"accuracy": 0.9}}
	o, _ := newTestOrchestrator(t, DefaultConfig(), trainer, &fakeDataSource{})

	a := o.CreateJob("m")
	o.CreateJob("m")
	o.CreateJob("other")
	if err := o.ExecuteRetrain(context.Background(), a.ID, trainingSet(), nil); err != nil {
		t.Fatalf("ExecuteRetrain() error = %v", err)
	}

	if got := len(o.ListJobs("", "")); got != 3 {
		t.Errorf("ListJobs() returned %d jobs, want 3", got)
	}
	if got := len(o.ListJobs("m", "")); got != 2 {
		t.Errorf("ListJobs(m) returned %d jobs, want 2", got)
	}
	if got := len(o.ListJobs("m", JobCompleted)); got != 1 {
		t.Errorf("ListJobs(m, completed) returned %d jobs, want 1", got)
	}
	if got := len(o.ListJobs("", JobPending)); got != 2 {
		t.Errorf("ListJobs(pending) returned %d jobs, want 2", got)
	}
}
