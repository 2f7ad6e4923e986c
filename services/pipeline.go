package services

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"content-hand/metrics"
	"content-hand/models"
)

// StageFailure ist der Fehler eines abgebrochenen Laufs.
type StageFailure struct {
	Stage string
	Err   error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("pipeline aborted in %s: %v", e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error { return e.Err }

// PipelineResult ist der erzeugte Entwurf samt Metadaten.
type PipelineResult struct {
	Content  Draft             `json:"content"`
	Metadata ExecutionMetadata `json:"metadata"`
}

// PipelineEngine führt die Stufen eines Plans aus.
type PipelineEngine struct {
	deps  StageDeps
	now   func() time.Time
	newID func() string
}

// NewPipelineEngine erstellt eine Engine.
func NewPipelineEngine(deps StageDeps) *PipelineEngine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}
	return &PipelineEngine{deps: deps, now: time.Now, newID: uuid.NewString}
}

// Execute läuft alle aktivierten Stufen in fester Reihenfolge. Jede Stufe
// hinterlässt genau einen StepRecord. Bei einem fatalen Fehler wird der Record
// der fehlgeschlagenen Stufe durch einen "error"-Record ersetzt und der Lauf beendet.
func (e *PipelineEngine) Execute(ctx context.Context, topic models.TopicInput, settings models.PipelineSettings) (PipelineResult, error) {
	runID := e.newID()
	log := e.deps.Logger.With(zap.String("run_id", runID))
	draft := Draft{RunID: runID, Input: topic}
	acc := Accumulator{}

	for _, stage := range Plan(settings) {
		if err := ctx.Err(); err != nil {
			acc = acc.Add(StepRecord{
				Stage:  StageError,
				Status: StepFailed,
				Facts:  map[string]any{"failed_stage": stage.Name()},
				Error:  err.Error(),
			})
			metrics.PipelineRuns.WithLabelValues("aborted").Inc()
			return PipelineResult{Content: draft, Metadata: acc.Metadata(runID, true)}, &StageFailure{Stage: stage.Name(), Err: err}
		}

		out, rec, fatal := e.runStage(ctx, stage, draft, log)
		if fatal != nil {
			rec.Stage = StageError
			rec.Facts = map[string]any{"failed_stage": stage.Name()}
			acc = acc.Add(rec)
			log.Error("Pipeline aborted", zap.String("stage", stage.Name()), zap.Error(fatal))
			metrics.PipelineRuns.WithLabelValues("aborted").Inc()
			return PipelineResult{Content: draft, Metadata: acc.Metadata(runID, true)}, &StageFailure{Stage: stage.Name(), Err: fatal}
		}
		draft = out
		acc = acc.Add(rec)
	}

	meta := acc.Metadata(runID, false)
	metrics.PipelineRuns.WithLabelValues("completed").Inc()
	metrics.PipelineCost.Add(meta.TotalCostUSD)
	log.Info("Pipeline completed",
		zap.Int("steps", len(meta.Steps)),
		zap.Float64("cost_usd", meta.TotalCostUSD),
		zap.Int64("time_ms", meta.TotalTimeMS))
	return PipelineResult{Content: draft, Metadata: meta}, nil
}

// runStage führt eine Stufe aus. Ein Panic gilt als behebbarer Fehler: der
// Entwurf bleibt unverändert.
func (e *PipelineEngine) runStage(ctx context.Context, stage Stage, in Draft, log *zap.Logger) (out Draft, rec StepRecord, fatal error) {
	start := e.now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Stage panicked", zap.String("stage", stage.Name()), zap.Any("panic", r))
			out = in
			rec = StepRecord{
				Stage:      stage.Name(),
				Status:     StepFailed,
				DurationMS: e.now().Sub(start).Milliseconds(),
				Error:      fmt.Sprintf("panic: %v", r),
			}
			fatal = nil
		}
		metrics.StageDuration.WithLabelValues(stage.Name(), string(rec.Status)).Observe(float64(rec.DurationMS) / 1000)
	}()

	result, rep, err := stage.run(ctx, &e.deps, in)
	rec = StepRecord{
		Stage:      stage.Name(),
		Status:     rep.status,
		DurationMS: e.now().Sub(start).Milliseconds(),
		Tokens:     rep.usage.TotalTokens,
		CostUSD:    rep.usage.EstimatedCostUSD,
		Model:      rep.model,
		Facts:      rep.facts,
	}
	if err != nil {
		rec.Status = StepFailed
		rec.Error = err.Error()
		return in, rec, err
	}
	if rep.err != nil {
		rec.Status = StepFailed
		rec.Error = rep.err.Error()
		log.Warn("Stage failed", zap.String("stage", stage.Name()), zap.Error(rep.err))
	}
	if rec.Status == "" {
		rec.Status = StepCompleted
	}
	return result, rec, nil
}
