package services

import "slices"

// StepStatus ist das Ergebnis einer Pipeline-Stufe.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StageError ist der Name des Abschluss-Eintrags eines abgebrochenen Laufs.
const StageError = "error"

// StepRecord protokolliert eine ausgeführte Stufe.
type StepRecord struct {
	Stage      string         `json:"stage"`
	Status     StepStatus     `json:"status"`
	DurationMS int64          `json:"duration_ms"`
	Tokens     int            `json:"tokens"`
	CostUSD    float64        `json:"cost_usd"`
	Model      string         `json:"model,omitempty"`
	Facts      map[string]any `json:"facts,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// ExecutionMetadata sind die Stufen eines Laufs samt Summen.
type ExecutionMetadata struct {
	RunID        string       `json:"run_id"`
	Steps        []StepRecord `json:"steps"`
	TotalCostUSD float64      `json:"total_cost_usd"`
	TotalTimeMS  int64        `json:"total_time_ms"`
	TotalTokens  int          `json:"total_tokens"`
	ModelsUsed   []string     `json:"models_used"`
	Aborted      bool         `json:"aborted"`
}

// Accumulator sammelt StepRecords und Summen. Add liefert einen neuen Wert,
// Summen werden nur addiert, nie zurückgesetzt.
type Accumulator struct {
	steps  []StepRecord
	cost   float64
	timeMS int64
	tokens int
	models []string
}

// Add hängt einen Record an.
func (a Accumulator) Add(rec StepRecord) Accumulator {
	next := Accumulator{
		steps:  append(slices.Clone(a.steps), rec),
		cost:   a.cost + rec.CostUSD,
		timeMS: a.timeMS + rec.DurationMS,
		tokens: a.tokens + rec.Tokens,
		models: slices.Clone(a.models),
	}
	if rec.Model != "" && !slices.Contains(next.models, rec.Model) {
		next.models = append(next.models, rec.Model)
	}
	return next
}

// Len ist die Zahl der bisher protokollierten Stufen.
func (a Accumulator) Len() int {
	return len(a.steps)
}

// CostUSD ist die bisher aufgelaufene Summe.
func (a Accumulator) CostUSD() float64 {
	return a.cost
}

// Metadata baut die Ausführungs-Metadaten.
func (a Accumulator) Metadata(runID string, aborted bool) ExecutionMetadata {
	models := a.models
	if models == nil {
		models = []string{}
	}
	return ExecutionMetadata{
		RunID:        runID,
		Steps:        slices.Clone(a.steps),
		TotalCostUSD: a.cost,
		TotalTimeMS:  a.timeMS,
		TotalTokens:  a.tokens,
		ModelsUsed:   slices.Clone(models),
		Aborted:      aborted,
	}
}
