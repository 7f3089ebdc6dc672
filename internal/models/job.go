package models

import (
	"time"
)

// Job lifecycle states. Completed and failed are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Pipeline stages in execution order.
const (
	StageDocument = "document"
	StageOCR      = "ocr"
	StageNLP      = "nlp"
	StageForm     = "form"
)

// PipelineStages is the fixed stage sequence every job runs through. OCR
// consumes the document analysis, NLP consumes the OCR text, and form filling
// consumes both, so the order is a correctness requirement.
var PipelineStages = []string{StageDocument, StageOCR, StageNLP, StageForm}

// ProgressCheckpoints maps each stage to the progress value written after it
// succeeds.
var ProgressCheckpoints = map[string]int{
	StageDocument: 25,
	StageOCR:      50,
	StageNLP:      75,
	StageForm:     100,
}

// DispatchProgress is recorded when the executor picks a job up, so observers
// can tell an accepted run apart from one still sitting in the queue.
const DispatchProgress = 10

// Job is one tracked unit of pipeline work for a single patient.
type Job struct {
	ID        string     `json:"job_id"`
	SubjectID string     `json:"subject_id"`
	Status    string     `json:"status"`
	Progress  int        `json:"progress"`
	Error     *string    `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	FailedAt  *time.Time `json:"failed_at,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
