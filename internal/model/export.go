package model

import "time"

// EvaluationExport is the top-level JSON structure written by the export command.
type EvaluationExport struct {
	ExportedAt  time.Time    `json:"exported_at"`
	Subject     string       `json:"subject,omitempty"`
	Count       int          `json:"count"`
	Evaluations []Evaluation `json:"evaluations"`
}
