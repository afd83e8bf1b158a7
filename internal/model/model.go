package model

import "time"

// NoAnswer is the normalized text of an item where no answer could be found.
const NoAnswer = "SIN_RESPUESTA"

// DefaultApprovalPercent is the pass threshold used when a request does not declare one.
const DefaultApprovalPercent = 60.0

// Confidence is the review tier attached to an extracted answer.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// ItemKind is the declared or inferred type of an objective item.
type ItemKind string

const (
	KindInferred       ItemKind = ""
	KindMultipleChoice ItemKind = "multiple_choice"
	KindTrueFalse      ItemKind = "true_false"
	KindPairing        ItemKind = "pairing"
)

// RubricItem is one scored question of a rubric.
type RubricItem struct {
	ID            string `json:"id"`
	MaxScore      int    `json:"maxScore"`
	IsDevelopment bool   `json:"isDevelopment"`
}

// AnswerKey maps an objective item id to its upper-cased correct answer.
type AnswerKey map[string]string

// ExtractedAnswer is one student response to one objective item.
type ExtractedAnswer struct {
	ItemID         string     `json:"itemId"`
	RawText        string     `json:"rawText"`
	NormalizedText string     `json:"normalizedText"`
	Confidence     Confidence `json:"confidenceTier"`
}

// DevelopmentScore is the LLM's score for one open-response item.
type DevelopmentScore struct {
	ItemID        string  `json:"itemId"`
	ObtainedScore float64 `json:"obtainedScore"`
	MaxScore      float64 `json:"maxScore"`
	Feedback      string  `json:"feedback,omitempty"`
}

// ObjectiveScore is the per-item outcome of exact-match grading.
type ObjectiveScore struct {
	Answer        ExtractedAnswer `json:"answer"`
	CorrectAnswer string          `json:"correctAnswer"`
	Correct       bool            `json:"correct"`
	Points        float64         `json:"points"`
	MaxScore      float64         `json:"maxScore"`
}

// ScoreResult is the aggregated score of one submission.
type ScoreResult struct {
	ObtainedTotal float64 `json:"obtainedTotal"`
	MaxTotal      float64 `json:"maxTotal"`

	// Per-item breakdown after deduplication, in input order.
	Objective   []ObjectiveScore   `json:"objective,omitempty"`
	Development []DevelopmentScore `json:"development,omitempty"`

	// TotalOverridden is set when the rubric sum replaced the declared total.
	TotalOverridden bool     `json:"totalOverridden,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

// GradeResult is the 1.0-7.0 grade derived from a ScoreResult.
type GradeResult struct {
	Grade          float64 `json:"grade"`
	ApprovalPoints float64 `json:"approvalPoints"`
	MaxPoints      float64 `json:"maxPoints"`
}

// Evaluation is a finished grading persisted by the store.
type Evaluation struct {
	ID          string          `json:"id"`
	StudentName string          `json:"studentName"`
	Subject     string          `json:"subject"`
	Grade       float64         `json:"grade"`
	Score       float64         `json:"score"`
	MaxScore    float64         `json:"maxScore"`
	Response    GradingResponse `json:"response"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	Lang                   string        // UI language for reports (es, en)
	DefaultApprovalPercent float64       // used when a request omits approvalPercent
	BatchChunkSize         int           // items per chunk
	BatchConcurrency       int           // chunks per wave
	BatchTimeout           time.Duration // caller-visible bound for a streamed batch
	MaxUploadBytes         int64         // multipart limit for OCR/OMR uploads
}
