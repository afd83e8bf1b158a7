package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// GradingRequest is one submission to grade.
type GradingRequest struct {
	RubricStructured string   `json:"rubricStructured"`
	AnswerKey        string   `json:"answerKey"`
	MaxTotalScore    float64  `json:"maxTotalScore"`
	ApprovalPercent  *float64 `json:"approvalPercent,omitempty"`
	ExtractedText    string   `json:"extractedText"`
	Subject          string   `json:"subject,omitempty"`
	StudentName      string   `json:"studentName,omitempty"`

	// LLMResult is an evaluation obtained beforehand. When nil the service asks the LLM.
	LLMResult *LLMEvaluation `json:"evaluacionIA,omitempty"`
}

// Approval returns the declared approval percent, or def when none was declared.
func (r GradingRequest) Approval(def float64) float64 {
	if r.ApprovalPercent == nil {
		return def
	}
	return *r.ApprovalPercent
}

// AlternativeFeedback is the LLM's reading of one objective item.
type AlternativeFeedback struct {
	Question      string `json:"pregunta"`
	StudentAnswer string `json:"respuesta_estudiante"`
	CorrectAnswer string `json:"respuesta_correcta"`
}

// DevelopmentDetail is the LLM's score string and feedback for one development item.
type DevelopmentDetail struct {
	ItemID   string     `json:"-"`
	Score    FlexString `json:"puntaje"`
	Feedback string     `json:"retroalimentacion,omitempty"`
}

// UnmarshalJSON also accepts a bare score ("P1": "3/4") in place of the object.
func (d *DevelopmentDetail) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '{' {
		d.Feedback = ""
		return d.Score.UnmarshalJSON(b)
	}
	type plain DevelopmentDetail
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	p.ItemID = d.ItemID
	*d = DevelopmentDetail(p)
	return nil
}

// LLMEvaluation is the JSON object returned by the grading LLM.
type LLMEvaluation struct {
	Alternatives    []AlternativeFeedback `json:"retroalimentacion_alternativas"`
	Development     DevelopmentDetails    `json:"detalle_puntaje_desarrollo"`
	GeneralFeedback string                `json:"retroalimentacion_general,omitempty"`
}

// CorrectedAlternative is one graded objective item in a response.
type CorrectedAlternative struct {
	Question         string     `json:"pregunta"`
	StudentAnswer    string     `json:"respuesta_estudiante"`
	NormalizedAnswer string     `json:"respuesta_normalizada"`
	CorrectAnswer    string     `json:"respuesta_correcta"`
	Correct          bool       `json:"correcta"`
	Points           float64    `json:"puntaje"`
	MaxPoints        float64    `json:"puntaje_maximo"`
	Confidence       Confidence `json:"confianza"`
	NeedsReview      bool       `json:"requiere_revision"`
}

// DevelopmentResult is one graded development item in a response.
type DevelopmentResult struct {
	ItemID   string  `json:"-"`
	Score    string  `json:"puntaje"`
	Obtained float64 `json:"obtenido"`
	Max      float64 `json:"maximo"`
	Feedback string  `json:"retroalimentacion,omitempty"`
}

// GradingResponse is the graded outcome of one submission.
type GradingResponse struct {
	Success         bool                   `json:"success"`
	Score           string                 `json:"puntaje"`
	Grade           float64                `json:"nota"`
	ApprovalPoints  float64                `json:"puntosAprobacion"`
	MaxPoints       float64                `json:"puntosMaximos"`
	Alternatives    []CorrectedAlternative `json:"alternativas_corregidas"`
	Development     DevelopmentResults     `json:"detalle_desarrollo"`
	GeneralFeedback string                 `json:"retroalimentacion_general,omitempty"`
	Warnings        []string               `json:"advertencias,omitempty"`
	EvaluationID    string                 `json:"evaluationId,omitempty"`
}

// ErrorResponse is the failure shape returned at every boundary.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// FlexString accepts a JSON string or number and keeps its text.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("puntaje must be a string or number: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// DevelopmentDetails keeps the object's keys in document order, duplicates included.
type DevelopmentDetails []DevelopmentDetail

func (d *DevelopmentDetails) UnmarshalJSON(b []byte) error {
	out, err := decodeOrderedObject(b, func(key string, dec *json.Decoder) (DevelopmentDetail, error) {
		var det DevelopmentDetail
		if err := dec.Decode(&det); err != nil {
			return det, fmt.Errorf("item %q: %w", key, err)
		}
		det.ItemID = key
		return det, nil
	})
	if err != nil {
		return err
	}
	*d = out
	return nil
}

func (d DevelopmentDetails) MarshalJSON() ([]byte, error) {
	return encodeOrderedObject(len(d), func(i int) (string, any) { return d[i].ItemID, d[i] })
}

// DevelopmentResults serializes as an object keyed by item id, in slice order.
type DevelopmentResults []DevelopmentResult

func (d *DevelopmentResults) UnmarshalJSON(b []byte) error {
	out, err := decodeOrderedObject(b, func(key string, dec *json.Decoder) (DevelopmentResult, error) {
		var res DevelopmentResult
		if err := dec.Decode(&res); err != nil {
			return res, fmt.Errorf("item %q: %w", key, err)
		}
		res.ItemID = key
		return res, nil
	})
	if err != nil {
		return err
	}
	*d = out
	return nil
}

func (d DevelopmentResults) MarshalJSON() ([]byte, error) {
	return encodeOrderedObject(len(d), func(i int) (string, any) { return d[i].ItemID, d[i] })
}

func decodeOrderedObject[T any](b []byte, decodeValue func(key string, dec *json.Decoder) (T, error)) ([]T, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var out []T
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		v, err := decodeValue(key, dec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeOrderedObject(n int, entry func(i int) (string, any)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < n; i++ {
		key, val := entry(i)
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FormatPoints renders a point value with at most two decimals and no trailing zeros ("4", "4.5").
func FormatPoints(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
