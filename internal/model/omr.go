package model

// MarkState is the OCR provider's reading of a selection mark.
type MarkState string

const (
	MarkSelected   MarkState = "selected"
	MarkUnselected MarkState = "unselected"
)

// Point is a polygon vertex in page pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SelectionMark is one detected checkbox/bubble on a page.
type SelectionMark struct {
	Polygon    []Point   `json:"polygon"`
	Confidence float64   `json:"confidence"`
	State      MarkState `json:"state"`
}

// BoundingBox is an axis-aligned region of a page.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// OMRResultItem is one answer item read from a row of marks.
type OMRResultItem struct {
	ItemID      string      `json:"itemId"`
	Value       string      `json:"value"`
	Kind        ItemKind    `json:"kind"`
	BoundingBox BoundingBox `json:"boundingBox"`
	Confidence  float64     `json:"confidence"`
	MarkCount   int         `json:"markCount"`
}

// OMRResult is the outcome of reading the marks of one scanned sheet.
type OMRResult struct {
	Success           bool            `json:"success"`
	Items             []OMRResultItem `json:"items"`
	AverageConfidence float64         `json:"averageConfidence"`
	ExpectedItems     int             `json:"expectedItems,omitempty"`
	Warnings          []string        `json:"warnings,omitempty"`
	Error             string          `json:"error,omitempty"`
}
