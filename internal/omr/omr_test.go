package omr

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"

	"github.com/libelia/libelia/internal/model"
)

// square returns a 20x20 selected mark with its top-left corner at (x, y).
func square(x, y, conf float64) model.SelectionMark {
	return model.SelectionMark{
		Polygon: []model.Point{
			{X: x, Y: y}, {X: x + 20, Y: y}, {X: x + 20, Y: y + 20}, {X: x, Y: y + 20},
		},
		Confidence: conf,
		State:      model.MarkSelected,
	}
}

func TestInterpretSingleRow(t *testing.T) {
	marks := []model.SelectionMark{square(90, 101, 0.95), square(10, 100, 0.9), square(50, 102, 0.99)}
	items := Interpret(marks, DefaultMinConfidence)
	if len(items) != 1 {
		t.Fatalf("expected 1 row, got %d: %+v", len(items), items)
	}
	it := items[0]
	if it.ItemID != "P1" || it.Value != "C" || it.Kind != model.KindMultipleChoice || it.MarkCount != 3 {
		t.Errorf("unexpected item %+v", it)
	}
	if it.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want min 0.9", it.Confidence)
	}
	want := model.BoundingBox{X: 10, Y: 100, Width: 100, Height: 21}
	if it.BoundingBox != want {
		t.Errorf("BoundingBox = %+v, want %+v", it.BoundingBox, want)
	}
}

func TestInterpretRows(t *testing.T) {
	marks := []model.SelectionMark{
		square(10, 300, 0.9),
		square(10, 100, 0.9),
		square(60, 205, 0.9),
		square(10, 200, 0.9),
		square(200, 100, 0.5), // below threshold
		{Polygon: []model.Point{{X: 30, Y: 300}}, Confidence: 0.99, State: model.MarkUnselected},
		{Confidence: 0.99, State: model.MarkSelected}, // no polygon
	}
	items := Interpret(marks, DefaultMinConfidence)
	if len(items) != 3 {
		t.Fatalf("expected 3 rows, got %d: %+v", len(items), items)
	}
	wantValues := []string{"A", "B", "A"}
	wantKinds := []model.ItemKind{model.KindMultipleChoice, model.KindTrueFalse, model.KindMultipleChoice}
	for i, it := range items {
		if it.ItemID != "P"+string(rune('1'+i)) {
			t.Errorf("row %d id = %s", i, it.ItemID)
		}
		if it.Value != wantValues[i] || it.Kind != wantKinds[i] {
			t.Errorf("row %d = %s/%s, want %s/%s", i, it.Value, it.Kind, wantValues[i], wantKinds[i])
		}
	}
	if got := AverageConfidence(items); math.Abs(got-0.9) > 1e-9 {
		t.Errorf("AverageConfidence = %v, want 0.9", got)
	}
}

func TestInterpretLetterCap(t *testing.T) {
	var marks []model.SelectionMark
	for i := 0; i < 9; i++ {
		marks = append(marks, square(float64(i*30), 50, 0.9))
	}
	items := Interpret(marks, DefaultMinConfidence)
	if len(items) != 1 || items[0].Value != "G" {
		t.Errorf("expected one row valued G, got %+v", items)
	}
}

func TestInterpretShortPolygon(t *testing.T) {
	m := model.SelectionMark{Polygon: []model.Point{{X: 5, Y: 5}, {X: 15, Y: 9}}, Confidence: 0.9, State: model.MarkSelected}
	items := Interpret([]model.SelectionMark{m}, DefaultMinConfidence)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if want := (model.BoundingBox{X: 5, Y: 5, Width: 10, Height: 4}); items[0].BoundingBox != want {
		t.Errorf("BoundingBox = %+v, want %+v", items[0].BoundingBox, want)
	}
	if AverageConfidence(nil) != 0 {
		t.Error("AverageConfidence(nil) should be 0")
	}
}

type fakeSource struct {
	pages [][]model.SelectionMark
	err   error
	panic bool
}

func (f fakeSource) SelectionMarks(ctx context.Context, content []byte, mimeType string) ([][]model.SelectionMark, error) {
	if f.panic {
		panic("boom")
	}
	return f.pages, f.err
}

func TestExtractor(t *testing.T) {
	img := []byte("image")
	twoPages := fakeSource{pages: [][]model.SelectionMark{
		{square(10, 100, 0.9), square(10, 200, 0.9)},
		{square(10, 100, 0.95)},
	}}

	tests := []struct {
		name        string
		source      MarkSource
		content     []byte
		expected    int
		wantSuccess bool
		wantItems   int
		wantError   string
		wantWarning string
	}{
		{"multi page renumbers", twoPages, img, 3, true, 3, "", ""},
		{"count mismatch warns", twoPages, img, 5, true, 3, "", "se esperaban 5"},
		{"no marks", fakeSource{pages: [][]model.SelectionMark{{}}}, img, 2, false, 0, "no se detectaron marcas", ""},
		{"source error", fakeSource{err: errors.New("unavailable")}, img, 2, false, 0, "unavailable", ""},
		{"source panic", fakeSource{panic: true}, img, 2, false, 0, "boom", ""},
		{"no source", nil, img, 2, false, 0, "no configurado", ""},
		{"empty image", twoPages, nil, 2, false, 0, "vacía", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewExtractor(tt.source, 0).Extract(context.Background(), tt.content, "image/png", tt.expected)
			if res.Success != tt.wantSuccess {
				t.Fatalf("Success = %v, want %v (%+v)", res.Success, tt.wantSuccess, res)
			}
			if len(res.Items) != tt.wantItems {
				t.Errorf("items = %d, want %d", len(res.Items), tt.wantItems)
			}
			if res.Items == nil {
				t.Error("Items should never be nil")
			}
			if tt.wantError != "" && !strings.Contains(res.Error, tt.wantError) {
				t.Errorf("Error = %q, want it to contain %q", res.Error, tt.wantError)
			}
			if tt.wantWarning != "" && !strings.Contains(strings.Join(res.Warnings, "|"), tt.wantWarning) {
				t.Errorf("Warnings = %v, want %q", res.Warnings, tt.wantWarning)
			}
			if !res.Success && len(res.Warnings) == 0 {
				t.Error("failures must carry a warning")
			}
		})
	}

	res := NewExtractor(twoPages, 0).Extract(context.Background(), img, "", 3)
	if ids := []string{res.Items[0].ItemID, res.Items[1].ItemID, res.Items[2].ItemID}; ids[2] != "P3" {
		t.Errorf("second page should continue numbering, got %v", ids)
	}
}

func TestPageMarks(t *testing.T) {
	page := &documentaipb.Document_Page{
		Dimension: &documentaipb.Document_Page_Dimension{Width: 1000, Height: 2000},
		VisualElements: []*documentaipb.Document_Page_VisualElement{
			{
				Type: filledCheckbox,
				Layout: &documentaipb.Document_Page_Layout{
					Confidence: 0.9,
					BoundingPoly: &documentaipb.BoundingPoly{Vertices: []*documentaipb.Vertex{
						{X: 10, Y: 20}, {X: 30, Y: 20}, {X: 30, Y: 40}, {X: 10, Y: 40},
					}},
				},
			},
			{
				Type: unfilledCheckbox,
				Layout: &documentaipb.Document_Page_Layout{
					Confidence: 0.8,
					BoundingPoly: &documentaipb.BoundingPoly{NormalizedVertices: []*documentaipb.NormalizedVertex{
						{X: 0.5, Y: 0.25}, {X: 0.75, Y: 0.25}, {X: 0.75, Y: 0.5},
					}},
				},
			},
			{Type: "math_formula", Layout: &documentaipb.Document_Page_Layout{}},
			{Type: filledCheckbox, Layout: &documentaipb.Document_Page_Layout{}},
		},
	}

	marks := pageMarks(page)
	if len(marks) != 2 {
		t.Fatalf("expected 2 marks, got %d", len(marks))
	}
	if marks[0].State != model.MarkSelected || marks[0].Polygon[2] != (model.Point{X: 30, Y: 40}) {
		t.Errorf("unexpected first mark %+v", marks[0])
	}
	if marks[1].State != model.MarkUnselected || marks[1].Polygon[0] != (model.Point{X: 500, Y: 500}) {
		t.Errorf("unexpected second mark %+v", marks[1])
	}

	doc := &documentaipb.Document{Pages: []*documentaipb.Document_Page{page, {}}}
	if pages := documentMarks(doc); len(pages) != 2 || len(pages[1]) != 0 {
		t.Errorf("documentMarks = %+v", pages)
	}
}
