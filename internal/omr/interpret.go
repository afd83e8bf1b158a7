// Package omr turns selection marks detected on an answer sheet into
// per-item answers.
package omr

import (
	"cmp"
	"math"
	"slices"
	"strconv"

	"github.com/libelia/libelia/internal/model"
)

const (
	// DefaultMinConfidence is the lowest mark confidence accepted as a real selection.
	DefaultMinConfidence = 0.85

	rowSortTolerance  = 20.0
	rowGroupTolerance = 15.0
)

var letters = []string{"A", "B", "C", "D", "E", "F", "G"}

// Interpret groups selected marks into rows, top to bottom, and maps each row
// to an item P1, P2, ... The value is taken from the row's mark count.
func Interpret(marks []model.SelectionMark, minConfidence float64) []model.OMRResultItem {
	return interpretFrom(marks, minConfidence, 0)
}

func interpretFrom(marks []model.SelectionMark, minConfidence float64, offset int) []model.OMRResultItem {
	selected := make([]model.SelectionMark, 0, len(marks))
	for _, m := range marks {
		if m.State == model.MarkSelected && m.Confidence >= minConfidence && len(m.Polygon) > 0 {
			selected = append(selected, m)
		}
	}
	if len(selected) == 0 {
		return nil
	}

	slices.SortStableFunc(selected, func(a, b model.SelectionMark) int {
		ay, by := a.Polygon[0].Y, b.Polygon[0].Y
		if math.Abs(ay-by) <= rowSortTolerance {
			return cmp.Compare(a.Polygon[0].X, b.Polygon[0].X)
		}
		return cmp.Compare(ay, by)
	})

	var rows [][]model.SelectionMark
	for _, m := range selected {
		joined := false
		for i := range rows {
			if math.Abs(m.Polygon[0].Y-rows[i][0].Polygon[0].Y) <= rowGroupTolerance {
				rows[i] = append(rows[i], m)
				joined = true
				break
			}
		}
		if !joined {
			rows = append(rows, []model.SelectionMark{m})
		}
	}

	items := make([]model.OMRResultItem, 0, len(rows))
	for i, row := range rows {
		slices.SortStableFunc(row, func(a, b model.SelectionMark) int {
			return cmp.Compare(a.Polygon[0].X, b.Polygon[0].X)
		})
		kind := model.KindMultipleChoice
		if len(row) == 2 {
			kind = model.KindTrueFalse
		}
		items = append(items, model.OMRResultItem{
			ItemID:      "P" + strconv.Itoa(offset+i+1),
			Value:       letters[min(len(row)-1, len(letters)-1)],
			Kind:        kind,
			BoundingBox: rowBounds(row),
			Confidence:  rowConfidence(row),
			MarkCount:   len(row),
		})
	}
	return items
}

// rowBounds spans the first mark's top-left corner to the last mark's
// bottom-right corner (third vertex, or the last one available).
func rowBounds(row []model.SelectionMark) model.BoundingBox {
	start := row[0].Polygon[0]
	last := row[len(row)-1].Polygon
	end := last[len(last)-1]
	if len(last) >= 3 {
		end = last[2]
	}
	return model.BoundingBox{
		X:      start.X,
		Y:      start.Y,
		Width:  end.X - start.X,
		Height: end.Y - start.Y,
	}
}

func rowConfidence(row []model.SelectionMark) float64 {
	c := row[0].Confidence
	for _, m := range row[1:] {
		c = min(c, m.Confidence)
	}
	return c
}

// AverageConfidence is the mean item confidence, 0 when there are no items.
func AverageConfidence(items []model.OMRResultItem) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, it := range items {
		sum += it.Confidence
	}
	return sum / float64(len(items))
}
