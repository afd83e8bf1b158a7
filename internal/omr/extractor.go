package omr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/libelia/libelia/internal/model"
)

// MarkSource detects selection marks in a document, one slice per page.
type MarkSource interface {
	SelectionMarks(ctx context.Context, content []byte, mimeType string) ([][]model.SelectionMark, error)
}

// Extractor reads answer sheets through a MarkSource. It never returns an
// error: every failure is reported inside the OMRResult.
type Extractor struct {
	source        MarkSource
	minConfidence float64
}

// NewExtractor creates an Extractor. A non-positive minConfidence selects DefaultMinConfidence.
func NewExtractor(source MarkSource, minConfidence float64) *Extractor {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Extractor{source: source, minConfidence: minConfidence}
}

// Extract reads one sheet. expectedItems is informational; a mismatch adds a warning.
func (e *Extractor) Extract(ctx context.Context, content []byte, mimeType string, expectedItems int) (res model.OMRResult) {
	res = model.OMRResult{Items: []model.OMRResultItem{}, ExpectedItems: expectedItems}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("omr extraction panicked", "panic", r)
			res = failure(expectedItems, fmt.Sprintf("error interno al leer marcas: %v", r))
		}
	}()

	if e == nil || e.source == nil {
		return failure(expectedItems, "servicio de análisis de documentos no configurado")
	}
	if len(content) == 0 {
		return failure(expectedItems, "imagen vacía")
	}

	pages, err := e.source.SelectionMarks(ctx, content, mimeType)
	if err != nil {
		slog.Error("selection mark detection failed", "error", err)
		return failure(expectedItems, fmt.Sprintf("error al analizar el documento: %v", err))
	}

	for _, marks := range pages {
		res.Items = append(res.Items, interpretFrom(marks, e.minConfidence, len(res.Items))...)
	}
	if len(res.Items) == 0 {
		res.Error = "no se detectaron marcas; verifique que la imagen esté bien iluminada, enfocada y sin recortes"
		res.Warnings = append(res.Warnings, res.Error)
		return res
	}

	res.Success = true
	res.AverageConfidence = AverageConfidence(res.Items)
	if expectedItems > 0 && len(res.Items) != expectedItems {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("se esperaban %d ítems y se detectaron %d", expectedItems, len(res.Items)))
	}
	slog.Info("omr extraction done", "items", len(res.Items), "expected", expectedItems, "avg_confidence", res.AverageConfidence)
	return res
}

func failure(expectedItems int, msg string) model.OMRResult {
	return model.OMRResult{
		Items:         []model.OMRResultItem{},
		ExpectedItems: expectedItems,
		Warnings:      []string{msg},
		Error:         msg,
	}
}
