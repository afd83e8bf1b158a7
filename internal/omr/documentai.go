package omr

import (
	"context"
	"fmt"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/libelia/libelia/internal/model"
	"github.com/libelia/libelia/internal/ocr"
)

const (
	filledCheckbox   = "filled_checkbox"
	unfilledCheckbox = "unfilled_checkbox"
)

// DocumentAIConfig selects the Form Parser processor used to detect marks.
type DocumentAIConfig struct {
	ProjectID       string
	Location        string // "us" or "eu"
	ProcessorID     string
	CredentialsFile string
	Timeout         time.Duration
}

// DocumentAISource implements MarkSource with a Google Document AI form parser.
type DocumentAISource struct {
	client *documentai.DocumentProcessorClient
	cfg    DocumentAIConfig
}

// NewDocumentAISource connects to the regional Document AI endpoint.
func NewDocumentAISource(ctx context.Context, cfg DocumentAIConfig) (*DocumentAISource, error) {
	const op = "NewDocumentAISource"
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, ocr.WrapOCRError(op, ocr.ErrInvalidConfiguration, "project and processor id are required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := ocr.CredentialOptions(cfg.CredentialsFile)
	hasCreds := len(opts) > 0
	if cfg.Location != "us" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)))
	}
	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		if !hasCreds {
			return nil, ocr.WrapOCRError(op, ocr.ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, ocr.WrapOCRError(op, err, "failed to create Document AI client for location "+cfg.Location)
	}
	return &DocumentAISource{client: client, cfg: cfg}, nil
}

func (s *DocumentAISource) Close() error {
	return s.client.Close()
}

func (s *DocumentAISource) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", s.cfg.ProjectID, s.cfg.Location, s.cfg.ProcessorID)
}

// SelectionMarks sends the document to the processor and returns the checkbox
// elements of every page.
func (s *DocumentAISource) SelectionMarks(ctx context.Context, content []byte, mimeType string) ([][]model.SelectionMark, error) {
	const op = "SelectionMarks"
	if len(content) > ocr.MaxFileSizeBytes {
		return nil, ocr.WrapOCRError(op, ocr.ErrFileTooLarge, fmt.Sprintf("file size: %d bytes", len(content)))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: s.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: ocr.DetectMimeType(content, mimeType),
			},
		},
	})
	if err != nil {
		return nil, ocr.ClassifyProviderError(op, err)
	}
	if resp.GetDocument() == nil {
		return nil, ocr.WrapOCRError(op, ocr.ErrOCRFailed, "no document in response")
	}
	return documentMarks(resp.GetDocument()), nil
}

func documentMarks(doc *documentaipb.Document) [][]model.SelectionMark {
	pages := make([][]model.SelectionMark, 0, len(doc.GetPages()))
	for _, p := range doc.GetPages() {
		pages = append(pages, pageMarks(p))
	}
	return pages
}

// pageMarks converts checkbox visual elements to pixel-space marks.
// Normalized vertices are scaled by the page dimension.
func pageMarks(page *documentaipb.Document_Page) []model.SelectionMark {
	var w, h float64
	if d := page.GetDimension(); d != nil {
		w, h = float64(d.GetWidth()), float64(d.GetHeight())
	}

	var marks []model.SelectionMark
	for _, el := range page.GetVisualElements() {
		var state model.MarkState
		switch el.GetType() {
		case filledCheckbox:
			state = model.MarkSelected
		case unfilledCheckbox:
			state = model.MarkUnselected
		default:
			continue
		}
		layout := el.GetLayout()
		poly := polygon(layout.GetBoundingPoly(), w, h)
		if len(poly) == 0 {
			continue
		}
		marks = append(marks, model.SelectionMark{
			Polygon:    poly,
			Confidence: float64(layout.GetConfidence()),
			State:      state,
		})
	}
	return marks
}

func polygon(bp *documentaipb.BoundingPoly, w, h float64) []model.Point {
	if vs := bp.GetVertices(); len(vs) > 0 {
		pts := make([]model.Point, 0, len(vs))
		for _, v := range vs {
			pts = append(pts, model.Point{X: float64(v.GetX()), Y: float64(v.GetY())})
		}
		return pts
	}
	nvs := bp.GetNormalizedVertices()
	pts := make([]model.Point, 0, len(nvs))
	for _, v := range nvs {
		pts = append(pts, model.Point{X: float64(v.GetX()) * w, Y: float64(v.GetY()) * h})
	}
	return pts
}
