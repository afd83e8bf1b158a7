// Package ocr extracts free text from scanned exams.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

const (
	// MaxFileSizeBytes is the maximum file size for synchronous processing (20MB).
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the maximum number of PDF pages for synchronous processing.
	MaxPagesSync = 5
)

// Result is the text read from one document.
type Result struct {
	Text       string        `json:"text"`
	PageCount  int           `json:"pageCount"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"-"`
}

// Provider extracts text from an image or PDF.
type Provider interface {
	ExtractText(ctx context.Context, content []byte, mimeType string) (*Result, error)
	Close() error
}

// CredentialOptions returns client options for Google Cloud: an explicit
// credentials file first, then GOOGLE_CREDENTIALS (inline JSON), then
// GOOGLE_APPLICATION_CREDENTIALS. Empty means application default credentials.
func CredentialOptions(credentialsFile string) []option.ClientOption {
	switch {
	case credentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
	case os.Getenv("GOOGLE_CREDENTIALS") != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(os.Getenv("GOOGLE_CREDENTIALS")))}
	case os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "":
		return []option.ClientOption{option.WithCredentialsFile(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))}
	}
	return nil
}

// VisionProvider implements Provider with Google Cloud Vision DOCUMENT_TEXT_DETECTION.
type VisionProvider struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionProvider creates a Vision client.
func NewVisionProvider(ctx context.Context, credentialsFile string) (*VisionProvider, error) {
	const op = "NewVisionProvider"
	opts := CredentialOptions(credentialsFile)
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}
	return &VisionProvider{client: client}, nil
}

func (v *VisionProvider) Close() error {
	return v.client.Close()
}

// ExtractText reads a PDF (up to MaxPagesSync pages) or a single image.
func (v *VisionProvider) ExtractText(ctx context.Context, content []byte, mimeType string) (*Result, error) {
	const op = "ExtractText"
	start := time.Now()

	if len(content) == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, "empty upload")
	}
	if len(content) > MaxFileSizeBytes {
		return nil, WrapOCRError(op, ErrFileTooLarge, fmt.Sprintf("file size: %d bytes", len(content)))
	}
	mimeType = DetectMimeType(content, mimeType)

	var (
		pages []*visionpb.AnnotateImageResponse
		err   error
	)
	switch {
	case mimeType == "application/pdf":
		pages, err = v.annotateFile(ctx, content)
	case strings.HasPrefix(mimeType, "image/"):
		pages, err = v.annotateImage(ctx, content)
	default:
		return nil, WrapOCRError(op, ErrUnsupportedType, mimeType)
	}
	if err != nil {
		return nil, err
	}

	res, err := collectText(pages)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to process Vision response")
	}
	res.Duration = time.Since(start)
	slog.Info("ocr done", "mime", mimeType, "pages", res.PageCount, "chars", len(res.Text), "duration", res.Duration)
	return res, nil
}

func (v *VisionProvider) annotateImage(ctx context.Context, content []byte) ([]*visionpb.AnnotateImageResponse, error) {
	const op = "annotateImage"
	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: content},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return nil, ClassifyProviderError(op, err)
	}
	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}
	return resp.Responses, nil
}

func (v *VisionProvider) annotateFile(ctx context.Context, content []byte) ([]*visionpb.AnnotateImageResponse, error) {
	const op = "annotateFile"
	resp, err := v.client.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{{
			InputConfig: &visionpb.InputConfig{Content: content, MimeType: "application/pdf"},
			Features:    []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return nil, ClassifyProviderError(op, err)
	}
	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}
	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fileResp.Error.Message)
	}
	if len(fileResp.Responses) > MaxPagesSync {
		return nil, WrapOCRError(op, ErrTooManyPages, fmt.Sprintf("document has %d pages", len(fileResp.Responses)))
	}
	return fileResp.Responses, nil
}

// collectText joins page texts and averages the page confidences.
func collectText(pages []*visionpb.AnnotateImageResponse) (*Result, error) {
	var (
		text    strings.Builder
		confSum float64
		confN   int
	)
	for i, page := range pages {
		if page.GetError() != nil {
			return nil, fmt.Errorf("page %d: %s", i+1, page.GetError().GetMessage())
		}
		ann := page.GetFullTextAnnotation()
		if ann == nil {
			continue
		}
		if text.Len() > 0 {
			fmt.Fprintf(&text, "\n\n--- Página %d ---\n\n", i+1)
		}
		text.WriteString(ann.GetText())
		for _, p := range ann.GetPages() {
			if p.GetConfidence() > 0 {
				confSum += float64(p.GetConfidence())
				confN++
			}
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyDocument
	}
	res := &Result{Text: text.String(), PageCount: len(pages)}
	if confN > 0 {
		res.Confidence = confSum / float64(confN)
	}
	return res, nil
}

// DetectMimeType prefers a declared specific type and otherwise sniffs the content.
func DetectMimeType(content []byte, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if bytes.HasPrefix(content, []byte("%PDF")) {
		return "application/pdf"
	}
	sniffed := http.DetectContentType(content)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	return sniffed
}
