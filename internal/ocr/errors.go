package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFileTooLarge is returned when a document exceeds MaxFileSizeBytes.
	ErrFileTooLarge = errors.New("file size exceeds the maximum limit (20MB)")

	// ErrUnsupportedType is returned for content that is neither a PDF nor a supported image.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrOCRFailed is returned when the provider fails to process the document.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned when no Google Cloud credentials could be found.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS")

	// ErrInvalidConfiguration is returned when a required project, location or processor is missing.
	ErrInvalidConfiguration = errors.New("invalid OCR configuration")

	// ErrTooManyPages is returned when a PDF has more pages than synchronous processing allows.
	ErrTooManyPages = errors.New("PDF has too many pages (maximum 5 pages for synchronous processing)")

	// ErrEmptyDocument is returned when no text could be read.
	ErrEmptyDocument = errors.New("document contains no readable text")

	// ErrQuotaExceeded is returned when the provider rejects the call for quota reasons.
	ErrQuotaExceeded = errors.New("provider quota exceeded")

	// ErrPermissionDenied is returned when the credentials lack access to the processor.
	ErrPermissionDenied = errors.New("insufficient permissions")

	// ErrContextCanceled is returned when the context is canceled during processing.
	ErrContextCanceled = errors.New("OCR processing was canceled")
)

// OCRError wraps errors with the operation that failed.
type OCRError struct {
	Op      string
	Err     error
	Details string
}

func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

func (e *OCRError) Unwrap() error {
	return e.Err
}

// WrapOCRError wraps err as an OCRError unless it already is one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}
	return &OCRError{Op: op, Err: err, Details: details}
}

// ClassifyProviderError maps a Google API error onto the package sentinels.
// The status is read from the error text, which is how the gRPC clients report it.
func ClassifyProviderError(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "PermissionDenied"), strings.Contains(msg, "PERMISSION_DENIED"):
		return WrapOCRError(op, ErrPermissionDenied, msg)
	case strings.Contains(msg, "ResourceExhausted"), strings.Contains(msg, "QUOTA_EXCEEDED"):
		return WrapOCRError(op, ErrQuotaExceeded, msg)
	case strings.Contains(msg, "InvalidArgument"), strings.Contains(msg, "INVALID_ARGUMENT"):
		return WrapOCRError(op, ErrUnsupportedType, "document format not supported or corrupted")
	case errors.Is(err, context.DeadlineExceeded), strings.Contains(msg, "DeadlineExceeded"):
		return WrapOCRError(op, context.DeadlineExceeded, "processing timeout")
	case errors.Is(err, context.Canceled), strings.Contains(msg, "Canceled"):
		return WrapOCRError(op, ErrContextCanceled, "processing was canceled")
	}
	return WrapOCRError(op, ErrOCRFailed, msg)
}
