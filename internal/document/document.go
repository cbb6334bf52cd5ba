// Package document extracts plain text from uploaded images, PDFs and Word
// documents so it can be spliced into a generation prompt.
package document

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// Accepted MIME types besides image/*.
const (
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEDoc  = "application/msword"
)

// Upload is a file received from a client.
type Upload struct {
	Filename string
	MIMEType string
	Data     []byte
}

// IsImage reports whether the upload is an image.
func (u Upload) IsImage() bool {
	return isImage(u.MIMEType)
}

// SourceLabel names the kind of upload for use in a prompt: "an image" or
// "a document".
func (u Upload) SourceLabel() string {
	if u.IsImage() {
		return "an image"
	}
	return "a document"
}

// Supported reports whether files of the given MIME type are accepted.
func Supported(mimeType string) bool {
	switch normalize(mimeType) {
	case MIMEPDF, MIMEDOCX, MIMEDoc:
		return true
	}
	return isImage(mimeType)
}

// ProcessingError reports that text could not be extracted from an upload.
type ProcessingError struct {
	Filename string
	MIMEType string
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("failed to extract text from %s (%s): %v", e.Filename, e.MIMEType, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// ErrUnsupportedType is wrapped by ProcessingError for types Supported rejects.
var ErrUnsupportedType = errors.New("unsupported file type")

// TextRecognizer turns an image into text.
type TextRecognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Processor dispatches uploads to the extractor for their type.
type Processor struct {
	ocr TextRecognizer
}

// NewProcessor creates a Processor. Without a recognizer, image uploads fail
// with a ProcessingError.
func NewProcessor(ocr TextRecognizer) *Processor {
	return &Processor{ocr: ocr}
}

// Extract returns the plain text of u. Every failure is a *ProcessingError.
func (p *Processor) Extract(ctx context.Context, u Upload) (string, error) {
	text, err := p.extract(ctx, u)
	if err != nil {
		log.Printf("[document] extracting %s (%s, %d bytes): %v", u.Filename, u.MIMEType, len(u.Data), err)
		return "", &ProcessingError{Filename: u.Filename, MIMEType: u.MIMEType, Err: err}
	}
	return strings.TrimSpace(text), nil
}

func (p *Processor) extract(ctx context.Context, u Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(u.Data) == 0 {
		return "", errors.New("empty file")
	}

	switch mt := normalize(u.MIMEType); {
	case isImage(mt):
		if p.ocr == nil {
			return "", errors.New("image text recognition is not available")
		}
		return p.ocr.Recognize(ctx, u.Data)
	case mt == MIMEPDF:
		return extractPDF(u.Data)
	case mt == MIMEDOCX, mt == MIMEDoc:
		return extractDOCX(u.Data)
	default:
		return "", ErrUnsupportedType
	}
}

// normalize drops MIME parameters ("; charset=...") and case.
func normalize(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(normalize(mimeType), "image/")
}
