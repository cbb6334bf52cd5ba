// Package ocr recognizes text in images with the Tesseract engine. It needs
// the tesseract and leptonica libraries at build time.
package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements document.TextRecognizer.
type Tesseract struct {
	languages []string
}

// New creates a recognizer for the given Tesseract language codes, "eng" when
// none are given.
func New(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Tesseract{languages: languages}
}

// Recognize returns the text found in image. A gosseract client is not safe
// for concurrent use, so each call gets its own.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return "", fmt.Errorf("ocr: setting language: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("ocr: loading image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: recognizing text: %w", err)
	}
	return text, nil
}
