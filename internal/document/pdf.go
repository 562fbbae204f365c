// Package document pulls plain text out of uploaded documents locally.
package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/xaenox/x-agent/internal/failure"
)

const PDFMimeType = "application/pdf"

// TextExtractor returns the text of a document. An empty result means the
// document has no extractable text, which is not an error.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) ExtractText(ctx context.Context, data []byte) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = failure.New(failure.KindExtractionFailed, "pdf parser panicked", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", failure.New(failure.KindExtractionFailed, "open pdf", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", failure.New(failure.KindExtractionFailed, "read pdf text", err)
	}
	var buf strings.Builder
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", failure.New(failure.KindExtractionFailed, "read pdf text", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
