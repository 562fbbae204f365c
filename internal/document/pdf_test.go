package document

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/x-agent/internal/failure"
)

// buildPDF writes a single page PDF whose content stream is content.
func buildPDF(content string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPDFExtractorText(t *testing.T) {
	data := buildPDF("BT /F1 24 Tf 72 700 Td (Hello PDF) Tj ET")

	text, err := NewPDFExtractor().ExtractText(context.Background(), data)
	require.NoError(t, err)
	assert.Contains(t, text, "Hello")
}

func TestPDFExtractorNoText(t *testing.T) {
	data := buildPDF("0 0 m 100 100 l S")

	text, err := NewPDFExtractor().ExtractText(context.Background(), data)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestPDFExtractorGarbage(t *testing.T) {
	_, err := NewPDFExtractor().ExtractText(context.Background(), []byte("definitely not a pdf"))
	require.Error(t, err)
	assert.Equal(t, failure.KindExtractionFailed, failure.KindOf(err))
}

func TestPDFExtractorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPDFExtractor().ExtractText(ctx, buildPDF(""))
	assert.ErrorIs(t, err, context.Canceled)
}
