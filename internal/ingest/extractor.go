package ingest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrNoText = errors.New("no text extracted")

// minDirectParseLen is the quality gate on direct parsing: a shorter result,
// even from a successful parse, means the document is likely scanned and the
// OCR path is taken instead.
const minDirectParseLen = 150

type OCR interface {
	ExtractText(ctx context.Context, raw []byte) (string, error)
}

type TextExtractor struct {
	ocr   OCR
	parse func(raw []byte) (string, error)
}

func NewTextExtractor(ocr OCR) *TextExtractor {
	return &TextExtractor{ocr: ocr, parse: parsePDF}
}

// Extract obtains text from a raw document. Direct structural parsing runs
// first; OCR is the fallback both when parsing errors and when it succeeds
// with too little text. If neither path yields usable text the extraction
// fails as a whole.
func (e *TextExtractor) Extract(ctx context.Context, raw []byte) (string, error) {
	content, err := e.parse(raw)
	if err != nil {
		slog.WarnContext(ctx, "direct parse failed, will attempt ocr", "error", err)
		content = ""
	}

	// An insufficient parse is discarded outright: the ocr result replaces
	// it, and an ocr failure means the document yielded no usable text.
	if len(strings.TrimSpace(content)) < minDirectParseLen {
		ocrText, ocrErr := e.ocr.ExtractText(ctx, raw)
		if ocrErr != nil {
			slog.WarnContext(ctx, "ocr failed", "error", ocrErr)
			return "", ErrNoText
		}
		content = ocrText
	}

	if strings.TrimSpace(content) == "" {
		return "", ErrNoText
	}
	return content, nil
}

func parsePDF(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
