package extraction

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Extractor turns documents into text and an optional numeric record.
type Extractor struct {
	ocr    OCR
	logger *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithOCR enables image recognition. Without it images yield OCRUnavailableText.
func WithOCR(ocr OCR) Option {
	return func(e *Extractor) { e.ocr = ocr }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor creates a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract dispatches on the document's extension. Returned errors are
// *ExtractionError with a fatal code; degraded outcomes are reported through
// Extraction.Diagnostics instead.
func (e *Extractor) Extract(ctx context.Context, doc Document) (*Extraction, error) {
	format, err := DetectFormat(doc)
	if err != nil {
		return nil, err
	}
	if len(doc.Data) == 0 && format != FormatText && format != FormatCSV {
		return nil, newError(ErrCorruptDocument, format, "document is empty", nil)
	}

	var out *Extraction
	switch format {
	case FormatPDF:
		out, err = e.extractPDF(doc)
	case FormatImage:
		out, err = e.extractImage(ctx, doc)
	case FormatText:
		out, err = e.extractText(doc)
	case FormatCSV:
		out, err = e.extractCSV(doc)
	default:
		return nil, fmt.Errorf("unhandled format %q", format)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Debug("document extracted",
		zap.String("document", doc.Name),
		zap.String("format", string(format)),
		zap.Int("text_len", len(out.Text)),
		zap.Int("record_fields", len(out.Record)),
		zap.Strings("diagnostics", out.Diagnostics),
	)
	return out, nil
}
