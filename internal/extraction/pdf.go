package extraction

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

const maxTextBytes = 1 << 20 // 1MB cap for extracted text

// pdfText holds the text pulled from a PDF, one entry per page that had any.
// Skipped lists the pages whose content could not be read.
type pdfText struct {
	PageCount int
	Pages     []string
	Skipped   []int
	Truncated bool
}

// readPDF extracts per-page plain text. It is wrapped in recover() since the
// PDF library panics on some malformed inputs.
func readPDF(data []byte) (result *pdfText, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic during PDF parsing: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF reader: %w", err)
	}

	result = &pdfText{PageCount: reader.NumPage()}
	fonts := make(map[string]*pdf.Font)
	total := 0

	for i := 1; i <= result.PageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := pageText(page, fonts)
		if err != nil {
			result.Skipped = append(result.Skipped, i)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if total+len(text) > maxTextBytes {
			result.Truncated = true
			break
		}
		total += len(text)
		result.Pages = append(result.Pages, text)
	}

	return result, nil
}

// pageText reads one page. A malformed page yields an error instead of
// failing the whole document.
func pageText(page pdf.Page, fonts map[string]*pdf.Font) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("panic during page parsing: %v", r)
		}
	}()

	for _, name := range page.Fonts() {
		if _, ok := fonts[name]; !ok {
			f := page.Font(name)
			fonts[name] = &f
		}
	}
	return page.GetPlainText(fonts)
}

func (e *Extractor) extractPDF(doc Document) (*Extraction, error) {
	parsed, err := readPDF(doc.Data)
	if err != nil {
		return nil, newError(ErrCorruptDocument, FormatPDF, "unreadable PDF", err)
	}

	out := &Extraction{
		Format:    FormatPDF,
		Text:      strings.TrimSpace(strings.Join(parsed.Pages, "\n")),
		PageCount: parsed.PageCount,
	}
	if out.Text == "" {
		out.addDiagnostic("PDF contains no extractable text; scanned PDFs are not supported")
	}
	for _, n := range parsed.Skipped {
		e.logger.Warn("skipping unreadable PDF page",
			zap.String("document", doc.Name), zap.Int("page", n))
		out.addDiagnostic(fmt.Sprintf("page %d could not be read and was skipped", n))
	}
	if parsed.Truncated {
		out.addDiagnostic(fmt.Sprintf("PDF text truncated at %d bytes", maxTextBytes))
	}
	return out, nil
}
