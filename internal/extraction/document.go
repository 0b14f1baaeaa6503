// Package extraction normalises uploaded medical documents (PDF, image, plain
// text, CSV) into trimmed text plus an optional numeric record.
package extraction

import (
	"path/filepath"
	"strings"
)

// Format is a supported document format.
type Format string

const (
	FormatPDF   Format = "pdf"
	FormatImage Format = "image"
	FormatText  Format = "text"
	FormatCSV   Format = "csv"
)

var formatsByExtension = map[string]Format{
	"pdf":  FormatPDF,
	"png":  FormatImage,
	"jpg":  FormatImage,
	"jpeg": FormatImage,
	"txt":  FormatText,
	"csv":  FormatCSV,
}

// Document is an uploaded file. It is not modified by extraction.
type Document struct {
	Name      string
	Extension string // declared extension; falls back to Name's suffix when empty
	Data      []byte
}

// Ext returns the lower-case extension without the leading dot.
func (d Document) Ext() string {
	ext := d.Extension
	if ext == "" {
		ext = filepath.Ext(d.Name)
	}
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// DetectFormat maps the document's extension to a Format.
func DetectFormat(d Document) (Format, error) {
	ext := d.Ext()
	f, ok := formatsByExtension[ext]
	if !ok {
		msg := "unsupported file extension"
		if ext != "" {
			msg += " ." + ext
		}
		return "", newError(ErrUnsupportedFormat, "", msg+"; expected pdf, png, jpg, jpeg, txt or csv", nil)
	}
	return f, nil
}

// Extraction is the normalised output of a document.
type Extraction struct {
	Format      Format
	Text        string
	Record      map[string]float64 // numeric cells of the first CSV row; nil otherwise
	Diagnostics []string
	PageCount   int
}

func (e *Extraction) addDiagnostic(msg string) {
	e.Diagnostics = append(e.Diagnostics, msg)
}
