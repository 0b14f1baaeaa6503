package extraction

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	xunicode "golang.org/x/text/encoding/unicode"
)

// PrescriptionColumn is the normalised name of the free-text CSV column.
const PrescriptionColumn = "doctor_prescription"

var prescriptionAliases = map[string]bool{
	PrescriptionColumn:     true,
	"doctors_prescription": true,
	"prescription":         true,
}

// NormalizeColumn lower-cases a header and folds spaces and hyphens to
// underscores, dropping possessives and apostrophes
// ("Doctor's Prescription" -> "doctor_prescription").
func NormalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer("'s", "", "’s", "", "'", "", "’", "", "-", "_", " ", "_").Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return strings.Trim(name, "_")
}

// decodeUTF8 validates data as UTF-8 and strips a leading byte order mark.
func decodeUTF8(data []byte, format Format) (string, error) {
	if !utf8.Valid(data) {
		return "", newError(ErrEncoding, format, "document is not valid UTF-8", nil)
	}
	decoded, err := xunicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		return "", newError(ErrEncoding, format, "decode UTF-8", err)
	}
	return string(decoded), nil
}

func (e *Extractor) extractText(doc Document) (*Extraction, error) {
	text, err := decodeUTF8(doc.Data, FormatText)
	if err != nil {
		return nil, err
	}
	out := &Extraction{Format: FormatText, Text: strings.TrimSpace(text), PageCount: 1}
	if out.Text == "" {
		out.addDiagnostic("text document is empty")
	}
	return out, nil
}

func (e *Extractor) extractCSV(doc Document) (*Extraction, error) {
	text, err := decodeUTF8(doc.Data, FormatCSV)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	out := &Extraction{Format: FormatCSV, PageCount: 1}

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		out.addDiagnostic("CSV file is empty")
		return out, nil
	}
	if err != nil {
		return nil, newError(ErrCorruptDocument, FormatCSV, "malformed CSV header", err)
	}

	row, err := r.Read()
	if errors.Is(err, io.EOF) {
		out.addDiagnostic("CSV file has no data rows")
		return out, nil
	}
	if err != nil {
		return nil, newError(ErrCorruptDocument, FormatCSV, "malformed CSV row", err)
	}

	textFound := false
	record := make(map[string]float64)
	for i, raw := range header {
		col := NormalizeColumn(raw)
		if col == "" || i >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[i])

		if prescriptionAliases[col] {
			if !textFound {
				out.Text = cell
				textFound = true
			}
			continue
		}

		v, err := strconv.ParseFloat(cell, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if _, dup := record[col]; !dup {
			record[col] = v
		}
	}

	if !textFound {
		out.addDiagnostic(fmt.Sprintf("CSV file does not contain '%s' column.", PrescriptionColumn))
	}
	if len(record) > 0 {
		out.Record = record
	}
	out.Text = strings.TrimSpace(out.Text)
	return out, nil
}
