package clinical

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// number matches the first numeric token after a label.
const number = `(\d+(?:\.\d+)?)`

// gap is the run allowed between a label and its value. Dot leaders, dotted
// abbreviations and a dot right before the value pass; a dot followed by a
// space and more words ends the sentence.
const gap = `(?:[^\d.!?;]|\.{2,}|\.[^\s\d.!?;]){0,64}?(?:\.\s?)?`

// fieldPatterns lists synonyms per field in priority order; the first
// pattern that matches wins.
var fieldPatterns = []struct {
	field    Field
	patterns []*regexp.Regexp
}{
	{FieldAge, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bage[:\- ]+(\d{1,3})\b`),
	}},
	{FieldGlucose, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bglucose` + gap + number),
		regexp.MustCompile(`(?i)\bblood sugar` + gap + number),
	}},
	{FieldCholesterol, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bcholesterol` + gap + number),
	}},
	{FieldBloodPressure, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bbp\b` + gap + number),
		regexp.MustCompile(`(?i)\bblood pressure` + gap + number),
	}},
	{FieldBMI, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bbmi[:\- ]*` + number),
	}},
}

// Normalize applies NFKC and collapses whitespace runs to single spaces so
// labels wrapped across lines still match.
func Normalize(text string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(text)), " ")
}

// Parse extracts the clinical features found in text. Fields without a match
// are absent; values are not range checked.
func Parse(text string) FeatureRecord {
	clean := Normalize(text)

	var rec FeatureRecord
	if clean == "" {
		return rec
	}
	for _, fp := range fieldPatterns {
		for _, re := range fp.patterns {
			m := re.FindStringSubmatch(clean)
			if m == nil {
				continue
			}
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			rec.Set(fp.field, Of(v))
			break
		}
	}
	return rec
}
