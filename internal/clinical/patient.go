package clinical

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxNameLen = 60

var nameLine = regexp.MustCompile(`(?i)^\s*(?:patient(?:'s)?\s+)?name\s*[:\-]\s*([A-Za-z][A-Za-z .'\-]*)`)

// Patient holds identifying details shown on the report.
type Patient struct {
	Name string `json:"name,omitempty"`
}

// ParsePatient finds a "Name:" or "Patient Name:" line and title-cases the
// value. The name is empty when no such line exists.
func ParsePatient(text string) Patient {
	for _, line := range strings.Split(text, "\n") {
		m := nameLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if name := formatName(m[1]); name != "" {
			return Patient{Name: name}
		}
	}
	return Patient{}
}

func formatName(raw string) string {
	words := strings.Fields(strings.Trim(raw, " .-'"))
	caser := cases.Title(language.English)
	for i, w := range words {
		words[i] = caser.String(strings.ToLower(w))
	}
	name := strings.Join(words, " ")
	if len(name) > maxNameLen {
		name = strings.TrimSpace(name[:maxNameLen])
	}
	return name
}
