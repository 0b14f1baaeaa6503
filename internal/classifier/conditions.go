// Package classifier derives health conditions from report text and a risk
// label from the numeric feature record.
package classifier

import (
	"encoding/json"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// Condition is a detected health condition tag.
type Condition string

const (
	Diabetes        Condition = "Diabetes"
	HighCholesterol Condition = "High Cholesterol"
	Hypertension    Condition = "Hypertension"
	GeneralHealth   Condition = "General Health"
)

// precedence is the fixed display order of specific conditions.
var precedence = []Condition{Diabetes, HighCholesterol, Hypertension}

// conditionKeywords maps lower-case keywords to the condition they indicate.
var conditionKeywords = []struct {
	keyword   string
	condition Condition
}{
	{"diabetes", Diabetes},
	{"cholesterol", HighCholesterol},
	{"blood pressure", Hypertension},
	{"hypertension", Hypertension},
}

// ConditionSet is an ordered set of conditions. It is never empty:
// GeneralHealth stands alone when no specific condition matched.
type ConditionSet struct {
	items []Condition
}

// NewConditionSet builds a set from arbitrary tags, applying precedence order
// and the GeneralHealth fallback.
func NewConditionSet(found ...Condition) ConditionSet {
	seen := make(map[Condition]bool, len(found))
	for _, c := range found {
		seen[c] = true
	}
	var items []Condition
	for _, c := range precedence {
		if seen[c] {
			items = append(items, c)
		}
	}
	if len(items) == 0 {
		items = []Condition{GeneralHealth}
	}
	return ConditionSet{items: items}
}

// Has reports whether c is in the set.
func (s ConditionSet) Has(c Condition) bool {
	for _, item := range s.items {
		if item == c {
			return true
		}
	}
	return false
}

// Conditions returns the tags in precedence order.
func (s ConditionSet) Conditions() []Condition {
	if len(s.items) == 0 {
		return []Condition{GeneralHealth}
	}
	return append([]Condition(nil), s.items...)
}

// Strings returns the display names in precedence order.
func (s ConditionSet) Strings() []string {
	items := s.Conditions()
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = string(c)
	}
	return out
}

// General reports whether no specific condition was detected.
func (s ConditionSet) General() bool {
	return len(s.items) == 0 || (len(s.items) == 1 && s.items[0] == GeneralHealth)
}

func (s ConditionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

func (s *ConditionSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	found := make([]Condition, len(names))
	for i, n := range names {
		found[i] = Condition(n)
	}
	*s = NewConditionSet(found...)
	return nil
}

// ConditionDetector finds condition keywords in a single pass over the text.
type ConditionDetector struct {
	matcher *ahocorasick.Matcher
}

// NewConditionDetector builds the keyword automaton.
func NewConditionDetector() *ConditionDetector {
	keywords := make([]string, len(conditionKeywords))
	for i, kw := range conditionKeywords {
		keywords[i] = kw.keyword
	}
	return &ConditionDetector{matcher: ahocorasick.NewStringMatcher(keywords)}
}

// Detect lower-cases text once and returns every matched condition.
// Whitespace runs are collapsed first so a wrapped "blood\npressure" matches.
func (d *ConditionDetector) Detect(text string) ConditionSet {
	lower := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	hits := d.matcher.MatchThreadSafe([]byte(lower))

	found := make([]Condition, 0, len(hits))
	for _, idx := range hits {
		found = append(found, conditionKeywords[idx].condition)
	}
	return NewConditionSet(found...)
}
