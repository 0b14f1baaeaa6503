// Package diet turns detected conditions into a diet policy and a seven day
// meal plan drawn from an embedded, versioned catalog.
package diet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/castlemilk/dietplanner/internal/classifier"
)

// MenuGroup selects the catalog section a plan is drawn from.
type MenuGroup string

const (
	GroupBoth        MenuGroup = "Both"
	GroupDiabetes    MenuGroup = "Diabetes"
	GroupCholesterol MenuGroup = "Cholesterol"
	GroupGeneral     MenuGroup = "General"
)

// MenuGroups lists every group.
var MenuGroups = []MenuGroup{GroupDiabetes, GroupCholesterol, GroupBoth, GroupGeneral}

// Valid reports whether g is a known group.
func (g MenuGroup) Valid() bool {
	for _, known := range MenuGroups {
		if g == known {
			return true
		}
	}
	return false
}

func (g MenuGroup) key() string {
	return strings.ToLower(string(g))
}

// Preference is the user's dietary constraint.
type Preference string

const (
	Vegetarian    Preference = "Vegetarian"
	Vegan         Preference = "Vegan"
	NonVegetarian Preference = "NonVegetarian"
)

// DefaultPreference applies when no preference is given.
const DefaultPreference = Vegetarian

// Preferences lists every preference.
var Preferences = []Preference{Vegetarian, Vegan, NonVegetarian}

// ErrUnknownPreference is returned for unrecognised preference names.
var ErrUnknownPreference = errors.New("unknown dietary preference")

// Valid reports whether p is a known preference.
func (p Preference) Valid() bool {
	return p == Vegetarian || p == Vegan || p == NonVegetarian
}

// ParsePreference accepts the canonical names and the short forms used by
// form inputs ("veg", "non-veg", "Non-Vegetarian"). Empty means the default.
func ParsePreference(s string) (Preference, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(key)
	switch key {
	case "":
		return DefaultPreference, nil
	case "vegetarian", "veg":
		return Vegetarian, nil
	case "vegan":
		return Vegan, nil
	case "nonvegetarian", "nonveg":
		return NonVegetarian, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPreference, s)
}

// BaseAllowedFoods never varies with conditions.
var BaseAllowedFoods = []string{"vegetables", "whole grains", "fruits"}

// conditionRules holds what each condition adds to a policy, in detection order.
var conditionRules = []struct {
	condition  classifier.Condition
	restricted string
	diet       string
	lifestyle  string
}{
	{classifier.Diabetes, "sugar", "Follow a diabetic-friendly low sugar diet.", "Walk daily for 30 minutes."},
	{classifier.HighCholesterol, "oily food", "Increase fiber intake and avoid fried foods.", ""},
	{classifier.Hypertension, "salt", "Reduce sodium intake.", "Practice stress management."},
}

const (
	generalDietAdvice      = "Maintain a balanced diet."
	generalLifestyleAdvice = "Stay active and hydrated."
)

// Policy is the resolved diet guidance for one analysis.
type Policy struct {
	Group           MenuGroup  `json:"menu_group"`
	Preference      Preference `json:"dietary_preference"`
	AllowedFoods    []string   `json:"allowed_foods"`
	RestrictedFoods []string   `json:"restricted_foods"`
	DietAdvice      []string   `json:"diet_advice"`
	LifestyleAdvice []string   `json:"lifestyle_advice"`
}

// DietAdviceText joins the diet sentences with single spaces.
func (p Policy) DietAdviceText() string {
	return strings.Join(p.DietAdvice, " ")
}

// LifestyleAdviceText joins the lifestyle sentences with single spaces.
func (p Policy) LifestyleAdviceText() string {
	return strings.Join(p.LifestyleAdvice, " ")
}

// GroupFor derives the menu group. Hypertension never forms its own group.
func GroupFor(conditions classifier.ConditionSet) MenuGroup {
	diabetes := conditions.Has(classifier.Diabetes)
	cholesterol := conditions.Has(classifier.HighCholesterol)
	switch {
	case diabetes && cholesterol:
		return GroupBoth
	case diabetes:
		return GroupDiabetes
	case cholesterol:
		return GroupCholesterol
	default:
		return GroupGeneral
	}
}

// Resolve maps conditions and a preference to a Policy.
func Resolve(conditions classifier.ConditionSet, pref Preference) Policy {
	p := Policy{
		Group:           GroupFor(conditions),
		Preference:      pref,
		AllowedFoods:    append([]string(nil), BaseAllowedFoods...),
		RestrictedFoods: []string{},
		DietAdvice:      []string{},
		LifestyleAdvice: []string{},
	}

	for _, rule := range conditionRules {
		if !conditions.Has(rule.condition) {
			continue
		}
		p.RestrictedFoods = appendUnique(p.RestrictedFoods, rule.restricted)
		p.DietAdvice = appendUnique(p.DietAdvice, rule.diet)
		if rule.lifestyle != "" {
			p.LifestyleAdvice = appendUnique(p.LifestyleAdvice, rule.lifestyle)
		}
	}

	if conditions.General() {
		p.DietAdvice = append(p.DietAdvice, generalDietAdvice)
		p.LifestyleAdvice = append(p.LifestyleAdvice, generalLifestyleAdvice)
	}
	return p
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
