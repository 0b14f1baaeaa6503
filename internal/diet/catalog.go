package diet

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// MealSlot is one meal of the day.
type MealSlot string

const (
	Breakfast MealSlot = "breakfast"
	Lunch     MealSlot = "lunch"
	Snack     MealSlot = "snack"
	Dinner    MealSlot = "dinner"
)

// Slots lists the meals of a day in serving order.
var Slots = []MealSlot{Breakfast, Lunch, Snack, Dinner}

// Tag marks an entry that needs a substitute for some preferences.
type Tag string

const (
	// TagNonVeg marks meat or fish; the vegetarian alternative replaces it.
	TagNonVeg Tag = "nv"
	// TagDairy marks dairy; the vegan alternative replaces it.
	TagDairy Tag = "dairy"
)

// Entry is one catalog item with its substitutes.
type Entry struct {
	Item       string `yaml:"item"`
	Vegetarian string `yaml:"vegetarian,omitempty"`
	Vegan      string `yaml:"vegan,omitempty"`
	Tags       []Tag  `yaml:"tags,omitempty"`
}

// UnmarshalYAML accepts a bare string as an untagged entry.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*e = Entry{Item: node.Value}
		return nil
	}
	type plain Entry
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = Entry(p)
	return nil
}

func (e Entry) has(t Tag) bool {
	for _, tag := range e.Tags {
		if tag == t {
			return true
		}
	}
	return false
}

func (e Entry) validate() error {
	if strings.TrimSpace(e.Item) == "" {
		return errors.New("empty item")
	}
	for _, tag := range e.Tags {
		if tag != TagNonVeg && tag != TagDairy {
			return fmt.Errorf("%q: unknown tag %q", e.Item, tag)
		}
	}
	if e.has(TagNonVeg) != (e.Vegetarian != "") {
		return fmt.Errorf("%q: nv tag and vegetarian alternative must come together", e.Item)
	}
	if e.has(TagDairy) != (e.Vegan != "") {
		return fmt.Errorf("%q: dairy tag and vegan alternative must come together", e.Item)
	}
	return nil
}

// Resolve returns the display string for a preference. Vegan falls back to
// the vegetarian alternative, then the item.
func (e Entry) Resolve(pref Preference) string {
	switch pref {
	case Vegan:
		if e.Vegan != "" {
			return e.Vegan
		}
		fallthrough
	case Vegetarian:
		if e.Vegetarian != "" {
			return e.Vegetarian
		}
	}
	return e.Item
}

// Menu is one resolved variant: candidate items per slot. Catalog menus are
// shared and must not be modified.
type Menu map[MealSlot][]string

type variantDoc map[MealSlot][]Entry

type catalogDoc struct {
	Version string                  `yaml:"version"`
	Menus   map[string][]variantDoc `yaml:"menus"`
}

// Catalog holds every variant resolved for every preference.
type Catalog struct {
	version string
	menus   map[MenuGroup]map[Preference][]Menu
}

// ParseCatalog decodes and validates a catalog document, resolving
// substitutions for all preferences up front.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if strings.TrimSpace(doc.Version) == "" {
		return nil, errors.New("catalog has no version")
	}

	known := make(map[string]MenuGroup, len(MenuGroups))
	for _, g := range MenuGroups {
		known[g.key()] = g
	}
	for key := range doc.Menus {
		if _, ok := known[key]; !ok {
			return nil, fmt.Errorf("catalog: unknown menu group %q", key)
		}
	}

	c := &Catalog{version: doc.Version, menus: make(map[MenuGroup]map[Preference][]Menu, len(MenuGroups))}
	for _, group := range MenuGroups {
		variants := doc.Menus[group.key()]
		if len(variants) == 0 {
			return nil, fmt.Errorf("catalog: menu group %q has no variants", group.key())
		}
		byPref := make(map[Preference][]Menu, len(Preferences))
		for i, variant := range variants {
			if err := validateVariant(variant); err != nil {
				return nil, fmt.Errorf("catalog: %s variant %d: %w", group.key(), i+1, err)
			}
			for _, pref := range Preferences {
				byPref[pref] = append(byPref[pref], resolveVariant(variant, pref))
			}
		}
		c.menus[group] = byPref
	}
	return c, nil
}

func validateVariant(v variantDoc) error {
	for slot := range v {
		if !validSlot(slot) {
			return fmt.Errorf("unknown slot %q", slot)
		}
	}
	for _, slot := range Slots {
		entries := v[slot]
		if len(entries) == 0 {
			return fmt.Errorf("slot %s is empty", slot)
		}
		for _, e := range entries {
			if err := e.validate(); err != nil {
				return fmt.Errorf("slot %s: %w", slot, err)
			}
		}
	}
	return nil
}

func resolveVariant(v variantDoc, pref Preference) Menu {
	m := make(Menu, len(Slots))
	for _, slot := range Slots {
		items := make([]string, len(v[slot]))
		for i, e := range v[slot] {
			items[i] = e.Resolve(pref)
		}
		m[slot] = items
	}
	return m
}

func validSlot(s MealSlot) bool {
	for _, slot := range Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// Version identifies the catalog content.
func (c *Catalog) Version() string {
	return c.version
}

// Variants returns the resolved variants of a group for a preference.
func (c *Catalog) Variants(group MenuGroup, pref Preference) []Menu {
	return c.menus[group][pref]
}

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
})

// DefaultCatalog returns the embedded catalog, parsed on first use.
func DefaultCatalog() (*Catalog, error) {
	return defaultCatalog()
}
