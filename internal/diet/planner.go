package diet

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// DaysPerWeek is the length of every plan.
const DaysPerWeek = 7

// ErrUnknownGroup is returned when the catalog has no menus for a group.
var ErrUnknownGroup = errors.New("unknown menu group")

// DayPlan is one day of meals.
type DayPlan struct {
	Breakfast string `json:"breakfast"`
	Lunch     string `json:"lunch"`
	Snack     string `json:"snack"`
	Dinner    string `json:"dinner"`
}

func (d *DayPlan) set(slot MealSlot, item string) {
	switch slot {
	case Breakfast:
		d.Breakfast = item
	case Lunch:
		d.Lunch = item
	case Snack:
		d.Snack = item
	case Dinner:
		d.Dinner = item
	}
}

// Meal returns the item served at slot.
func (d DayPlan) Meal(slot MealSlot) string {
	switch slot {
	case Breakfast:
		return d.Breakfast
	case Lunch:
		return d.Lunch
	case Snack:
		return d.Snack
	case Dinner:
		return d.Dinner
	}
	return ""
}

// WeeklyPlan is Day 1 through Day 7 in order.
type WeeklyPlan [DaysPerWeek]DayPlan

// RandFactory returns a fresh generator for one planning call.
type RandFactory func() *rand.Rand

// NewPCG returns a PCG generator seeded from the runtime source.
func NewPCG() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Seeded returns a factory whose generators all start from seed.
func Seeded(seed uint64) RandFactory {
	return func() *rand.Rand {
		return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// Planner builds weekly plans from a catalog. It holds no per-call state
// and is safe for concurrent use.
type Planner struct {
	catalog *Catalog
	newRand RandFactory
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithRandFactory replaces the per-call generator source.
func WithRandFactory(f RandFactory) PlannerOption {
	return func(p *Planner) {
		if f != nil {
			p.newRand = f
		}
	}
}

// NewPlanner creates a planner over catalog.
func NewPlanner(catalog *Catalog, opts ...PlannerOption) *Planner {
	p := &Planner{catalog: catalog, newRand: NewPCG}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Catalog returns the planner's catalog.
func (p *Planner) Catalog() *Catalog {
	return p.catalog
}

// Plan builds a week using a fresh generator.
func (p *Planner) Plan(group MenuGroup, pref Preference) (WeeklyPlan, error) {
	return p.PlanWith(p.newRand(), group, pref)
}

// PlanWith builds a week drawing all randomness from rng. One variant is
// chosen for the whole week; each slot's candidates are shuffled once and
// dealt round-robin, so every candidate appears before any repeats.
func (p *Planner) PlanWith(rng *rand.Rand, group MenuGroup, pref Preference) (WeeklyPlan, error) {
	var week WeeklyPlan
	if !pref.Valid() {
		return week, fmt.Errorf("%w: %q", ErrUnknownPreference, pref)
	}
	variants := p.catalog.Variants(group, pref)
	if len(variants) == 0 {
		return week, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}

	menu := variants[rng.IntN(len(variants))]
	for _, slot := range Slots {
		items := append([]string(nil), menu[slot]...)
		rng.Shuffle(len(items), func(i, j int) {
			items[i], items[j] = items[j], items[i]
		})
		for day := range week {
			week[day].set(slot, items[day%len(items)])
		}
	}
	return week, nil
}
