package diet

import (
	"fmt"
	"strings"
)

var slotLabels = map[MealSlot]string{
	Breakfast: "Breakfast",
	Lunch:     "Lunch",
	Snack:     "Snack",
	Dinner:    "Dinner",
}

// RenderText lays a plan out as "Day N:" blocks separated by blank lines.
func RenderText(plan WeeklyPlan) string {
	var b strings.Builder
	for i, day := range plan {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Day %d:", i+1)
		for _, slot := range Slots {
			fmt.Fprintf(&b, "\n%s: %s", slotLabels[slot], day.Meal(slot))
		}
	}
	return b.String()
}
