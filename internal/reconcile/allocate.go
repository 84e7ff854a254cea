package reconcile

import (
	"sort"
	"time"
)

// ReturnLine is one receipt line eligible for allocation, identified by its
// line id and ordered by the creation time of the receipt it belongs to.
type ReturnLine struct {
	LineID    string
	ReceiptID string
	CreatedAt time.Time
	Remaining int
	UnitPrice int64
}

type Allocation struct {
	LineID    string
	ReceiptID string
	Qty       int
	Value     int64
}

type Plan struct {
	Allocations []Allocation
	Qty         int
	Value       int64
}

// PlanReturn distributes qty across the given receipt lines oldest-first,
// never taking more than a line's current remaining. Ties in creation time
// break by receipt id ascending, then line id, so the plan is deterministic
// for any input order. If the lines cannot cover qty the whole plan fails
// with ErrInsufficientStock and nothing is allocated. The same planner
// drives sales: both flows consume shelf stock oldest-first.
func PlanReturn(qty int, lines []ReturnLine) (Plan, error) {
	if qty <= 0 {
		return Plan{}, ErrValidation
	}

	ordered := make([]ReturnLine, len(lines))
	copy(ordered, lines)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		if ordered[i].ReceiptID != ordered[j].ReceiptID {
			return ordered[i].ReceiptID < ordered[j].ReceiptID
		}
		return ordered[i].LineID < ordered[j].LineID
	})

	plan := Plan{Allocations: make([]Allocation, 0, len(ordered))}
	left := qty
	for _, line := range ordered {
		if left == 0 {
			break
		}
		if line.Remaining < 1 {
			continue
		}
		take := left
		if take > line.Remaining {
			take = line.Remaining
		}
		value := int64(take) * line.UnitPrice
		plan.Allocations = append(plan.Allocations, Allocation{
			LineID:    line.LineID,
			ReceiptID: line.ReceiptID,
			Qty:       take,
			Value:     value,
		})
		plan.Qty += take
		plan.Value += value
		left -= take
	}

	if left > 0 {
		return Plan{}, ErrInsufficientStock
	}
	return plan, nil
}
