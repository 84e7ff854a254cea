package reconcile

import (
	"errors"
	"testing"
	"time"
)

func planLines() []ReturnLine {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return []ReturnLine{
		{LineID: "line-b", ReceiptID: "rcpt-2", CreatedAt: base.Add(48 * time.Hour), Remaining: 3, UnitPrice: 1200},
		{LineID: "line-a", ReceiptID: "rcpt-1", CreatedAt: base, Remaining: 5, UnitPrice: 1000},
	}
}

func TestPlanReturnOldestFirst(t *testing.T) {
	plan, err := PlanReturn(7, planLines())
	if err != nil {
		t.Fatalf("PlanReturn failed: %v", err)
	}
	if len(plan.Allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(plan.Allocations))
	}
	first, second := plan.Allocations[0], plan.Allocations[1]
	if first.LineID != "line-a" || first.Qty != 5 {
		t.Fatalf("expected oldest line drained first, got %+v", first)
	}
	if second.LineID != "line-b" || second.Qty != 2 {
		t.Fatalf("expected 2 units from newer line, got %+v", second)
	}
	if plan.Qty != 7 {
		t.Fatalf("expected plan qty 7, got %d", plan.Qty)
	}
	if plan.Value != 5*1000+2*1200 {
		t.Fatalf("unexpected plan value %d", plan.Value)
	}
}

func TestPlanReturnInsufficientStock(t *testing.T) {
	_, err := PlanReturn(10, planLines())
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestPlanReturnRejectsNonPositiveQty(t *testing.T) {
	for _, qty := range []int{0, -4} {
		if _, err := PlanReturn(qty, planLines()); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for qty %d, got %v", qty, err)
		}
	}
}

func TestPlanReturnTieBrokenByReceiptID(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	lines := []ReturnLine{
		{LineID: "line-1", ReceiptID: "rcpt-b", CreatedAt: at, Remaining: 4, UnitPrice: 500},
		{LineID: "line-2", ReceiptID: "rcpt-a", CreatedAt: at, Remaining: 4, UnitPrice: 500},
	}
	plan, err := PlanReturn(5, lines)
	if err != nil {
		t.Fatalf("PlanReturn failed: %v", err)
	}
	if plan.Allocations[0].ReceiptID != "rcpt-a" {
		t.Fatalf("expected lowest receipt id first on equal timestamps, got %s", plan.Allocations[0].ReceiptID)
	}
	if plan.Allocations[1].ReceiptID != "rcpt-b" || plan.Allocations[1].Qty != 1 {
		t.Fatalf("expected remainder from rcpt-b, got %+v", plan.Allocations[1])
	}
}

func TestPlanReturnSameReceiptTieBrokenByLineID(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	lines := []ReturnLine{
		{LineID: "line-9", ReceiptID: "rcpt-1", CreatedAt: at, Remaining: 4, UnitPrice: 500},
		{LineID: "line-1", ReceiptID: "rcpt-1", CreatedAt: at, Remaining: 4, UnitPrice: 500},
	}
	plan, err := PlanReturn(5, lines)
	if err != nil {
		t.Fatalf("PlanReturn failed: %v", err)
	}
	if plan.Allocations[0].LineID != "line-1" {
		t.Fatalf("expected lowest line id first within one receipt, got %s", plan.Allocations[0].LineID)
	}
}

func TestPlanReturnSkipsEmptyLines(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	lines := []ReturnLine{
		{LineID: "line-1", ReceiptID: "rcpt-1", CreatedAt: at, Remaining: 0, UnitPrice: 500},
		{LineID: "line-2", ReceiptID: "rcpt-2", CreatedAt: at.Add(time.Hour), Remaining: 6, UnitPrice: 700},
	}
	plan, err := PlanReturn(6, lines)
	if err != nil {
		t.Fatalf("PlanReturn failed: %v", err)
	}
	if len(plan.Allocations) != 1 || plan.Allocations[0].LineID != "line-2" {
		t.Fatalf("expected empty line skipped, got %+v", plan.Allocations)
	}
}

func TestPlanReturnDoesNotMutateInput(t *testing.T) {
	lines := planLines()
	if _, err := PlanReturn(7, lines); err != nil {
		t.Fatalf("PlanReturn failed: %v", err)
	}
	if lines[0].LineID != "line-b" || lines[0].Remaining != 3 {
		t.Fatalf("input slice was mutated: %+v", lines[0])
	}
}
