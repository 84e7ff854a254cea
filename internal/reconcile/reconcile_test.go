package reconcile

import (
	"errors"
	"testing"
)

func TestToUnitsAndBack(t *testing.T) {
	cases := []struct {
		packages        int
		pillsPerPackage int
		wantUnits       int
	}{
		{3, 10, 30},
		{0, 10, 0},
		{5, 1, 5},
		{-2, 10, 0},
		{4, 0, 4},
	}

	for _, tc := range cases {
		units := ToUnits(tc.packages, tc.pillsPerPackage)
		if units != tc.wantUnits {
			t.Fatalf("ToUnits(%d, %d) = %d, want %d", tc.packages, tc.pillsPerPackage, units, tc.wantUnits)
		}
	}
}

func TestToPackagesRoundTrip(t *testing.T) {
	for packages := 0; packages <= 12; packages++ {
		for factor := 1; factor <= 30; factor++ {
			back := ToPackages(ToUnits(packages, factor), factor)
			if back != packages {
				t.Fatalf("round trip failed: packages=%d factor=%d got %d", packages, factor, back)
			}
		}
	}
}

func TestToPackagesDiscardsRemainder(t *testing.T) {
	if got := ToPackages(35, 10); got != 3 {
		t.Fatalf("expected 3 packages from 35 units, got %d", got)
	}
}

func TestReconcileLine(t *testing.T) {
	result := ReconcileLine(LineItem{TotalGiven: 30, Remaining: 12, UnitPrice: 1200})
	if result.Sold != 18 {
		t.Fatalf("expected sold 18, got %d", result.Sold)
	}
	if result.SoldValue != 21600 {
		t.Fatalf("expected sold value 21600, got %d", result.SoldValue)
	}
	if result.RemainingValue != 14400 {
		t.Fatalf("expected remaining value 14400, got %d", result.RemainingValue)
	}
	if result.Clamped {
		t.Fatalf("did not expect clamp for consistent line")
	}
}

func TestReconcileLineClampsInconsistentData(t *testing.T) {
	result := ReconcileLine(LineItem{TotalGiven: 5, Remaining: 8, UnitPrice: 100})
	if !result.Clamped {
		t.Fatalf("expected clamp when remaining exceeds total given")
	}
	if result.Sold != 0 || result.SoldValue != 0 {
		t.Fatalf("expected sold clamped to zero, got %d (%d)", result.Sold, result.SoldValue)
	}
}

func TestReconcileLineSoldStaysInRange(t *testing.T) {
	for given := 0; given <= 20; given++ {
		for remaining := 0; remaining <= given; remaining++ {
			result := ReconcileLine(LineItem{TotalGiven: given, Remaining: remaining, UnitPrice: 7})
			if result.Sold < 0 || result.Sold > given {
				t.Fatalf("sold out of range: given=%d remaining=%d sold=%d", given, remaining, result.Sold)
			}
		}
	}
}

func TestSummarizeRemainingValueExample(t *testing.T) {
	// 3 packages x 10 pills at 1200 per pill, nothing sold yet.
	units := ToUnits(3, 10)
	if units != 30 {
		t.Fatalf("expected 30 units, got %d", units)
	}
	summary := Summarize([]LineItem{{TotalGiven: units, Remaining: units, UnitPrice: 1200}})
	if summary.RemainingValue != 36000 {
		t.Fatalf("expected remaining value 36000, got %d", summary.RemainingValue)
	}
	if summary.Sold != 0 {
		t.Fatalf("expected nothing sold, got %d", summary.Sold)
	}
}

func TestSummarizeDerivesSoldFromTotals(t *testing.T) {
	summary := Summarize([]LineItem{
		{TotalGiven: 30, Remaining: 10, UnitPrice: 1200},
		{TotalGiven: 20, Remaining: 20, UnitPrice: 1500},
	})
	if summary.TotalGiven != 50 || summary.Remaining != 30 {
		t.Fatalf("unexpected totals: given=%d remaining=%d", summary.TotalGiven, summary.Remaining)
	}
	if summary.Sold != 20 {
		t.Fatalf("expected aggregate sold 20, got %d", summary.Sold)
	}
	if summary.SoldValue != 24000 {
		t.Fatalf("expected sold value 24000, got %d", summary.SoldValue)
	}
}

func TestRemainingDebtFloorsAtZero(t *testing.T) {
	if got := RemainingDebt(500000, 200000); got != 300000 {
		t.Fatalf("expected 300000, got %d", got)
	}
	if got := RemainingDebt(100000, 150000); got != 0 {
		t.Fatalf("expected overpaid debt to floor at 0, got %d", got)
	}
}

func TestClampPayment(t *testing.T) {
	cases := []struct {
		amount  int64
		debt    int64
		want    int64
		wantErr bool
	}{
		{500000, 500000, 500000, false},
		{1, 500000, 1, false},
		{600000, 500000, 0, true},
		{0, 500000, 0, true},
		{-100, 500000, 0, true},
		{1, 0, 0, true},
	}

	for _, tc := range cases {
		got, err := ClampPayment(tc.amount, tc.debt)
		if tc.wantErr {
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ClampPayment(%d, %d): expected ErrValidation, got %v", tc.amount, tc.debt, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ClampPayment(%d, %d) failed: %v", tc.amount, tc.debt, err)
		}
		if got != tc.want {
			t.Fatalf("ClampPayment(%d, %d) = %d, want %d", tc.amount, tc.debt, got, tc.want)
		}
	}
}
