// Package reconcile implements the stock and debt arithmetic shared by the
// intake, sale, return and payment flows. It is pure: no storage, no I/O.
package reconcile

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ToUnits converts a package count to single units using the product's
// pills-per-package factor. Piece-based (dona) products carry a factor of 1;
// anything below 1 is treated as 1. Negative quantities clamp to zero.
func ToUnits(packages int, pillsPerPackage int) int {
	if packages < 0 {
		packages = 0
	}
	if pillsPerPackage < 1 {
		pillsPerPackage = 1
	}
	return packages * pillsPerPackage
}

// ToPackages converts a unit count back to whole packages, discarding any
// remainder.
func ToPackages(units int, pillsPerPackage int) int {
	if units < 0 {
		units = 0
	}
	if pillsPerPackage < 1 {
		pillsPerPackage = 1
	}
	return units / pillsPerPackage
}

// LineItem is one receipt line for a single product: how many units were
// originally given to the outlet, how many are still on its shelf, and the
// unit price snapshotted at intake.
type LineItem struct {
	TotalGiven int
	Remaining  int
	UnitPrice  int64
}

type LineResult struct {
	Sold           int
	SoldValue      int64
	RemainingValue int64
	// Clamped reports that Remaining exceeded TotalGiven and Sold was
	// clamped to zero. The caller logs it; it is not an error.
	Clamped bool
}

// ReconcileLine derives sold units and monetary values for one line.
func ReconcileLine(item LineItem) LineResult {
	result := LineResult{
		RemainingValue: int64(item.Remaining) * item.UnitPrice,
	}
	if item.Remaining > item.TotalGiven {
		result.Clamped = true
		return result
	}
	result.Sold = item.TotalGiven - item.Remaining
	result.SoldValue = int64(result.Sold) * item.UnitPrice
	return result
}

type Summary struct {
	TotalGiven     int
	Remaining      int
	Sold           int
	SoldValue      int64
	RemainingValue int64
	Clamped        bool
}

// Summarize aggregates the lines of one product across an outlet's receipts.
// Aggregate sold is derived from the summed totals, never by summing per-line
// sold figures; the two agree for consistent data, and for inconsistent data
// the summed totals are the single convention applied everywhere.
func Summarize(items []LineItem) Summary {
	var summary Summary
	for _, item := range items {
		summary.TotalGiven += item.TotalGiven
		summary.Remaining += item.Remaining
		summary.RemainingValue += int64(item.Remaining) * item.UnitPrice
		if item.Remaining > item.TotalGiven {
			summary.Clamped = true
		}
	}
	if summary.Remaining > summary.TotalGiven {
		summary.Clamped = true
		return summary
	}
	summary.Sold = summary.TotalGiven - summary.Remaining
	for _, item := range items {
		result := ReconcileLine(item)
		summary.SoldValue += result.SoldValue
	}
	return summary
}

// RemainingDebt is total owed minus total paid, floored at zero. The floor is
// defensive: the payment path already refuses amounts above the current debt.
func RemainingDebt(totalOwed int64, totalPaid int64) int64 {
	debt := totalOwed - totalPaid
	if debt < 0 {
		return 0
	}
	return debt
}

// ClampPayment validates a debt payment against the outlet's current debt.
// It fails with ErrValidation for non-positive amounts and for amounts above
// the remaining debt; a valid amount is returned unchanged.
func ClampPayment(amount int64, remainingDebt int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrValidation
	}
	if amount > remainingDebt {
		return 0, ErrValidation
	}
	return amount, nil
}
