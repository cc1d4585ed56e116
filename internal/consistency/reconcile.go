// Package consistency reconciles daily branch revenue against its
// components and raises an alert when they disagree.
package consistency

import (
	"fmt"

	"github.com/shopspring/decimal"

	"payrollhub.org/internal/notify"
)

// Tolerance is the largest absolute difference still treated as matched,
// exclusive.
var Tolerance = decimal.New(1, -2)

// Amounts are the reported figures of one revenue record.
type Amounts struct {
	Cash    decimal.Decimal
	Network decimal.Decimal
	Budget  decimal.Decimal
	Total   decimal.Decimal
}

// Result of reconciling Amounts.
type Result struct {
	CalculatedTotal decimal.Decimal
	IsMatched       bool
	// Difference is Total minus CalculatedTotal.
	Difference decimal.Decimal
}

// Reconcile sums the components and compares them with the reported total.
func Reconcile(a Amounts) Result {
	calc := a.Cash.Add(a.Network).Add(a.Budget)
	diff := a.Total.Sub(calc)
	return Result{
		CalculatedTotal: calc,
		IsMatched:       diff.Abs().LessThan(Tolerance),
		Difference:      diff,
	}
}

// ComposeAlert builds the high-severity alert for a mismatched record.
func ComposeAlert(rev Revenue, res Result, recipients []string) notify.Alert {
	return notify.Alert{
		Severity: notify.SeverityHigh,
		Title:    "Revenue total mismatch",
		Message: fmt.Sprintf(
			"Revenue %s for branch %s on %s reports %s but its components sum to %s (difference %s).",
			rev.ID, rev.BranchID, rev.Date.Format(dateLayout),
			rev.ReportedTotal.StringFixed(2), res.CalculatedTotal.StringFixed(2), res.Difference.Abs().StringFixed(2),
		),
		Recipients:      append([]string(nil), recipients...),
		RelatedEntityID: rev.ID,
	}
}
