package consistency

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"payrollhub.org/internal/notify"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestReconcile(t *testing.T) {
	cases := []struct {
		name                       string
		cash, network, budget, tot string
		calc                       string
		matched                    bool
		diff                       string
	}{
		{"exact", "100", "50", "0", "150", "150", true, "0"},
		{"one unit over", "100", "50", "0", "151", "150", false, "1"},
		{"just inside tolerance", "100.00", "50.00", "0.005", "150.00", "150.005", true, "-0.005"},
		{"at tolerance is mismatch", "100.00", "50.00", "0.00", "150.01", "150", false, "0.01"},
		{"under reported", "10.50", "20.25", "5.25", "35.99", "36", false, "-0.01"},
		{"float-unfriendly values", "0.10", "0.20", "0", "0.30", "0.3", true, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Reconcile(Amounts{Cash: d(tc.cash), Network: d(tc.network), Budget: d(tc.budget), Total: d(tc.tot)})
			assert.True(t, res.CalculatedTotal.Equal(d(tc.calc)), "calculated %s", res.CalculatedTotal)
			assert.Equal(t, tc.matched, res.IsMatched)
			assert.True(t, res.Difference.Equal(d(tc.diff)), "difference %s", res.Difference)
		})
	}
}

func TestComposeAlert(t *testing.T) {
	rev := Revenue{
		ID:            "rev-1",
		BranchID:      "b-1",
		Date:          time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC),
		ReportedTotal: d("151"),
	}
	res := Reconcile(Amounts{Cash: d("100"), Network: d("50"), Budget: d("0"), Total: d("151")})
	recipients := []string{"u-sup", "u-adm"}

	alert := ComposeAlert(rev, res, recipients)
	recipients[0] = "mutated"

	assert.Equal(t, notify.SeverityHigh, alert.Severity)
	assert.Equal(t, "rev-1", alert.RelatedEntityID)
	assert.Equal(t, []string{"u-sup", "u-adm"}, alert.Recipients)
	assert.Contains(t, alert.Message, "1.00")
	assert.Contains(t, alert.Message, "2026-05-03")
	assert.Contains(t, alert.Message, "rev-1")
}
