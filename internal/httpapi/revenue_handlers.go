package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payrollhub.org/internal/auth"
	"payrollhub.org/internal/consistency"
	"payrollhub.org/internal/fault"
	"payrollhub.org/internal/ratelimit"
)

const dateLayout = "2006-01-02"

type createRevenueRequest struct {
	BranchID string          `json:"branch_id"`
	Date     string          `json:"date"`
	Cash     decimal.Decimal `json:"cash"`
	Network  decimal.Decimal `json:"network"`
	Budget   decimal.Decimal `json:"budget"`
	Total    decimal.Decimal `json:"total"`
}

type revenueResponse struct {
	ID              string    `json:"id"`
	BranchID        string    `json:"branch_id"`
	Date            string    `json:"date"`
	Cash            string    `json:"cash"`
	Network         string    `json:"network"`
	Budget          string    `json:"budget"`
	Total           string    `json:"total"`
	CalculatedTotal string    `json:"calculated_total"`
	IsMatched       bool      `json:"is_matched"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

func toRevenueResponse(rev consistency.Revenue) revenueResponse {
	return revenueResponse{
		ID:              rev.ID,
		BranchID:        rev.BranchID,
		Date:            rev.Date.Format(dateLayout),
		Cash:            rev.Cash.StringFixed(2),
		Network:         rev.Network.StringFixed(2),
		Budget:          rev.Budget.StringFixed(2),
		Total:           rev.ReportedTotal.StringFixed(2),
		CalculatedTotal: rev.CalculatedTotal.StringFixed(2),
		IsMatched:       rev.IsMatched,
		CreatedBy:       rev.CreatedBy,
		CreatedAt:       rev.CreatedAt,
	}
}

func (a *API) handleRevenues(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRevenue(w, r)
	case http.MethodGet:
		a.listRevenues(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createRevenue(w http.ResponseWriter, r *http.Request) {
	ctx, actx, ok := a.guard(w, r, ratelimit.FinancialCritical, auth.CanAddRevenue)
	if !ok {
		return
	}
	var req createRevenueRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeFault(w, r, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		a.writeFault(w, r, err)
		return
	}
	rev, err := a.Revenues.RecordRevenue(ctx, actx, consistency.RevenueInput{
		BranchID: req.BranchID,
		Date:     date,
		Cash:     req.Cash,
		Network:  req.Network,
		Budget:   req.Budget,
		Total:    req.Total,
	})
	if err != nil {
		a.writeFault(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/revenues/"+rev.ID)
	writeJSON(w, http.StatusCreated, toRevenueResponse(rev))
}

func (a *API) listRevenues(w http.ResponseWriter, r *http.Request) {
	ctx, actx, ok := a.guard(w, r, ratelimit.Default, auth.CanViewRevenue)
	if !ok {
		return
	}
	q := r.URL.Query()
	var (
		f   = consistency.ListFilter{BranchID: strings.TrimSpace(q.Get("branch_id"))}
		err error
	)
	if raw := q.Get("from"); raw != "" {
		if f.From, err = parseDate("from", raw); err != nil {
			a.writeFault(w, r, err)
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if f.To, err = parseDate("to", raw); err != nil {
			a.writeFault(w, r, err)
			return
		}
	}
	revs, err := a.Revenues.ListRevenues(ctx, actx, f)
	if err != nil {
		a.writeFault(w, r, err)
		return
	}
	out := make([]revenueResponse, 0, len(revs))
	for _, rev := range revs {
		out = append(out, toRevenueResponse(rev))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (a *API) handleRevenueResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx, actx, ok := a.guard(w, r, ratelimit.Default, auth.CanViewRevenue)
	if !ok {
		return
	}
	rev, err := a.Revenues.GetRevenue(ctx, actx, r.PathValue("id"))
	if err != nil {
		a.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRevenueResponse(rev))
}

func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fault.Validation(field, field+" is required")
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fault.Validation(field, field+" must be YYYY-MM-DD")
	}
	return t, nil
}
