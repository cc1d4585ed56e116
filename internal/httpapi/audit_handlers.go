package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"payrollhub.org/internal/audit"
	"payrollhub.org/internal/auth"
	"payrollhub.org/internal/fault"
	"payrollhub.org/internal/ratelimit"
)

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ctx, actx, ok := a.guard(w, r, ratelimit.Default, auth.CanViewAudit)
	if !ok {
		return
	}
	f, err := parseAuditFilter(r)
	if err != nil {
		a.writeFault(w, r, err)
		return
	}
	entries, err := a.Audit.Query(ctx, actx, f)
	if err != nil {
		a.writeFault(w, r, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		ActorID:      strings.TrimSpace(q.Get("actor_id")),
		Action:       audit.Action(strings.TrimSpace(q.Get("action"))),
		ResourceType: strings.TrimSpace(q.Get("resource_type")),
		ResourceID:   strings.TrimSpace(q.Get("resource_id")),
	}
	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, fault.Validation(name, name+" must be an RFC 3339 timestamp")
		}
		*dst = t
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return audit.Filter{}, fault.Validation("limit", "limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}
