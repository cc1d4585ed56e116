package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"payrollhub.org/internal/fault"
)

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// writeFault maps err onto its status code and a localized body. Details
// stay in the logs; only validation failures echo their field and fixed
// reason, never a wrapped error's text.
func (a *API) writeFault(w http.ResponseWriter, r *http.Request, err error) {
	fe := fault.As(err)
	status := fault.Status(fe.Kind)
	body := errorBody{
		Error:     fe.Kind.String(),
		Message:   fault.Message(fe.Kind, r.Header.Get("Accept-Language")),
		RequestID: RequestIDFromContext(r.Context()),
	}
	switch fe.Kind {
	case fault.KindValidation:
		body.Field = fe.Field
		if fe.Detail != "" {
			body.Message = fe.Detail
		}
		if fe.Err != nil {
			a.logger.InfoContext(r.Context(), "request_rejected",
				"request_id", body.RequestID, "path", r.URL.Path, "field", fe.Field, "error", fe.Err.Error())
		}
	case fault.KindRateLimited:
		body.RetryAfter = fault.RetryAfterSeconds(fe)
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	case fault.KindInternal:
		a.logger.ErrorContext(r.Context(), "request_failed",
			"request_id", body.RequestID, "path", r.URL.Path, "error", fe.Error())
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	writeJSON(w, code, errorBody{
		Error:     kind,
		Message:   msg,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// decodeJSON reads exactly one JSON object. Unknown fields are rejected.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fault.Validation("body", "request body is required")
		case errors.As(err, &tooLarge):
			return fault.Validation("body", "request body too large")
		default:
			fe := fault.Validation("body", "malformed JSON body")
			fe.Err = err
			return fe
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fault.Validation("body", "unexpected data after JSON body")
	}
	return nil
}
