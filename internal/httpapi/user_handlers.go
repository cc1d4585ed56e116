package httpapi

import (
	"net/http"
	"time"

	"payrollhub.org/internal/auth"
	"payrollhub.org/internal/ratelimit"
	"payrollhub.org/internal/users"
)

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	RoleID   string `json:"role_id"`
	BranchID string `json:"branch_id"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	RoleID    string    `json:"role_id"`
	BranchID  string    `json:"branch_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ctx, actx, ok := a.guard(w, r, ratelimit.UserAdmin, auth.CanManageUsers)
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeFault(w, r, err)
		return
	}
	u, err := a.Users.Create(ctx, actx, users.Input{
		Username: req.Username,
		Password: req.Password,
		RoleID:   req.RoleID,
		BranchID: req.BranchID,
	})
	if err != nil {
		a.writeFault(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/users/"+u.ID)
	writeJSON(w, http.StatusCreated, userResponse{
		ID:        u.ID,
		Username:  u.Username,
		RoleID:    u.RoleID,
		BranchID:  u.BranchID,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	})
}
