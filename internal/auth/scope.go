package auth

import (
	"fmt"
	"regexp"
	"strings"

	"payrollhub.org/internal/fault"
)

// BranchColumn is the column ScopeQuery filters on.
const BranchColumn = "branch_id"

var whereClause = regexp.MustCompile(`(?i)\bwhere\b`)

// ScopeQuery appends the branch filter for actx to base. args are the
// placeholder values base already uses; the filter takes the next $n.
//
// The existing where condition of base is parenthesized before the filter
// is joined. Callers append ordering and limits after the returned query;
// base must not contain a subquery with its own where clause.
func ScopeQuery(base string, actx AuthContext, requestedBranchID string, args ...any) (string, []any, error) {
	branch := strings.TrimSpace(requestedBranchID)
	if !actx.Permissions.CanViewAllBranches() {
		if actx.BranchID == "" {
			return "", nil, fault.Forbidden("no branch assigned", ErrBranchDenied)
		}
		if branch != "" && branch != actx.BranchID {
			return "", nil, fault.Forbidden("branch "+branch+" not accessible", ErrBranchDenied)
		}
		branch = actx.BranchID
	}

	out := append([]any(nil), args...)
	if branch == "" {
		return base, out, nil
	}
	out = append(out, branch)
	filter := fmt.Sprintf("%s = $%d", BranchColumn, len(out))
	base = strings.TrimRight(base, " \n\t")
	loc := whereClause.FindStringIndex(base)
	if loc == nil {
		return base + " where " + filter, out, nil
	}
	// Parenthesize the caller's condition so an "or" cannot bypass the filter.
	cond := strings.TrimSpace(base[loc[1]:])
	return base[:loc[1]] + " (" + cond + ") and " + filter, out, nil
}
