package auth

import "sort"

// PermissionSet is the immutable capability snapshot of one user. The zero
// value grants nothing.
type PermissionSet struct {
	caps     map[Capability]struct{}
	branchID string
}

// NewPermissionSet derives a set from the role's granted flags. Unknown flags
// are dropped.
func NewPermissionSet(role Role, branchID string) PermissionSet {
	caps := make(map[Capability]struct{}, len(role.Capabilities))
	for c, granted := range role.Capabilities {
		if !granted {
			continue
		}
		if _, ok := knownCapabilities[c]; !ok {
			continue
		}
		caps[c] = struct{}{}
	}
	return PermissionSet{caps: caps, branchID: branchID}
}

// Has reports whether c is granted.
func (p PermissionSet) Has(c Capability) bool {
	_, ok := p.caps[c]
	return ok
}

// BranchID is the branch the set was resolved for; empty when none.
func (p PermissionSet) BranchID() string { return p.branchID }

func (p PermissionSet) CanViewAllBranches() bool { return p.Has(CanViewAllBranches) }

// List returns the granted capabilities sorted by name.
func (p PermissionSet) List() []Capability {
	out := make([]Capability, 0, len(p.caps))
	for c := range p.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
