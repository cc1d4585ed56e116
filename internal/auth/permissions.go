package auth

// Capability is a boolean permission flag carried by a role.
type Capability string

const (
	CanViewRevenue     Capability = "canViewRevenue"
	CanAddRevenue      Capability = "canAddRevenue"
	CanEditRevenue     Capability = "canEditRevenue"
	CanDeleteRevenue   Capability = "canDeleteRevenue"
	CanManageUsers     Capability = "canManageUsers"
	CanViewAllBranches Capability = "canViewAllBranches"
	CanViewAudit       Capability = "canViewAudit"
	CanManagePayroll   Capability = "canManagePayroll"
	CanUseAssistant    Capability = "canUseAssistant"
)

// BuiltinCapabilities lists every flag a role row may carry.
var BuiltinCapabilities = []Capability{
	CanViewRevenue,
	CanAddRevenue,
	CanEditRevenue,
	CanDeleteRevenue,
	CanManageUsers,
	CanViewAllBranches,
	CanViewAudit,
	CanManagePayroll,
	CanUseAssistant,
}

var knownCapabilities = func() map[Capability]struct{} {
	m := make(map[Capability]struct{}, len(BuiltinCapabilities))
	for _, c := range BuiltinCapabilities {
		m[c] = struct{}{}
	}
	return m
}()

// ParseCapability reports whether s names a known capability.
func ParseCapability(s string) (Capability, bool) {
	c := Capability(s)
	_, ok := knownCapabilities[c]
	return c, ok
}
