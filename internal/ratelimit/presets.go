package ratelimit

import (
	"fmt"
	"sort"
	"time"
)

// Preset is a named fixed-window policy.
type Preset struct {
	Name        string
	Window      time.Duration
	MaxRequests int
	// FailOpen admits requests when the counter store is unreachable. The
	// default is to reject them.
	FailOpen bool
}

const (
	FinancialCritical = "financial-critical"
	AuthLogin         = "auth-login"
	AIChat            = "ai-chat"
	UserAdmin         = "user-admin"
	Default           = "default"
)

// DefaultPresets returns the built-in policies. Financial writes get the
// tightest ceiling; assistant traffic a long window with a higher one.
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		FinancialCritical: {Name: FinancialCritical, Window: 60 * time.Second, MaxRequests: 5},
		AuthLogin:         {Name: AuthLogin, Window: 300 * time.Second, MaxRequests: 10},
		AIChat:            {Name: AIChat, Window: time.Hour, MaxRequests: 60},
		UserAdmin:         {Name: UserAdmin, Window: 60 * time.Second, MaxRequests: 20},
		Default:           {Name: Default, Window: 60 * time.Second, MaxRequests: 120},
	}
}

func (p Preset) validate() error {
	if p.Name == "" {
		return fmt.Errorf("ratelimit: preset name is required")
	}
	if p.Window < time.Second || p.Window%time.Second != 0 {
		return fmt.Errorf("ratelimit: preset %q window must be whole seconds", p.Name)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("ratelimit: preset %q max requests must be positive", p.Name)
	}
	return nil
}

// Names returns preset names in sorted order.
func Names(presets map[string]Preset) []string {
	out := make([]string, 0, len(presets))
	for name := range presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
