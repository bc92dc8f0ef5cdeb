package service

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// TrustMode selects how unverified apps are treated
type TrustMode string

const (
	// TrustFull exposes every capability, verified or not
	TrustFull TrustMode = "full"
	// TrustRestricted limits unverified apps to the allow list
	TrustRestricted TrustMode = "restricted"
)

// DefaultAllow is the allow list used by restricted policies when none is given
var DefaultAllow = []string{"text", "crypto", "hostapp"}

// TrustPolicy decides which capabilities an app may call
type TrustPolicy struct {
	Mode  TrustMode
	Allow map[string]bool
}

// FullTrust returns a policy that never withholds a capability
func FullTrust() TrustPolicy {
	return TrustPolicy{Mode: TrustFull}
}

// Restricted returns a policy that limits unverified apps to allow
func Restricted(allow ...string) TrustPolicy {
	if len(allow) == 0 {
		allow = DefaultAllow
	}
	set := make(map[string]bool, len(allow))
	for _, name := range allow {
		if name = strings.TrimSpace(name); name != "" {
			set[name] = true
		}
	}
	return TrustPolicy{Mode: TrustRestricted, Allow: set}
}

// ParseTrustPolicy builds a policy from its configured name and allow list
func ParseTrustPolicy(mode string, allow []string) (TrustPolicy, error) {
	switch TrustMode(strings.ToLower(mode)) {
	case "", TrustFull:
		return FullTrust(), nil
	case TrustRestricted:
		return Restricted(allow...), nil
	default:
		return TrustPolicy{}, fmt.Errorf("unknown trust policy: %s", mode)
	}
}

// Allows reports whether capability may run for the app described by appCtx.
// A nil context is treated as unverified.
func (p TrustPolicy) Allows(capability string, appCtx *types.AppContext) bool {
	if p.Mode != TrustRestricted {
		return true
	}
	if appCtx != nil && appCtx.Verified {
		return true
	}
	return p.Allow[capability]
}
