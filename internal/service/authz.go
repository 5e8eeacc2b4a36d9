package service

import (
	"strings"

	"github.com/card-fund-service/internal/model"
)

// Role is a capability a caller may hold relative to a resource.
type Role int

const (
	RoleOwner Role = iota
	RoleSettler
	RolePauser
	RoleFundOwner
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleSettler:
		return "settler"
	case RolePauser:
		return "pauser"
	case RoleFundOwner:
		return "card fund owner"
	default:
		return "unknown"
	}
}

// holds reports whether caller holds role. fund is only consulted for RoleFundOwner.
func holds(sys *model.System, fund *model.CardFund, caller string, role Role) bool {
	if caller == "" {
		return false
	}
	switch role {
	case RoleOwner:
		return caller == sys.Owner
	case RoleSettler:
		return caller == sys.Settler
	case RolePauser:
		return caller == sys.Pauser
	case RoleFundOwner:
		return fund != nil && caller == fund.Owner
	default:
		return false
	}
}

// authorize succeeds when the caller holds any of roles.
func (o *op) authorize(fund *model.CardFund, roles ...Role) error {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if holds(o.sys, fund, o.caller, r) {
			return nil
		}
		names = append(names, r.String())
	}
	return NewUnauthorized("unauthorized", "Caller must be the "+strings.Join(names, " or "))
}

// requireRunning rejects fund-moving operations while the system is paused.
func (o *op) requireRunning() error {
	if o.sys.Paused {
		return NewPaused()
	}
	return nil
}
