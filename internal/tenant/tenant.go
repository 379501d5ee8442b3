// Package tenant resolves the tenant a request operates in. Every store in
// the service takes the effective tenant ID produced here; nothing else may
// decide tenancy.
package tenant

import (
	"github.com/google/uuid"

	"github.com/lifelink/copilot/internal/fault"
)

// Claims is the identity extracted from the (already verified) auth layer.
type Claims struct {
	UserID       string
	Role         string
	TenantID     string
	IsSuperAdmin bool
}

// Context is the resolved tenancy for one request. EffectiveTenantID equals
// TenantID unless a super admin explicitly switched context.
type Context struct {
	TenantID          string
	IsSuperAdmin      bool
	EffectiveTenantID string
}

// Resolve builds a Context from claims plus an optional override (the
// X-Tenant-Context header). Non-super-admins supplying an override fail
// closed; malformed override IDs are rejected before any query runs.
func Resolve(claims Claims, override string) (Context, error) {
	if claims.TenantID == "" {
		return Context{}, fault.New(fault.KindValidation, "tenant context not found")
	}

	ctx := Context{
		TenantID:          claims.TenantID,
		IsSuperAdmin:      claims.IsSuperAdmin,
		EffectiveTenantID: claims.TenantID,
	}

	if override == "" {
		return ctx, nil
	}

	if !claims.IsSuperAdmin {
		return Context{}, fault.New(fault.KindPermission, "tenant context switch requires super admin privileges")
	}
	if _, err := uuid.Parse(override); err != nil {
		return Context{}, fault.Newf(fault.KindValidation, "invalid tenant ID %q", override)
	}

	ctx.EffectiveTenantID = override
	return ctx, nil
}
