package access

import (
	"context"
	"fmt"
	"strconv"

	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/pkg/middleware"
)

// Role is the closed set of caller kinds. Anything else is rejected at the
// edge by ParseRole.
type Role string

const (
	RoleStaff      Role = "staff"
	RoleClient     Role = "client"
	RoleContractor Role = "contractor"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleStaff, RoleClient, RoleContractor:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Identity is the verified caller of one request. Staff without a company
// act across every tenant.
type Identity struct {
	UserID    int64
	Role      Role
	CompanyID *int64
}

func (i Identity) IsStaff() bool { return i.Role == RoleStaff }

// InCompany reports whether the identity is bound to companyID.
func (i Identity) InCompany(companyID int64) bool {
	return i.CompanyID != nil && *i.CompanyID == companyID
}

// CoversCompany reports whether companyID lies inside the identity's tenant
// boundary. Global staff cover every company.
func (i Identity) CoversCompany(companyID int64) bool {
	if i.Role == RoleStaff && i.CompanyID == nil {
		return true
	}
	return i.InCompany(companyID)
}

// FromClaims validates token claims into an Identity. Clients must carry a
// company.
func FromClaims(c middleware.Claims) (Identity, error) {
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return Identity{}, errutil.Unauthorized("subject is not a user id", err)
	}

	role, err := ParseRole(c.Role)
	if err != nil {
		return Identity{}, errutil.Unauthorized("unsupported role", err)
	}

	id := Identity{UserID: userID, Role: role}
	if c.CompanyID != "" {
		companyID, err := strconv.ParseInt(c.CompanyID, 10, 64)
		if err != nil {
			return Identity{}, errutil.Unauthorized("company_id is not an id", err)
		}
		id.CompanyID = &companyID
	}

	if role == RoleClient && id.CompanyID == nil {
		return Identity{}, errutil.Unauthorized("client token without company", nil)
	}

	return id, nil
}

// FromContext resolves the identity the middleware attached to ctx.
func FromContext(ctx context.Context) (Identity, error) {
	claims, ok := middleware.ClaimsFromContext(ctx)
	if !ok {
		return Identity{}, errutil.Unauthorized("request is not authenticated", nil)
	}
	return FromClaims(claims)
}
