package access

import (
	_ "embed"
	"fmt"
	"os"

	"adcampaign-controlplane/pkg/config"
	"adcampaign-controlplane/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"go.uber.org/zap"
)

var (
	//go:embed model.conf
	defaultModel string
	//go:embed policy.csv
	defaultPolicy string
)

// Evaluator decides whether an identity may perform an action on a target.
// The role/action matrix lives in casbin; tenancy, assignment and workflow
// conditions are checked here.
type Evaluator struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEvaluator loads the embedded matrix, or the files named by
// ACCESS_CONTROL.MODEL and ACCESS_CONTROL.POLICY.
func NewEvaluator(cfg *config.Config) (*Evaluator, error) {
	modelText, policyText := defaultModel, defaultPolicy

	if path := cfg.AccessControl.Model; path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read access model: %w", err)
		}
		modelText = string(b)
	}
	if path := cfg.AccessControl.Policy; path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read access policy: %w", err)
		}
		policyText = string(b)
	}

	return newEvaluator(modelText, policyText)
}

// NewDefaultEvaluator uses the built-in matrix only.
func NewDefaultEvaluator() (*Evaluator, error) {
	return newEvaluator(defaultModel, defaultPolicy)
}

func newEvaluator(modelText, policyText string) (*Evaluator, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("parse access model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, stringadapter.NewAdapter(policyText))
	if err != nil {
		return nil, fmt.Errorf("load access policy: %w", err)
	}

	return &Evaluator{enforcer: enforcer}, nil
}

// permits consults the role/action matrix. A matrix error denies.
func (e *Evaluator) permits(role Role, action Action, resource Resource) bool {
	ok, err := e.enforcer.Enforce(string(role), string(resource), string(action))
	if err != nil {
		zap.L().Error("access matrix evaluation failed",
			zap.String("role", string(role)),
			zap.String("action", string(action)),
			zap.String("resource", string(resource)),
			zap.Error(err),
		)
		return false
	}
	return ok
}

// Can returns the decision for a single, identified target. It never fails.
// Tenancy is checked before the matrix so a caller cannot learn what it may
// do to resources it cannot see.
func (e *Evaluator) Can(id Identity, action Action, target Target) Decision {
	switch id.Role {
	case RoleStaff:
		if !id.CoversCompany(target.CompanyID) {
			return deny(ReasonOutOfScope)
		}
		if !e.permits(id.Role, action, target.Resource) {
			return deny(ReasonNotPermitted)
		}
		return allow(staffScope(id))

	case RoleClient:
		if !id.InCompany(target.CompanyID) {
			return deny(ReasonOutOfScope)
		}
		if !e.permits(id.Role, action, target.Resource) {
			return deny(ReasonNotPermitted)
		}
		return allow(Scope{Kind: ScopeCompany, CompanyID: *id.CompanyID})

	case RoleContractor:
		if !target.Assigned {
			return deny(ReasonOutOfScope)
		}
		if !e.permits(id.Role, action, target.Resource) {
			return deny(ReasonNotPermitted)
		}
		if action == ActionUpload && target.CampaignStatus != CampaignInProgress {
			return deny(ReasonState)
		}
		return allow(Scope{Kind: ScopeAssigned, ContractorID: id.UserID})

	default:
		return deny(ReasonNotPermitted)
	}
}

// ForList returns the filter a collection query over resource must apply.
// A denied decision carries ScopeNone.
func (e *Evaluator) ForList(id Identity, resource Resource) Decision {
	if !e.permits(id.Role, ActionList, resource) {
		return deny(ReasonNotPermitted)
	}

	switch id.Role {
	case RoleStaff:
		return allow(staffScope(id))
	case RoleClient:
		if id.CompanyID == nil {
			return deny(ReasonOutOfScope)
		}
		return allow(Scope{Kind: ScopeCompany, CompanyID: *id.CompanyID})
	case RoleContractor:
		return allow(Scope{Kind: ScopeAssigned, ContractorID: id.UserID})
	default:
		return deny(ReasonNotPermitted)
	}
}

func staffScope(id Identity) Scope {
	if id.CompanyID == nil {
		return Scope{Kind: ScopeAll}
	}
	return Scope{Kind: ScopeCompany, CompanyID: *id.CompanyID}
}

// Err translates a denial into the error a service returns: workflow state
// conflicts become Conflict, everything else Forbidden tagged with the reason.
func (d Decision) Err(msg string) error {
	switch d.Reason {
	case ReasonNone:
		return nil
	case ReasonState:
		return errutil.Conflict(msg, nil)
	default:
		return errutil.Forbidden(msg, nil, errutil.WithReason(string(d.Reason)))
	}
}
