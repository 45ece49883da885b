package access

import "adcampaign-controlplane/pkg/errutil"

type Action string

const (
	ActionRead         Action = "read"
	ActionList         Action = "list"
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionStatusChange Action = "status_change"
	ActionAssign       Action = "assign"
	ActionUnassign     Action = "unassign"
	ActionUpload       Action = "upload"
	ActionReview       Action = "review"
)

type Resource string

const (
	ResourceCampaign   Resource = "campaign"
	ResourceAssignment Resource = "assignment"
	ResourceImage      Resource = "image"
)

// CampaignInProgress is the only campaign status that accepts uploads.
const CampaignInProgress = "in_progress"

// Target is the minimal state of the resource being acted on, loaded by the
// caller before asking for a decision. CompanyID and CampaignStatus refer to
// the owning campaign; Assigned tells whether a contractor caller holds an
// assignment on it.
type Target struct {
	Resource       Resource
	CompanyID      int64
	CampaignStatus string
	Assigned       bool
}

type DenyReason string

const (
	ReasonNone DenyReason = ""
	// ReasonOutOfScope: the target lies outside the caller's tenant or
	// assignments.
	ReasonOutOfScope DenyReason = DenyReason(errutil.ReasonOutOfScope)
	// ReasonNotPermitted: the target is visible but the role cannot perform
	// the action.
	ReasonNotPermitted DenyReason = DenyReason(errutil.ReasonNotPermitted)
	// ReasonState: the role may act but the workflow state forbids it.
	ReasonState DenyReason = DenyReason("state")
)

type ScopeKind int

const (
	ScopeNone ScopeKind = iota
	ScopeAll
	ScopeCompany
	ScopeAssigned
)

// Scope narrows a collection query to what the caller may observe.
type Scope struct {
	Kind         ScopeKind
	CompanyID    int64
	ContractorID int64
}

type Decision struct {
	Allowed bool
	Reason  DenyReason
	Scope   Scope
}

func allow(scope Scope) Decision { return Decision{Allowed: true, Scope: scope} }

func deny(reason DenyReason) Decision { return Decision{Reason: reason} }
