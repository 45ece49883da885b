package access

import (
	"os"
	"testing"

	"adcampaign-controlplane/pkg/config"
	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/pkg/middleware"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	allActions = []Action{
		ActionRead, ActionList, ActionCreate, ActionUpdate, ActionDelete,
		ActionStatusChange, ActionAssign, ActionUnassign, ActionUpload, ActionReview,
	}
	mutations = []Action{
		ActionCreate, ActionUpdate, ActionDelete, ActionStatusChange,
		ActionAssign, ActionUnassign, ActionUpload, ActionReview,
	}
	statuses = []string{"new", CampaignInProgress, "completed", "cancelled"}
)

func ptr(v int64) *int64 { return &v }

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewDefaultEvaluator()
	require.NoError(t, err)
	return e
}

func TestStaffMayDoEverythingButUpload(t *testing.T) {
	e := newTestEvaluator(t)
	staff := Identity{UserID: 1, Role: RoleStaff}

	for _, res := range []Resource{ResourceCampaign, ResourceAssignment, ResourceImage} {
		for _, act := range allActions {
			if res == ResourceImage && act != ActionRead && act != ActionList && act != ActionReview {
				continue
			}
			d := e.Can(staff, act, Target{Resource: res, CompanyID: 42, CampaignStatus: "new"})
			require.True(t, d.Allowed, "%s %s", act, res)
			require.Equal(t, ScopeAll, d.Scope.Kind)
		}
	}
}

func TestStaffCannotUpload(t *testing.T) {
	e := newTestEvaluator(t)

	for _, staff := range []Identity{
		{UserID: 1, Role: RoleStaff},
		{UserID: 2, Role: RoleStaff, CompanyID: ptr(42)},
	} {
		d := e.Can(staff, ActionUpload, Target{Resource: ResourceImage, CompanyID: 42, CampaignStatus: CampaignInProgress})
		require.False(t, d.Allowed)
		require.Equal(t, ReasonNotPermitted, d.Reason)
	}
}

func TestCompanyBoundStaff(t *testing.T) {
	e := newTestEvaluator(t)
	staff := Identity{UserID: 1, Role: RoleStaff, CompanyID: ptr(7)}

	d := e.Can(staff, ActionStatusChange, Target{Resource: ResourceCampaign, CompanyID: 7})
	require.True(t, d.Allowed)
	require.Equal(t, Scope{Kind: ScopeCompany, CompanyID: 7}, d.Scope)

	d = e.Can(staff, ActionRead, Target{Resource: ResourceCampaign, CompanyID: 8})
	require.False(t, d.Allowed)
	require.Equal(t, ReasonOutOfScope, d.Reason)

	list := e.ForList(staff, ResourceCampaign)
	require.True(t, list.Allowed)
	require.Equal(t, Scope{Kind: ScopeCompany, CompanyID: 7}, list.Scope)
}

func TestClientCannotReadForeignCampaign(t *testing.T) {
	e := newTestEvaluator(t)

	for _, own := range []int64{1, 2, 3} {
		client := Identity{UserID: 10, Role: RoleClient, CompanyID: ptr(own)}
		for _, other := range []int64{1, 2, 3} {
			for _, res := range []Resource{ResourceCampaign, ResourceImage} {
				d := e.Can(client, ActionRead, Target{Resource: res, CompanyID: other})
				if own == other {
					require.True(t, d.Allowed)
					continue
				}
				require.False(t, d.Allowed)
				require.Equal(t, ReasonOutOfScope, d.Reason)
			}
		}
	}
}

func TestClientIsReadOnly(t *testing.T) {
	e := newTestEvaluator(t)
	client := Identity{UserID: 10, Role: RoleClient, CompanyID: ptr(1)}

	for _, res := range []Resource{ResourceCampaign, ResourceAssignment, ResourceImage} {
		for _, act := range mutations {
			d := e.Can(client, act, Target{Resource: res, CompanyID: 1, CampaignStatus: CampaignInProgress})
			require.False(t, d.Allowed, "%s %s", act, res)
			require.Equal(t, ReasonNotPermitted, d.Reason)
		}
	}

	list := e.ForList(client, ResourceImage)
	require.True(t, list.Allowed)
	require.Equal(t, Scope{Kind: ScopeCompany, CompanyID: 1}, list.Scope)
}

func TestContractorUploadRequiresAssignmentAndInProgress(t *testing.T) {
	e := newTestEvaluator(t)
	contractor := Identity{UserID: 20, Role: RoleContractor}

	for _, assigned := range []bool{true, false} {
		for _, status := range statuses {
			d := e.Can(contractor, ActionUpload, Target{
				Resource:       ResourceImage,
				CompanyID:      1,
				CampaignStatus: status,
				Assigned:       assigned,
			})

			want := assigned && status == CampaignInProgress
			require.Equal(t, want, d.Allowed, "assigned=%v status=%s", assigned, status)

			switch {
			case want:
			case !assigned:
				require.Equal(t, ReasonOutOfScope, d.Reason)
			default:
				require.Equal(t, ReasonState, d.Reason)
			}
		}
	}
}

func TestContractorVisibility(t *testing.T) {
	e := newTestEvaluator(t)
	contractor := Identity{UserID: 20, Role: RoleContractor}

	d := e.Can(contractor, ActionRead, Target{Resource: ResourceCampaign, CompanyID: 1, Assigned: true})
	require.True(t, d.Allowed)

	d = e.Can(contractor, ActionRead, Target{Resource: ResourceCampaign, CompanyID: 1})
	require.False(t, d.Allowed)
	require.Equal(t, ReasonOutOfScope, d.Reason)

	for _, act := range []Action{ActionCreate, ActionUpdate, ActionDelete, ActionStatusChange, ActionAssign, ActionReview} {
		d = e.Can(contractor, act, Target{Resource: ResourceCampaign, CompanyID: 1, Assigned: true, CampaignStatus: CampaignInProgress})
		require.False(t, d.Allowed, act)
		require.Equal(t, ReasonNotPermitted, d.Reason)
	}

	list := e.ForList(contractor, ResourceCampaign)
	require.True(t, list.Allowed)
	require.Equal(t, Scope{Kind: ScopeAssigned, ContractorID: 20}, list.Scope)
}

func TestUnknownRoleIsDenied(t *testing.T) {
	e := newTestEvaluator(t)
	ghost := Identity{UserID: 1, Role: Role("admin")}

	for _, act := range allActions {
		require.False(t, e.Can(ghost, act, Target{Resource: ResourceCampaign, CompanyID: 1, Assigned: true}).Allowed)
	}
	require.False(t, e.ForList(ghost, ResourceCampaign).Allowed)
	require.Equal(t, ScopeNone, e.ForList(ghost, ResourceCampaign).Scope.Kind)
}

func TestCustomPolicyFiles(t *testing.T) {
	dir := t.TempDir()
	policy := dir + "/policy.csv"
	require.NoError(t, os.WriteFile(policy, []byte("p, staff, campaign, read\n"), 0o600))

	cfg := &config.Config{}
	cfg.AccessControl.Policy = policy

	e, err := NewEvaluator(cfg)
	require.NoError(t, err)

	staff := Identity{UserID: 1, Role: RoleStaff}
	require.True(t, e.Can(staff, ActionRead, Target{Resource: ResourceCampaign}).Allowed)
	require.False(t, e.Can(staff, ActionDelete, Target{Resource: ResourceCampaign}).Allowed)

	cfg.AccessControl.Model = dir + "/missing.conf"
	_, err = NewEvaluator(cfg)
	require.Error(t, err)
}

func TestDecisionErr(t *testing.T) {
	require.NoError(t, allow(Scope{Kind: ScopeAll}).Err("ok"))

	err := deny(ReasonOutOfScope).Err("nope")
	require.True(t, errutil.Is(err, errutil.StatusForbidden))
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	reason, ok := be.Detail(errutil.FieldReason)
	require.True(t, ok)
	require.Equal(t, errutil.ReasonOutOfScope, reason)

	require.True(t, errutil.Is(deny(ReasonNotPermitted).Err("nope"), errutil.StatusForbidden))
	require.True(t, errutil.Is(deny(ReasonState).Err("nope"), errutil.StatusConflict))
}

func TestFromClaims(t *testing.T) {
	id, err := FromClaims(middleware.Claims{Subject: "5", Role: "client", CompanyID: "9"})
	require.NoError(t, err)
	require.Equal(t, Identity{UserID: 5, Role: RoleClient, CompanyID: ptr(9)}, id)

	id, err = FromClaims(middleware.Claims{Subject: "6", Role: "staff"})
	require.NoError(t, err)
	require.True(t, id.CoversCompany(123))

	_, err = FromClaims(middleware.Claims{Subject: "5", Role: "client"})
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))

	_, err = FromClaims(middleware.Claims{Subject: "5", Role: "root"})
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))

	_, err = FromClaims(middleware.Claims{Subject: "abc", Role: "staff"})
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))
}

func TestParseRole(t *testing.T) {
	for _, r := range []string{"staff", "client", "contractor"} {
		role, err := ParseRole(r)
		require.NoError(t, err)
		require.Equal(t, Role(r), role)
	}
	_, err := ParseRole("Staff")
	require.Error(t, err)
}
