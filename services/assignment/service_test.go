package assignment

import (
	"context"
	"sync"
	"testing"

	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/services/access"
	"adcampaign-controlplane/services/audit"
	"adcampaign-controlplane/services/campaign"
	"adcampaign-controlplane/services/directory"
	"adcampaign-controlplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type countingEmitter struct {
	mu sync.Mutex
	n  int
}

func (c *countingEmitter) Emit(context.Context, audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func ptr[T any](v T) *T { return &v }

var (
	staff      = access.Identity{UserID: 1, Role: access.RoleStaff}
	staffAcme  = access.Identity{UserID: 2, Role: access.RoleStaff, CompanyID: ptr(int64(10))}
	staffOther = access.Identity{UserID: 3, Role: access.RoleStaff, CompanyID: ptr(int64(20))}
	clientAcme = access.Identity{UserID: 4, Role: access.RoleClient, CompanyID: ptr(int64(10))}
	worker     = access.Identity{UserID: 50, Role: access.RoleContractor}
)

const campaignID int64 = 1000

func newRegistry(t *testing.T) (*Registry, *countingEmitter) {
	t.Helper()

	db := testutil.NewTestDB(t, &directory.Company{}, &directory.User{}, &campaign.Campaign{}, &CampaignAssignment{})
	require.NoError(t, db.Create([]*directory.Company{
		{ID: 10, Name: "Acme", IsActive: true},
		{ID: 20, Name: "Other", IsActive: true},
	}).Error)
	require.NoError(t, db.Create([]*directory.User{
		{ID: 50, Email: "w@example.com", Role: "contractor", IsActive: true},
		{ID: 51, Email: "w2@example.com", Role: "contractor", IsActive: true},
		{ID: 4, Email: "c@example.com", Role: "client", CompanyID: ptr(int64(10)), IsActive: true},
	}).Error)
	require.NoError(t, db.Create(&campaign.Campaign{
		ID:        campaignID,
		CompanyID: 10,
		Code:      "CMP-261017-001AB",
		Name:      "Launch",
		Slug:      "launch",
		Status:    campaign.StatusNew,
		CreatedBy: staff.UserID,
	}).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	evaluator, err := access.NewDefaultEvaluator()
	require.NoError(t, err)
	emitter := &countingEmitter{}

	r := NewRegistry(RegistryParams{
		DB:        db,
		Node:      node,
		Evaluator: evaluator,
		Directory: directory.NewService(directory.ServiceParams{DB: db, Node: node}),
		Campaigns: campaign.NewStore(db),
		Emitter:   emitter,
	})
	return r, emitter
}

func TestAssignAndRemove(t *testing.T) {
	r, emitter := newRegistry(t)
	ctx := context.Background()

	a, err := r.Assign(ctx, staffAcme, campaignID, worker.UserID)
	require.NoError(t, err)
	require.Equal(t, campaignID, a.CampaignID)
	require.Equal(t, staffAcme.UserID, a.AssignedBy)

	ok, err := r.IsAssigned(ctx, campaignID, worker.UserID)
	require.NoError(t, err)
	require.True(t, ok)

	ids, err := r.AssignedCampaignIDs(ctx, worker.UserID)
	require.NoError(t, err)
	require.Equal(t, []int64{campaignID}, ids)

	n, err := r.CountDependents(ctx, campaignID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = r.Assign(ctx, staff, campaignID, worker.UserID)
	require.True(t, errutil.Is(err, errutil.StatusConflict), err)

	require.NoError(t, r.Remove(ctx, staff, campaignID, worker.UserID))
	err = r.Remove(ctx, staff, campaignID, worker.UserID)
	require.True(t, errutil.Is(err, errutil.StatusNotFound), err)

	ok, err = r.IsAssigned(ctx, campaignID, worker.UserID)
	require.NoError(t, err)
	require.False(t, ok)

	// Reassigning after removal is a fresh grant.
	_, err = r.Assign(ctx, staff, campaignID, worker.UserID)
	require.NoError(t, err)
	require.Equal(t, 3, emitter.n)
}

func TestConcurrentAssignHasOneWinner(t *testing.T) {
	r, emitter := newRegistry(t)
	ctx := context.Background()

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Assign(ctx, staff, campaignID, worker.UserID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.True(t, errutil.Is(err, errutil.StatusConflict), err)
	}
	require.Equal(t, 1, wins)

	n, err := r.CountDependents(ctx, campaignID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, 1, emitter.n)
}

func TestAssignRejections(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		actor      access.Identity
		campaignID int64
		contractor int64
		code       errutil.CoreStatus
	}{
		{"client", clientAcme, campaignID, 50, errutil.StatusForbidden},
		{"contractor", worker, campaignID, 51, errutil.StatusForbidden},
		{"staff of another company", staffOther, campaignID, 50, errutil.StatusForbidden},
		{"unknown campaign", staff, 9999, 50, errutil.StatusNotFound},
		{"not a contractor", staff, campaignID, 4, errutil.StatusNotFound},
		{"unknown user", staff, campaignID, 777, errutil.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Assign(ctx, tt.actor, tt.campaignID, tt.contractor)
			require.True(t, errutil.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestList(t *testing.T) {
	r, _ := newRegistry(t)
	ctx := context.Background()

	_, err := r.Assign(ctx, staff, campaignID, 50)
	require.NoError(t, err)
	_, err = r.Assign(ctx, staff, campaignID, 51)
	require.NoError(t, err)

	rows, err := r.List(ctx, clientAcme, campaignID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = r.List(ctx, worker, campaignID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, err = r.List(ctx, staffOther, campaignID)
	require.True(t, errutil.Is(err, errutil.StatusForbidden), err)

	_, err = r.List(ctx, access.Identity{UserID: 99, Role: access.RoleContractor}, campaignID)
	require.True(t, errutil.Is(err, errutil.StatusForbidden), err)
}
