package image

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/services/access"
	"adcampaign-controlplane/services/assignment"
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

type stubSequence struct {
	mu sync.Mutex
	n  int
}

func (s *stubSequence) NextCampaignCode(context.Context, int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("CMP-261017-%03d", s.n), nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.ResourceType+":"+e.Action)
	}
	return out
}

const (
	companyC1 int64 = 1
	companyC2 int64 = 2

	staffID      int64 = 100
	boundStaffC2 int64 = 101
	clientC1ID   int64 = 200
	clientC2ID   int64 = 201
	contractorT1 int64 = 300
	contractorT2 int64 = 301
	inactiveT3   int64 = 302
)

type fixture struct {
	campaigns *campaign.Service
	registry  *assignment.Registry
	images    *Service
	emitter   *recordingEmitter

	staff    access.Identity
	staffC2  access.Identity
	clientC1 access.Identity
	clientC2 access.Identity
	t1       access.Identity
	t2       access.Identity
}

func ptr[T any](v T) *T { return &v }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&directory.Company{},
		&directory.User{},
		&campaign.Campaign{},
		&assignment.CampaignAssignment{},
		&Image{},
	)

	require.NoError(t, db.Create([]*directory.Company{
		{ID: companyC1, Name: "C1", IsActive: true},
		{ID: companyC2, Name: "C2", IsActive: true},
	}).Error)
	require.NoError(t, db.Create([]*directory.User{
		{ID: staffID, Email: "staff@example.com", Role: "staff", IsActive: true},
		{ID: boundStaffC2, Email: "staff-c2@example.com", Role: "staff", CompanyID: ptr(companyC2), IsActive: true},
		{ID: clientC1ID, Email: "client1@example.com", Role: "client", CompanyID: ptr(companyC1), IsActive: true},
		{ID: clientC2ID, Email: "client2@example.com", Role: "client", CompanyID: ptr(companyC2), IsActive: true},
		{ID: contractorT1, Email: "t1@example.com", Role: "contractor", IsActive: true},
		{ID: contractorT2, Email: "t2@example.com", Role: "contractor", IsActive: true},
	}).Error)
	require.NoError(t, db.Create(&directory.User{ID: inactiveT3, Email: "t3@example.com", Role: "contractor"}).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	evaluator, err := access.NewDefaultEvaluator()
	require.NoError(t, err)
	emitter := &recordingEmitter{}

	dir := directory.NewService(directory.ServiceParams{DB: db, Node: node})
	store := campaign.NewStore(db)

	registry := assignment.NewRegistry(assignment.RegistryParams{
		DB:        db,
		Node:      node,
		Evaluator: evaluator,
		Directory: dir,
		Campaigns: store,
		Emitter:   emitter,
	})

	images := NewService(ServiceParams{
		DB:        db,
		Node:      node,
		Evaluator: evaluator,
		Campaigns: store,
		Assigned:  registry,
		Emitter:   emitter,
	})

	campaigns := campaign.NewService(campaign.ServiceParams{
		DB:         db,
		Node:       node,
		Seq:        &stubSequence{},
		Evaluator:  evaluator,
		Directory:  dir,
		Assigned:   registry,
		Dependents: []campaign.DependentCounter{registry, images},
		Emitter:    emitter,
		Store:      store,
	})

	return &fixture{
		campaigns: campaigns,
		registry:  registry,
		images:    images,
		emitter:   emitter,

		staff:    access.Identity{UserID: staffID, Role: access.RoleStaff},
		staffC2:  access.Identity{UserID: boundStaffC2, Role: access.RoleStaff, CompanyID: ptr(companyC2)},
		clientC1: access.Identity{UserID: clientC1ID, Role: access.RoleClient, CompanyID: ptr(companyC1)},
		clientC2: access.Identity{UserID: clientC2ID, Role: access.RoleClient, CompanyID: ptr(companyC2)},
		t1:       access.Identity{UserID: contractorT1, Role: access.RoleContractor},
		t2:       access.Identity{UserID: contractorT2, Role: access.RoleContractor},
	}
}

// inProgress creates a campaign under companyC1, moves it to in_progress and
// assigns contractor T1.
func (f *fixture) inProgress(t *testing.T, name string) *campaign.Campaign {
	t.Helper()
	ctx := context.Background()

	k, err := f.campaigns.Create(ctx, f.staff, campaign.CreateRequest{CompanyID: companyC1, Name: name})
	require.NoError(t, err)
	k, err = f.campaigns.UpdateStatus(ctx, f.staff, k.ID, campaign.StatusInProgress)
	require.NoError(t, err)
	_, err = f.registry.Assign(ctx, f.staff, k.ID, contractorT1)
	require.NoError(t, err)
	return k
}

func file(name string) FileDescriptor {
	return FileDescriptor{Filename: name, Path: "campaigns/" + name, Size: 1024, MimeType: "image/jpeg"}
}

func ids(images []*Image) []int64 {
	out := make([]int64, 0, len(images))
	for _, img := range images {
		out = append(out, img.ID)
	}
	return out
}

func TestScenarioCampaignLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Scenario 1: a new campaign starts in status new.
	k1, err := f.campaigns.Create(ctx, f.staff, campaign.CreateRequest{CompanyID: companyC1, Name: "Spring Launch"})
	require.NoError(t, err)
	require.Equal(t, campaign.StatusNew, k1.Status)
	require.Equal(t, "spring-launch", k1.Slug)
	require.Nil(t, k1.CompletedAt)

	// Scenario 2: in_progress, assign, upload, scoped visibility.
	k1, err = f.campaigns.UpdateStatus(ctx, f.staff, k1.ID, campaign.StatusInProgress)
	require.NoError(t, err)
	_, err = f.registry.Assign(ctx, f.staff, k1.ID, contractorT1)
	require.NoError(t, err)

	i1, err := f.images.Upload(ctx, f.t1, k1.ID, file("front.jpg"))
	require.NoError(t, err)
	require.Equal(t, StatusPending, i1.Status)

	seen, err := f.images.List(ctx, f.clientC1, k1.ID, ListRequest{})
	require.NoError(t, err)
	require.Equal(t, []int64{i1.ID}, ids(seen.Images))

	forT2, err := f.campaigns.List(ctx, f.t2, campaign.ListRequest{})
	require.NoError(t, err)
	require.Empty(t, forT2.Campaigns)

	forT1, err := f.campaigns.List(ctx, f.t1, campaign.ListRequest{})
	require.NoError(t, err)
	require.Len(t, forT1.Campaigns, 1)
	require.Equal(t, k1.ID, forT1.Campaigns[0].ID)

	// Scenario 3: rejection keeps history, the replacement is a new row.
	rejected, err := f.images.Review(ctx, f.staff, i1.ID, "rejected", "blurry")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	require.Equal(t, "blurry", *rejected.RejectionReason)
	require.NotNil(t, rejected.ReviewedAt)
	require.Equal(t, staffID, *rejected.ReviewedBy)

	i2, err := f.images.Upload(ctx, f.t1, k1.ID, file("front-retake.jpg"))
	require.NoError(t, err)

	all, err := f.images.List(ctx, f.staff, k1.ID, ListRequest{})
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{i1.ID, i2.ID}, ids(all.Images))

	pending := StatusPending
	onlyPending, err := f.images.List(ctx, f.staff, k1.ID, ListRequest{Status: &pending})
	require.NoError(t, err)
	require.Equal(t, []int64{i2.ID}, ids(onlyPending.Images))

	summary, err := f.images.Summary(ctx, f.staff, k1.ID)
	require.NoError(t, err)
	require.Equal(t, &Summary{CampaignID: k1.ID, Pending: 1, Rejected: 1, Total: 2}, summary)

	// Scenario 4: completion stamps completed_at and is terminal.
	done, err := f.campaigns.UpdateStatus(ctx, f.staff, k1.ID, campaign.StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, campaign.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	_, err = f.campaigns.UpdateStatus(ctx, f.staff, k1.ID, campaign.StatusInProgress)
	require.True(t, errutil.Is(err, errutil.StatusInvalidTransition), err)

	require.Equal(t, []string{
		"campaign:create",
		"campaign:status_change",
		"assignment:assign",
		"image:upload",
		"image:review",
		"image:upload",
		"campaign:status_change",
	}, f.emitter.actions())
}

func TestListIsRepeatable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	k := f.inProgress(t, "Repeat")

	for i := 0; i < 3; i++ {
		_, err := f.images.Upload(ctx, f.t1, k.ID, file(fmt.Sprintf("img-%d.jpg", i)))
		require.NoError(t, err)
	}

	first, err := f.images.List(ctx, f.clientC1, k.ID, ListRequest{})
	require.NoError(t, err)
	second, err := f.images.List(ctx, f.clientC1, k.ID, ListRequest{})
	require.NoError(t, err)
	require.Equal(t, ids(first.Images), ids(second.Images))
	require.Len(t, first.Images, 3)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	k := f.inProgress(t, "Paged")

	var uploaded []int64
	for i := 0; i < 5; i++ {
		img, err := f.images.Upload(ctx, f.t1, k.ID, file(fmt.Sprintf("img-%d.jpg", i)))
		require.NoError(t, err)
		uploaded = append(uploaded, img.ID)
	}

	req := ListRequest{}
	req.Limit = 2

	var got []int64
	for {
		page, err := f.images.List(ctx, f.staff, k.ID, req)
		require.NoError(t, err)
		got = append(got, ids(page.Images)...)
		if !page.PageInfo.HasMore {
			break
		}
		req.Cursor = page.PageInfo.NextCursor
	}
	require.ElementsMatch(t, uploaded, got)
	require.Len(t, got, 5)

	req.Cursor = "garbage!!"
	_, err := f.images.List(ctx, f.staff, k.ID, req)
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed), err)
}

func TestUploadRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fresh, err := f.campaigns.Create(ctx, f.staff, campaign.CreateRequest{CompanyID: companyC1, Name: "Not Started"})
	require.NoError(t, err)
	_, err = f.registry.Assign(ctx, f.staff, fresh.ID, contractorT1)
	require.NoError(t, err)

	t.Run("assigned contractor on a new campaign conflicts", func(t *testing.T) {
		_, err := f.images.Upload(ctx, f.t1, fresh.ID, file("early.jpg"))
		require.True(t, errutil.Is(err, errutil.StatusConflict), err)
	})

	k := f.inProgress(t, "Running")

	t.Run("unassigned contractor is forbidden", func(t *testing.T) {
		_, err := f.images.Upload(ctx, f.t2, k.ID, file("sneaky.jpg"))
		require.True(t, errutil.Is(err, errutil.StatusForbidden), err)
	})

	t.Run("staff cannot upload", func(t *testing.T) {
		_, err := f.images.Upload(ctx, f.staff, k.ID, file("staff.jpg"))
		require.True(t, errutil.Is(err, errutil.StatusForbidden), err)
	})

	t.Run("client cannot upload", func(t *testing.T) {
		_, err := f.images.Upload(ctx, f.clientC1, k.ID, file("client.jpg"))
		require.True(t, errutil.Is(err, errutil.StatusForbidden), err)
	})

	t.Run("blank filename is a validation error", func(t *testing.T) {
		_, err := f.images.Upload(ctx, f.t1, k.ID, FileDescriptor{Filename: "  ", Path: "x"})
		require.True(t, errutil.Is(err, errutil.StatusValidationFailed), err)
	})

	t.Run("unknown campaign is not found", func(t *testing.T) {
		_, err := f.images.Upload(ctx, f.t1, 999, file("ghost.jpg"))
		require.True(t, errutil.Is(err, errutil.StatusNotFound), err)
	})

	t.Run("removal stops uploads but keeps history", func(t *testing.T) {
		img, err := f.images.Upload(ctx, f.t1, k.ID, file("kept.jpg"))
		require.NoError(t, err)

		require.NoError(t, f.registry.Remove(ctx, f.staff, k.ID, contractorT1))

		_, err = f.images.Upload(ctx, f.t1, k.ID, file("late.jpg"))
		require.True(t, errutil.Is(err, errutil.StatusForbidden), err)

		got, err := f.images.Get(ctx, f.staff, img.ID)
		require.NoError(t, err)
		require.Equal(t, img.ID, got.ID)
	})
}

func TestReviewRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	k := f.inProgress(t, "Review")

	img, err := f.images.Upload(ctx, f.t1, k.ID, file("a.jpg"))
	require.NoError(t, err)

	t.Run("unknown decision", func(t *testing.T) {
		_, err := f.images.Review(ctx, f.staff, img.ID, "pending", "")
		require.True(t, errutil.Is(err, errutil.StatusValidationFailed), err)
	})

	t.Run("rejection without reason", func(t *testing.T) {
		_, err := f.images.Review(ctx, f.staff, img.ID, "rejected", "   ")
		require.True(t, errutil.Is(err, errutil.StatusValidationFailed), err)
	})

	t.Run("missing image", func(t *testing.T) {
		_, err := f.images.Review(ctx, f.staff, 12345, "approved", "")
		require.True(t, errutil.Is(err, errutil.StatusNotFound), err)
	})

	t.Run("client and contractor may not review", func(t *testing.T) {
		_, err := f.images.Review(ctx, f.clientC1, img.ID, "approved", "")
		require.True(t, errutil.Is(err, errutil.StatusForbidden), err)
		_, err = f.images.Review(ctx, f.t1, img.ID, "approved", "")
		require.True(t, errutil.Is(err, errutil.StatusForbidden), err)
	})

	t.Run("staff of another company is out of scope", func(t *testing.T) {
		_, err := f.images.Review(ctx, f.staffC2, img.ID, "approved", "")
		require.True(t, errutil.Is(err, errutil.StatusForbidden), err)
		var be errutil.BaseError
		require.ErrorAs(t, err, &be)
		reason, ok := be.Detail(errutil.FieldReason)
		require.True(t, ok)
		require.Equal(t, errutil.ReasonOutOfScope, reason)
	})

	t.Run("approve clears the reason and cannot repeat", func(t *testing.T) {
		approved, err := f.images.Review(ctx, f.staff, img.ID, "approved", "looks good")
		require.NoError(t, err)
		require.Equal(t, StatusApproved, approved.Status)
		require.Nil(t, approved.RejectionReason)

		_, err = f.images.Review(ctx, f.staff, img.ID, "rejected", "changed my mind")
		require.True(t, errutil.Is(err, errutil.StatusInvalidTransition), err)
	})
}

func TestConcurrentReviewHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	k := f.inProgress(t, "Race")

	img, err := f.images.Upload(ctx, f.t1, k.ID, file("race.jpg"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.images.Review(ctx, f.staff, img.ID, "approved", "")
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		require.True(t, errutil.Is(err, errutil.StatusInvalidTransition), err)
	}
	require.Equal(t, 1, won)
}

func TestVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	k := f.inProgress(t, "Visible")

	img, err := f.images.Upload(ctx, f.t1, k.ID, file("v.jpg"))
	require.NoError(t, err)

	t.Run("foreign client read is forbidden", func(t *testing.T) {
		_, err := f.images.Get(ctx, f.clientC2, img.ID)
		require.True(t, errutil.Is(err, errutil.StatusForbidden), err)
		_, err = f.campaigns.Get(ctx, f.clientC2, k.ID)
		require.True(t, errutil.Is(err, errutil.StatusForbidden), err)
	})

	t.Run("foreign client list is empty", func(t *testing.T) {
		out, err := f.images.List(ctx, f.clientC2, k.ID, ListRequest{})
		require.NoError(t, err)
		require.Empty(t, out.Images)

		cs, err := f.campaigns.List(ctx, f.clientC2, campaign.ListRequest{})
		require.NoError(t, err)
		require.Empty(t, cs.Campaigns)
	})

	t.Run("missing campaign list is empty", func(t *testing.T) {
		out, err := f.images.List(ctx, f.staff, 424242, ListRequest{})
		require.NoError(t, err)
		require.Empty(t, out.Images)
	})

	t.Run("assigned contractor sees every image of the campaign", func(t *testing.T) {
		_, err := f.registry.Assign(ctx, f.staff, k.ID, contractorT2)
		require.NoError(t, err)
		other, err := f.images.Upload(ctx, f.t2, k.ID, file("t2.jpg"))
		require.NoError(t, err)

		out, err := f.images.List(ctx, f.t1, k.ID, ListRequest{})
		require.NoError(t, err)
		require.ElementsMatch(t, []int64{img.ID, other.ID}, ids(out.Images))
	})

	t.Run("summary needs read access", func(t *testing.T) {
		_, err := f.images.Summary(ctx, f.clientC2, k.ID)
		require.True(t, errutil.Is(err, errutil.StatusForbidden), err)
	})
}

func TestDeleteBlockedByImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	k := f.inProgress(t, "Sticky")

	_, err := f.images.Upload(ctx, f.t1, k.ID, file("s.jpg"))
	require.NoError(t, err)
	require.NoError(t, f.registry.Remove(ctx, f.staff, k.ID, contractorT1))

	n, err := f.images.CountDependents(ctx, k.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	err = f.campaigns.Delete(ctx, f.staff, k.ID)
	require.True(t, errutil.Is(err, errutil.StatusConflict), err)
}

func TestInactiveContractorCannotBeAssigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	k, err := f.campaigns.Create(ctx, f.staff, campaign.CreateRequest{CompanyID: companyC1, Name: "Inactive"})
	require.NoError(t, err)

	_, err = f.registry.Assign(ctx, f.staff, k.ID, inactiveT3)
	require.True(t, errutil.Is(err, errutil.StatusNotFound), err)
}
