package assignment

import (
	"context"
	"time"

	"adcampaign-controlplane/pkg/db/option"
	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/pkg/logger"
	"adcampaign-controlplane/pkg/repository"
	"adcampaign-controlplane/services/access"
	"adcampaign-controlplane/services/audit"
	"adcampaign-controlplane/services/campaign"
	"adcampaign-controlplane/services/directory"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("adcampaign-controlplane/services/assignment")

// Registry owns contractor assignments.
type Registry struct {
	db        *gorm.DB
	node      *snowflake.Node
	evaluator *access.Evaluator
	directory *directory.Service
	campaigns *campaign.Store
	emitter   audit.Emitter
	repo      repository.Repository[CampaignAssignment]
	now       func() time.Time
}

type RegistryParams struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Evaluator *access.Evaluator
	Directory *directory.Service
	Campaigns *campaign.Store
	Emitter   audit.Emitter
}

func NewRegistry(p RegistryParams) *Registry {
	return &Registry{
		db:        p.DB,
		node:      p.Node,
		evaluator: p.Evaluator,
		directory: p.Directory,
		campaigns: p.Campaigns,
		emitter:   p.Emitter,
		repo:      repository.ProvideStore[CampaignAssignment](p.DB),
		now:       time.Now,
	}
}

func pair(campaignID, contractorID int64) []option.QueryOption {
	return []option.QueryOption{
		option.WithWhere("campaign_id = ? AND contractor_id = ?", campaignID, contractorID),
	}
}

// IsAssigned reports whether contractorID holds an assignment on campaignID.
func (r *Registry) IsAssigned(ctx context.Context, campaignID, contractorID int64) (bool, error) {
	n, err := r.repo.Count(ctx, nil, pair(campaignID, contractorID)...)
	if err != nil {
		return false, errutil.FromDB("failed to check assignment", err)
	}
	return n > 0, nil
}

// AssignedCampaignIDs lists the campaigns a contractor is assigned to.
func (r *Registry) AssignedCampaignIDs(ctx context.Context, contractorID int64) ([]int64, error) {
	rows, err := r.repo.Find(ctx, nil, option.WithWhere("contractor_id = ?", contractorID))
	if err != nil {
		return nil, errutil.FromDB("failed to list assignments", err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.CampaignID)
	}
	return ids, nil
}

// CountDependents counts the assignments that keep a campaign from being
// deleted.
func (r *Registry) CountDependents(ctx context.Context, campaignID int64) (int64, error) {
	n, err := r.repo.Count(ctx, nil, option.WithWhere("campaign_id = ?", campaignID))
	if err != nil {
		return 0, errutil.FromDB("failed to count assignments", err)
	}
	return n, nil
}

// authorize loads the campaign and evaluates action on its assignments.
func (r *Registry) authorize(ctx context.Context, actor access.Identity, action access.Action, campaignID int64) (*campaign.Campaign, error) {
	c, err := r.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	assigned := false
	if actor.Role == access.RoleContractor {
		if assigned, err = r.IsAssigned(ctx, c.ID, actor.UserID); err != nil {
			return nil, err
		}
	}

	d := r.evaluator.Can(actor, action, c.Target(access.ResourceAssignment, assigned))
	if err := d.Err("not allowed to " + string(action) + " on this campaign"); err != nil {
		return nil, err
	}
	return c, nil
}

// Assign grants contractorID access to campaignID. A second identical call
// fails with Conflict.
func (r *Registry) Assign(ctx context.Context, actor access.Identity, campaignID, contractorID int64) (*CampaignAssignment, error) {
	ctx, span := tracer.Start(ctx, "assignment.Assign", trace.WithAttributes(
		attribute.Int64("campaign_id", campaignID),
		attribute.Int64("contractor_id", contractorID),
	))
	defer span.End()

	if _, err := r.authorize(ctx, actor, access.ActionAssign, campaignID); err != nil {
		return nil, err
	}
	if _, err := r.directory.ActiveContractor(ctx, contractorID); err != nil {
		return nil, err
	}

	a := &CampaignAssignment{
		ID:           r.node.Generate().Int64(),
		CampaignID:   campaignID,
		ContractorID: contractorID,
		AssignedBy:   actor.UserID,
		AssignedAt:   r.now().UTC(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := r.repo.WithTrx(tx)

		existing, err := repo.FindOne(ctx, nil, pair(campaignID, contractorID)...)
		if err != nil {
			return errutil.FromDB("failed to check assignment", err)
		}
		if existing != nil {
			return errutil.Conflict("contractor is already assigned to this campaign", nil)
		}

		if err := repo.Create(ctx, a); err != nil {
			if errutil.IsUniqueViolation(err) {
				return errutil.Conflict("contractor is already assigned to this campaign", err)
			}
			if errutil.IsForeignKeyViolation(err) {
				return errutil.NotFound("campaign not found", err)
			}
			return errutil.FromDB("failed to create assignment", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("contractor assigned",
		zap.Int64("campaign_id", campaignID),
		zap.Int64("contractor_id", contractorID),
		zap.Int64("actor_id", actor.UserID),
	)

	r.emitter.Emit(ctx, audit.Event{
		ActorID:      actor.UserID,
		Action:       string(access.ActionAssign),
		ResourceType: string(access.ResourceAssignment),
		ResourceID:   a.ID,
		NewValue:     a,
	})

	return a, nil
}

// Remove revokes an assignment. Images the contractor already uploaded stay.
func (r *Registry) Remove(ctx context.Context, actor access.Identity, campaignID, contractorID int64) error {
	ctx, span := tracer.Start(ctx, "assignment.Remove", trace.WithAttributes(
		attribute.Int64("campaign_id", campaignID),
		attribute.Int64("contractor_id", contractorID),
	))
	defer span.End()

	if _, err := r.authorize(ctx, actor, access.ActionUnassign, campaignID); err != nil {
		return err
	}

	var removed *CampaignAssignment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := r.repo.WithTrx(tx)

		existing, err := repo.FindOne(ctx, nil, pair(campaignID, contractorID)...)
		if err != nil {
			return errutil.FromDB("failed to load assignment", err)
		}
		if existing == nil {
			return errutil.NotFound("assignment not found", nil)
		}

		if err := repo.Delete(ctx, existing.ID); err != nil {
			return errutil.FromDB("failed to remove assignment", err)
		}
		removed = existing
		return nil
	})
	if err != nil {
		return err
	}

	r.emitter.Emit(ctx, audit.Event{
		ActorID:      actor.UserID,
		Action:       string(access.ActionUnassign),
		ResourceType: string(access.ResourceAssignment),
		ResourceID:   removed.ID,
		OldValue:     removed,
	})
	return nil
}

// List returns the assignments of a campaign the caller can see.
func (r *Registry) List(ctx context.Context, actor access.Identity, campaignID int64) ([]*CampaignAssignment, error) {
	if _, err := r.authorize(ctx, actor, access.ActionList, campaignID); err != nil {
		return nil, err
	}

	rows, err := r.repo.Find(ctx, nil,
		option.WithWhere("campaign_id = ?", campaignID),
		option.WithOrder("assigned_at ASC, id ASC"),
	)
	if err != nil {
		return nil, errutil.FromDB("failed to list assignments", err)
	}
	return rows, nil
}
