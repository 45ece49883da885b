package campaign

import (
	"context"
	"strconv"
	"strings"
	"time"

	"adcampaign-controlplane/pkg/db/option"
	"adcampaign-controlplane/pkg/db/pagination"
	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/pkg/logger"
	"adcampaign-controlplane/pkg/sequence"
	"adcampaign-controlplane/services/access"
	"adcampaign-controlplane/services/audit"
	"adcampaign-controlplane/services/directory"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("adcampaign-controlplane/services/campaign")

// AssignmentChecker answers contractor visibility questions.
type AssignmentChecker interface {
	IsAssigned(ctx context.Context, campaignID, contractorID int64) (bool, error)
	AssignedCampaignIDs(ctx context.Context, contractorID int64) ([]int64, error)
}

// DependentCounter counts rows referencing a campaign. Any non-zero count
// blocks deletion.
type DependentCounter interface {
	CountDependents(ctx context.Context, campaignID int64) (int64, error)
}

type Service struct {
	db         *gorm.DB
	node       *snowflake.Node
	seq        sequence.Generator
	evaluator  *access.Evaluator
	directory  *directory.Service
	assigned   AssignmentChecker
	dependents []DependentCounter
	emitter    audit.Emitter
	store      *Store
	now        func() time.Time
}

type ServiceParams struct {
	fx.In

	DB         *gorm.DB
	Node       *snowflake.Node
	Seq        sequence.Generator
	Evaluator  *access.Evaluator
	Directory  *directory.Service
	Assigned   AssignmentChecker
	Dependents []DependentCounter `group:"campaign.dependents"`
	Emitter    audit.Emitter
	Store      *Store
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:         p.DB,
		node:       p.Node,
		seq:        p.Seq,
		evaluator:  p.Evaluator,
		directory:  p.Directory,
		assigned:   p.Assigned,
		dependents: p.Dependents,
		emitter:    p.Emitter,
		store:      p.Store,
		now:        time.Now,
	}
}

type CreateRequest struct {
	CompanyID   int64
	Name        string
	Description string
	StartDate   *time.Time
	EndDate     *time.Time
}

type UpdateRequest struct {
	Name        *string
	Description *string
	StartDate   *time.Time
	EndDate     *time.Time
}

type ListRequest struct {
	Status *Status
	pagination.Pagination
}

type ListResult struct {
	Campaigns []*Campaign          `json:"campaigns"`
	PageInfo  *pagination.PageInfo `json:"page_info"`
}

func validateDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return errutil.ValidationFailed("end_date is before start_date", nil,
			errutil.WithDetails(errutil.Detail{Field: "end_date", Message: "must not be before start_date"}))
	}
	return nil
}

// authorize loads the assignment state a contractor decision needs and
// evaluates the action.
func (s *Service) authorize(ctx context.Context, actor access.Identity, action access.Action, c *Campaign) error {
	assigned := false
	if actor.Role == access.RoleContractor {
		var err error
		if assigned, err = s.assigned.IsAssigned(ctx, c.ID, actor.UserID); err != nil {
			return err
		}
	}

	d := s.evaluator.Can(actor, action, c.Target(access.ResourceCampaign, assigned))
	return d.Err("not allowed to " + string(action) + " this campaign")
}

// Create opens a campaign in status new for an active company.
func (s *Service) Create(ctx context.Context, actor access.Identity, req CreateRequest) (*Campaign, error) {
	ctx, span := tracer.Start(ctx, "campaign.Create", trace.WithAttributes(attribute.Int64("company_id", req.CompanyID)))
	defer span.End()

	d := s.evaluator.Can(actor, access.ActionCreate, access.Target{Resource: access.ResourceCampaign, CompanyID: req.CompanyID})
	if err := d.Err("not allowed to create campaigns for this company"); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errutil.ValidationFailed("campaign name is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "name", Message: "must not be blank"}))
	}
	if err := validateDates(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	if _, err := s.directory.ActiveCompany(ctx, req.CompanyID); err != nil {
		return nil, err
	}

	code, err := s.seq.NextCampaignCode(ctx, req.CompanyID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to generate campaign code", zap.Error(err))
		return nil, errutil.Internal("failed to generate campaign code", err)
	}

	c := &Campaign{
		ID:          s.node.Generate().Int64(),
		CompanyID:   req.CompanyID,
		Code:        code,
		Name:        name,
		Slug:        slugFor(name, code),
		Description: strings.TrimSpace(req.Description),
		Status:      StatusNew,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		CreatedBy:   actor.UserID,
	}

	if err := s.store.Create(ctx, c); err != nil {
		logger.FromContext(ctx).Error("failed to create campaign", zap.Error(err))
		return nil, err
	}

	s.emitter.Emit(ctx, audit.Event{
		ActorID:      actor.UserID,
		Action:       string(access.ActionCreate),
		ResourceType: string(access.ResourceCampaign),
		ResourceID:   c.ID,
		NewValue:     c.snapshot(),
	})

	return c, nil
}

func slugFor(name, code string) string {
	if sl := slug.Make(name); sl != "" {
		return sl
	}
	return slug.Make(code)
}

// Get returns one campaign the caller may read.
func (s *Service) Get(ctx context.Context, actor access.Identity, id int64) (*Campaign, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, access.ActionRead, c); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns the campaigns inside the caller's scope, newest first. A
// caller without list rights gets an empty page rather than an error.
func (s *Service) List(ctx context.Context, actor access.Identity, req ListRequest) (*ListResult, error) {
	empty := &ListResult{Campaigns: []*Campaign{}, PageInfo: &pagination.PageInfo{}}

	if _, err := req.Pagination.AfterID(); err != nil {
		return nil, errutil.ValidationFailed("invalid cursor", err,
			errutil.WithDetails(errutil.Detail{Field: "cursor", Message: "malformed pagination cursor"}))
	}

	d := s.evaluator.ForList(actor, access.ResourceCampaign)
	if !d.Allowed {
		return empty, nil
	}

	opts, ok, err := s.scopeOptions(ctx, d.Scope)
	if err != nil {
		return nil, err
	}
	if !ok {
		return empty, nil
	}

	if req.Status != nil {
		opts = append(opts, option.WithWhere("status = ?", *req.Status))
	}

	page := req.Pagination.Normalize()
	rows, err := s.store.Find(ctx, append(opts, option.ApplyPagination(page))...)
	if err != nil {
		return nil, err
	}

	rows, info := pagination.Trim(rows, page.Limit, func(c *Campaign) pagination.Cursor {
		return pagination.Cursor{ID: strconv.FormatInt(c.ID, 10)}
	})
	return &ListResult{Campaigns: rows, PageInfo: info}, nil
}

// scopeOptions turns a scope into query options. ok is false when the scope
// matches nothing.
func (s *Service) scopeOptions(ctx context.Context, scope access.Scope) ([]option.QueryOption, bool, error) {
	switch scope.Kind {
	case access.ScopeAll:
		return nil, true, nil
	case access.ScopeCompany:
		return []option.QueryOption{option.WithWhere("company_id = ?", scope.CompanyID)}, true, nil
	case access.ScopeAssigned:
		ids, err := s.assigned.AssignedCampaignIDs(ctx, scope.ContractorID)
		if err != nil {
			return nil, false, err
		}
		if len(ids) == 0 {
			return nil, false, nil
		}
		return []option.QueryOption{option.WithWhere("id IN ?", ids)}, true, nil
	default:
		return nil, false, nil
	}
}

// Update edits the descriptive fields of a non-terminal campaign.
func (s *Service) Update(ctx context.Context, actor access.Identity, id int64, req UpdateRequest) (*Campaign, error) {
	ctx, span := tracer.Start(ctx, "campaign.Update", trace.WithAttributes(attribute.Int64("campaign_id", id)))
	defer span.End()

	before, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, access.ActionUpdate, before); err != nil {
		return nil, err
	}
	if before.Status.Terminal() {
		return nil, errutil.Conflict("campaign is "+string(before.Status)+" and can no longer be edited", nil)
	}

	values := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, errutil.ValidationFailed("campaign name is required", nil,
				errutil.WithDetails(errutil.Detail{Field: "name", Message: "must not be blank"}))
		}
		values["name"] = name
		values["slug"] = slugFor(name, before.Code)
	}
	if req.Description != nil {
		values["description"] = strings.TrimSpace(*req.Description)
	}

	start, end := before.StartDate, before.EndDate
	if req.StartDate != nil {
		start = req.StartDate
		values["start_date"] = *req.StartDate
	}
	if req.EndDate != nil {
		end = req.EndDate
		values["end_date"] = *req.EndDate
	}
	if err := validateDates(start, end); err != nil {
		return nil, err
	}

	if len(values) == 0 {
		return before, nil
	}

	var after *Campaign
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.store.WithTrx(tx)

		ok, err := store.UpdateFields(ctx, id, values)
		if err != nil {
			return err
		}
		if !ok {
			return errutil.Conflict("campaign changed state while being edited", nil)
		}

		after, err = store.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, audit.Event{
		ActorID:      actor.UserID,
		Action:       string(access.ActionUpdate),
		ResourceType: string(access.ResourceCampaign),
		ResourceID:   id,
		OldValue:     before.snapshot(),
		NewValue:     after.snapshot(),
	})

	return after, nil
}

// UpdateStatus moves the campaign along its lifecycle. Permission is checked
// before the transition itself, so a client asking for an impossible move is
// still Forbidden.
func (s *Service) UpdateStatus(ctx context.Context, actor access.Identity, id int64, to Status) (*Campaign, error) {
	ctx, span := tracer.Start(ctx, "campaign.UpdateStatus", trace.WithAttributes(
		attribute.Int64("campaign_id", id),
		attribute.String("to", string(to)),
	))
	defer span.End()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, access.ActionStatusChange, c); err != nil {
		return nil, err
	}
	if _, err := ParseStatus(string(to)); err != nil {
		return nil, statusError(string(to), err)
	}
	if !CanTransition(c.Status, to) {
		return nil, invalidTransition(c.Status, to)
	}

	var updated *Campaign
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.store.WithTrx(tx)

		ok, err := store.Transition(ctx, id, c.Status, to, s.now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			// Someone else moved it first; judge the request against the
			// state that won.
			current, err := store.Get(ctx, id)
			if err != nil {
				return err
			}
			return invalidTransition(current.Status, to)
		}

		updated, err = store.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("campaign status changed",
		zap.Int64("campaign_id", id),
		zap.String("from", string(c.Status)),
		zap.String("to", string(to)),
		zap.Int64("actor_id", actor.UserID),
	)

	s.emitter.Emit(ctx, audit.Event{
		ActorID:      actor.UserID,
		Action:       string(access.ActionStatusChange),
		ResourceType: string(access.ResourceCampaign),
		ResourceID:   id,
		OldValue:     map[string]Status{"status": c.Status},
		NewValue:     updated.snapshot(),
	})

	return updated, nil
}

func invalidTransition(from, to Status) error {
	return errutil.InvalidTransition("campaign cannot move from "+string(from)+" to "+string(to), nil,
		errutil.WithDetails(
			errutil.Detail{Field: "from", Message: string(from)},
			errutil.Detail{Field: "to", Message: string(to)},
		))
}

// Delete removes a campaign nothing references yet. Dependents created
// between the count and the delete are caught by the foreign keys.
func (s *Service) Delete(ctx context.Context, actor access.Identity, id int64) error {
	ctx, span := tracer.Start(ctx, "campaign.Delete", trace.WithAttributes(attribute.Int64("campaign_id", id)))
	defer span.End()

	c, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, access.ActionDelete, c); err != nil {
		return err
	}

	for _, counter := range s.dependents {
		n, err := counter.CountDependents(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return errutil.Conflict("campaign still has images or assignments", nil)
		}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errutil.Is(err, errutil.StatusConflict) {
			return errutil.Conflict("campaign still has images or assignments", err)
		}
		return err
	}

	s.emitter.Emit(ctx, audit.Event{
		ActorID:      actor.UserID,
		Action:       string(access.ActionDelete),
		ResourceType: string(access.ResourceCampaign),
		ResourceID:   id,
		OldValue:     c.snapshot(),
	})
	return nil
}
