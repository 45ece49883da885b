package image

import (
	"context"
	"strconv"
	"strings"
	"time"

	"adcampaign-controlplane/pkg/db/option"
	"adcampaign-controlplane/pkg/db/pagination"
	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/pkg/logger"
	"adcampaign-controlplane/pkg/repository"
	"adcampaign-controlplane/services/access"
	"adcampaign-controlplane/services/audit"
	"adcampaign-controlplane/services/campaign"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("adcampaign-controlplane/services/image")

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	evaluator *access.Evaluator
	campaigns *campaign.Store
	assigned  campaign.AssignmentChecker
	emitter   audit.Emitter
	repo      repository.Repository[Image]
	now       func() time.Time
}

type ServiceParams struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Evaluator *access.Evaluator
	Campaigns *campaign.Store
	Assigned  campaign.AssignmentChecker
	Emitter   audit.Emitter
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		evaluator: p.Evaluator,
		campaigns: p.Campaigns,
		assigned:  p.Assigned,
		emitter:   p.Emitter,
		repo:      repository.ProvideStore[Image](p.DB),
		now:       time.Now,
	}
}

type ListRequest struct {
	Status *Status
	pagination.Pagination
}

type ListResult struct {
	Images   []*Image             `json:"images"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

func (s *Service) decide(ctx context.Context, actor access.Identity, action access.Action, c *campaign.Campaign) (access.Decision, error) {
	assigned := false
	if actor.Role == access.RoleContractor {
		var err error
		if assigned, err = s.assigned.IsAssigned(ctx, c.ID, actor.UserID); err != nil {
			return access.Decision{}, err
		}
	}
	return s.evaluator.Can(actor, action, c.Target(access.ResourceImage, assigned)), nil
}

func (s *Service) authorize(ctx context.Context, actor access.Identity, action access.Action, c *campaign.Campaign) error {
	d, err := s.decide(ctx, actor, action, c)
	if err != nil {
		return err
	}
	if d.Reason == access.ReasonState {
		return errutil.Conflict("campaign is "+string(c.Status)+", uploads need an in_progress campaign", nil)
	}
	return d.Err("not allowed to " + string(action) + " images of this campaign")
}

func (s *Service) load(ctx context.Context, id int64) (*Image, error) {
	img, err := s.repo.FindOne(ctx, nil, option.ByID(id))
	if err != nil {
		return nil, errutil.FromDB("failed to load image", err)
	}
	if img == nil {
		return nil, errutil.NotFound("image not found", nil)
	}
	return img, nil
}

func validateDescriptor(f FileDescriptor) error {
	var details []errutil.Detail
	if strings.TrimSpace(f.Filename) == "" {
		details = append(details, errutil.Detail{Field: "filename", Message: "must not be blank"})
	}
	if strings.TrimSpace(f.Path) == "" {
		details = append(details, errutil.Detail{Field: "path", Message: "must not be blank"})
	}
	if f.Size < 0 {
		details = append(details, errutil.Detail{Field: "size", Message: "must not be negative"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid file descriptor", nil, errutil.WithDetails(details...))
	}
	return nil
}

// Upload records a new pending image for an assigned contractor on an
// in_progress campaign.
func (s *Service) Upload(ctx context.Context, actor access.Identity, campaignID int64, file FileDescriptor) (*Image, error) {
	ctx, span := tracer.Start(ctx, "image.Upload", trace.WithAttributes(attribute.Int64("campaign_id", campaignID)))
	defer span.End()

	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, access.ActionUpload, c); err != nil {
		return nil, err
	}
	if err := validateDescriptor(file); err != nil {
		return nil, err
	}

	img := &Image{
		ID:         s.node.Generate().Int64(),
		CampaignID: campaignID,
		UploadedBy: actor.UserID,
		Filename:   strings.TrimSpace(file.Filename),
		Path:       strings.TrimSpace(file.Path),
		Size:       file.Size,
		MimeType:   file.MimeType,
		Status:     StatusPending,
		UploadedAt: s.now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The campaign may have left in_progress since the check above.
		current, err := s.campaigns.WithTrx(tx).Get(ctx, campaignID)
		if err != nil {
			return err
		}
		if current.Status != campaign.StatusInProgress {
			return errutil.Conflict("campaign is "+string(current.Status)+", uploads need an in_progress campaign", nil)
		}

		if err := s.repo.WithTrx(tx).Create(ctx, img); err != nil {
			return errutil.FromDB("failed to store image", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, audit.Event{
		ActorID:      actor.UserID,
		Action:       string(access.ActionUpload),
		ResourceType: string(access.ResourceImage),
		ResourceID:   img.ID,
		NewValue:     img,
	})

	return img, nil
}

// Review approves or rejects a pending image. A second review of the same
// image fails with InvalidTransition.
func (s *Service) Review(ctx context.Context, actor access.Identity, imageID int64, decision, reason string) (*Image, error) {
	ctx, span := tracer.Start(ctx, "image.Review", trace.WithAttributes(
		attribute.Int64("image_id", imageID),
		attribute.String("decision", decision),
	))
	defer span.End()

	to, err := ParseDecision(decision)
	if err != nil {
		return nil, errutil.ValidationFailed("invalid review decision", err,
			errutil.WithDetails(errutil.Detail{Field: "decision", Message: decision}))
	}

	reason = strings.TrimSpace(reason)
	if to == StatusRejected && reason == "" {
		return nil, errutil.ValidationFailed("a rejection needs a reason", nil,
			errutil.WithDetails(errutil.Detail{Field: "reason", Message: "must not be blank"}))
	}

	img, err := s.load(ctx, imageID)
	if err != nil {
		return nil, err
	}
	c, err := s.campaigns.Get(ctx, img.CampaignID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, access.ActionReview, c); err != nil {
		return nil, err
	}
	if img.Status != StatusPending {
		return nil, invalidTransition(img.Status, to)
	}

	now := s.now().UTC()
	values := map[string]any{
		"status":           to,
		"reviewed_by":      actor.UserID,
		"reviewed_at":      now,
		"rejection_reason": nil,
	}
	if to == StatusRejected {
		values["rejection_reason"] = reason
	}

	var reviewed *Image
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Model(&Image{}).
			Where("id = ? AND status = ?", imageID, StatusPending).
			Updates(values)
		if res.Error != nil {
			return errutil.FromDB("failed to review image", res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost a race against another reviewer.
			return invalidTransition(StatusApproved+"/"+StatusRejected, to)
		}

		var err error
		reviewed, err = s.repo.WithTrx(tx).FindOne(ctx, nil, option.ByID(imageID))
		if err != nil {
			return errutil.FromDB("failed to load image", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("image reviewed",
		zap.Int64("image_id", imageID),
		zap.String("decision", string(to)),
		zap.Int64("actor_id", actor.UserID),
	)

	s.emitter.Emit(ctx, audit.Event{
		ActorID:      actor.UserID,
		Action:       string(access.ActionReview),
		ResourceType: string(access.ResourceImage),
		ResourceID:   imageID,
		OldValue:     img.reviewSnapshot(),
		NewValue:     reviewed.reviewSnapshot(),
	})

	return reviewed, nil
}

func invalidTransition(from, to Status) error {
	return errutil.InvalidTransition("image was already reviewed", nil,
		errutil.WithDetails(
			errutil.Detail{Field: "from", Message: string(from)},
			errutil.Detail{Field: "to", Message: string(to)},
		))
}

// Get returns one image the caller may read.
func (s *Service) Get(ctx context.Context, actor access.Identity, imageID int64) (*Image, error) {
	img, err := s.load(ctx, imageID)
	if err != nil {
		return nil, err
	}
	c, err := s.campaigns.Get(ctx, img.CampaignID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, access.ActionRead, c); err != nil {
		return nil, err
	}
	return img, nil
}

// List returns the images of a campaign, newest first. Campaigns outside the
// caller's scope, and campaigns that do not exist, yield an empty page.
func (s *Service) List(ctx context.Context, actor access.Identity, campaignID int64, req ListRequest) (*ListResult, error) {
	empty := &ListResult{Images: []*Image{}, PageInfo: &pagination.PageInfo{}}

	if _, err := req.Pagination.AfterID(); err != nil {
		return nil, errutil.ValidationFailed("invalid cursor", err,
			errutil.WithDetails(errutil.Detail{Field: "cursor", Message: "malformed pagination cursor"}))
	}

	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		if errutil.Is(err, errutil.StatusNotFound) {
			return empty, nil
		}
		return nil, err
	}

	d, err := s.decide(ctx, actor, access.ActionList, c)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return empty, nil
	}

	opts := []option.QueryOption{option.WithWhere("campaign_id = ?", campaignID)}
	if req.Status != nil {
		opts = append(opts, option.WithWhere("status = ?", *req.Status))
	}

	page := req.Pagination.Normalize()
	rows, err := s.repo.Find(ctx, nil, append(opts, option.ApplyPagination(page))...)
	if err != nil {
		return nil, errutil.FromDB("failed to list images", err)
	}

	rows, info := pagination.Trim(rows, page.Limit, func(i *Image) pagination.Cursor {
		return pagination.Cursor{ID: strconv.FormatInt(i.ID, 10)}
	})
	return &ListResult{Images: rows, PageInfo: info}, nil
}

// Summary counts a campaign's images per review status so staff can see
// unreviewed work before completing it.
func (s *Service) Summary(ctx context.Context, actor access.Identity, campaignID int64) (*Summary, error) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, access.ActionRead, c); err != nil {
		return nil, err
	}

	var rows []struct {
		Status Status
		Count  int64
	}
	if err := s.db.WithContext(ctx).Model(&Image{}).
		Select("status, COUNT(*) AS count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, errutil.FromDB("failed to summarise images", err)
	}

	out := &Summary{CampaignID: campaignID}
	for _, r := range rows {
		switch r.Status {
		case StatusPending:
			out.Pending = r.Count
		case StatusApproved:
			out.Approved = r.Count
		case StatusRejected:
			out.Rejected = r.Count
		}
		out.Total += r.Count
	}
	return out, nil
}

// CountDependents counts the images that keep a campaign from being deleted.
func (s *Service) CountDependents(ctx context.Context, campaignID int64) (int64, error) {
	n, err := s.repo.Count(ctx, nil, option.WithWhere("campaign_id = ?", campaignID))
	if err != nil {
		return 0, errutil.FromDB("failed to count images", err)
	}
	return n, nil
}
