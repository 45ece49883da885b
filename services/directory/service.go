package directory

import (
	"context"
	"strings"

	"adcampaign-controlplane/pkg/db/option"
	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/pkg/repository"
	"adcampaign-controlplane/services/access"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	node *snowflake.Node

	company repository.Repository[Company]
	user    repository.Repository[User]
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:    p.Node,
		company: repository.ProvideStore[Company](p.DB),
		user:    repository.ProvideStore[User](p.DB),
	}
}

// Company returns the company or NotFound.
func (s *Service) Company(ctx context.Context, id int64) (*Company, error) {
	c, err := s.company.FindOne(ctx, nil, option.ByID(id))
	if err != nil {
		zap.L().Error("failed to load company", zap.Int64("company_id", id), zap.Error(err))
		return nil, errutil.FromDB("failed to load company", err)
	}
	if c == nil {
		return nil, errutil.NotFound("company not found", nil)
	}
	return c, nil
}

// ActiveCompany is Company plus Conflict when the tenant is deactivated.
func (s *Service) ActiveCompany(ctx context.Context, id int64) (*Company, error) {
	c, err := s.Company(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, errutil.Conflict("company is inactive", nil)
	}
	return c, nil
}

// ActiveContractor returns the user when it is an active contractor.
// Any other user is reported as NotFound.
func (s *Service) ActiveContractor(ctx context.Context, id int64) (*User, error) {
	u, err := s.user.FindOne(ctx, nil, option.ByID(id))
	if err != nil {
		return nil, errutil.FromDB("failed to load user", err)
	}
	if u == nil || !u.IsActive || u.Role != string(access.RoleContractor) {
		return nil, errutil.NotFound("contractor not found", nil)
	}
	return u, nil
}

// CreateCompany registers a tenant. Only global staff may do this.
func (s *Service) CreateCompany(ctx context.Context, actor access.Identity, name string) (*Company, error) {
	if actor.Role != access.RoleStaff || actor.CompanyID != nil {
		return nil, errutil.Forbidden("only global staff may create companies", nil,
			errutil.WithReason(errutil.ReasonNotPermitted))
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errutil.ValidationFailed("company name is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "name", Message: "must not be blank"}))
	}

	c := &Company{ID: s.node.Generate().Int64(), Name: name, IsActive: true}
	if err := s.company.Create(ctx, c); err != nil {
		zap.L().Error("failed to create company", zap.Error(err))
		return nil, errutil.FromDB("failed to create company", err)
	}

	zap.L().Info("company created", zap.Int64("company_id", c.ID), zap.Int64("actor_id", actor.UserID))
	return c, nil
}
