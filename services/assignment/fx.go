package assignment

import (
	"adcampaign-controlplane/pkg/db"
	"adcampaign-controlplane/services/campaign"

	"go.uber.org/fx"
)

var Module = fx.Module("assignment.module",
	fx.Provide(
		NewRegistry,
		func(r *Registry) campaign.AssignmentChecker { return r },
		fx.Annotate(
			func(r *Registry) campaign.DependentCounter { return r },
			fx.ResultTags(campaign.DependentsGroup),
		),
	),
	db.RegisterModels(&CampaignAssignment{}),
)

var Gateway = fx.Module("assignment.gateway",
	fx.Invoke(registerRoutes),
)
