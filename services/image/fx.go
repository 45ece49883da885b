package image

import (
	"adcampaign-controlplane/pkg/db"
	"adcampaign-controlplane/services/campaign"

	"go.uber.org/fx"
)

var Module = fx.Module("image.module",
	fx.Provide(
		NewService,
		fx.Annotate(
			func(s *Service) campaign.DependentCounter { return s },
			fx.ResultTags(campaign.DependentsGroup),
		),
	),
	db.RegisterModels(&Image{}),
)

var Gateway = fx.Module("image.gateway",
	fx.Invoke(registerRoutes),
)
