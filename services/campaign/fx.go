package campaign

import (
	"adcampaign-controlplane/pkg/db"

	"go.uber.org/fx"
)

// DependentsGroup collects the DependentCounter implementations consulted
// before a campaign is deleted.
const DependentsGroup = `group:"campaign.dependents"`

var Module = fx.Module("campaign.module",
	fx.Provide(
		NewStore,
		NewService,
	),
	db.RegisterModels(&Campaign{}),
)

var Gateway = fx.Module("campaign.gateway",
	fx.Invoke(registerRoutes),
)
