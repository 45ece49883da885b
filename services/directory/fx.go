package directory

import (
	"adcampaign-controlplane/pkg/db"

	"go.uber.org/fx"
)

var Module = fx.Module("directory.module",
	fx.Provide(NewService),
	db.RegisterModels(&Company{}, &User{}),
)

var Gateway = fx.Module("directory.gateway",
	fx.Invoke(registerRoutes),
)
