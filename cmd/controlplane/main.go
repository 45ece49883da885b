package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"adcampaign-controlplane/pkg/config"
	"adcampaign-controlplane/pkg/db"
	"adcampaign-controlplane/pkg/featureflags"
	"adcampaign-controlplane/pkg/gen"
	"adcampaign-controlplane/pkg/hashistack/secretmanager"
	"adcampaign-controlplane/pkg/health"
	"adcampaign-controlplane/pkg/httpapi"
	"adcampaign-controlplane/pkg/logger"
	"adcampaign-controlplane/pkg/minio"
	"adcampaign-controlplane/pkg/otelcol"
	"adcampaign-controlplane/pkg/profiling"
	"adcampaign-controlplane/pkg/redis"
	"adcampaign-controlplane/pkg/sequence"
	"adcampaign-controlplane/pkg/server"
	"adcampaign-controlplane/pkg/task"
	"adcampaign-controlplane/services/access"
	"adcampaign-controlplane/services/assignment"
	"adcampaign-controlplane/services/audit"
	"adcampaign-controlplane/services/campaign"
	"adcampaign-controlplane/services/directory"
	"adcampaign-controlplane/services/image"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		task.Client,
		minio.Client,
		featureflags.Module,
		health.Module,
		httpapi.Module,

		access.Module,
		audit.Module,
		directory.Module,
		directory.Gateway,
		campaign.Module,
		campaign.Gateway,
		assignment.Module,
		assignment.Gateway,
		image.Module,
		image.Gateway,

		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, l *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: l.Named("fx")}
	}
	return fxevent.NopLogger
})
