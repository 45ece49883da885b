package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"adcampaign-controlplane/pkg/config"
	"adcampaign-controlplane/pkg/db"
	"adcampaign-controlplane/pkg/gen"
	"adcampaign-controlplane/pkg/hashistack/secretmanager"
	"adcampaign-controlplane/pkg/logger"
	"adcampaign-controlplane/pkg/otelcol"
	"adcampaign-controlplane/pkg/task"
	"adcampaign-controlplane/services/audit"
)

// The worker drains the audit queue into audit_logs.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		gen.Module,
		task.Server,
		audit.Worker,
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}
