package audit

import (
	"adcampaign-controlplane/pkg/db"
	"adcampaign-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

// Module provides the Emitter used by the control plane.
var Module = fx.Module("audit.module",
	fx.Provide(NewEmitter),
)

// Worker persists enqueued events.
var Worker = fx.Module("audit.worker",
	fx.Provide(NewHandler),
	db.RegisterModels(&AuditLog{}),
	fx.Invoke(registerHandler),
)

func registerHandler(mux *asynq.ServeMux, h *Handler) {
	mux.Handle(taskname.AuditRecord, h)
}
