package audit

import (
	"context"
	"encoding/json"
	"time"

	"adcampaign-controlplane/pkg/logger"
	"adcampaign-controlplane/pkg/task"
	"adcampaign-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const enqueueTimeout = 2 * time.Second

type taskEmitter struct {
	enq task.Enqueuer
	now func() time.Time
}

// NewEmitter enqueues events on the audit queue for the worker to persist.
func NewEmitter(enq task.Enqueuer) Emitter {
	return &taskEmitter{enq: enq, now: time.Now}
}

func (e *taskEmitter) Emit(ctx context.Context, ev Event) {
	log := logger.FromContext(ctx).With(
		zap.String("action", ev.Action),
		zap.String("resource_type", ev.ResourceType),
		zap.Int64("resource_id", ev.ResourceID),
	)

	record, err := newRecord(ev, e.now())
	if err != nil {
		log.Error("audit event not serialisable", zap.Error(err))
		return
	}

	payload, err := json.Marshal(record)
	if err != nil {
		log.Error("audit payload not serialisable", zap.Error(err))
		return
	}

	// The request may be cancelled right after the response is written; the
	// event still has to go out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	t := asynq.NewTask(taskname.AuditRecord, payload, asynq.Queue(taskname.QueueAudit), asynq.MaxRetry(5))
	if _, err := e.enq.Enqueue(ctx, t); err != nil {
		log.Error("failed to enqueue audit event", zap.Error(err))
	}
}
