package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"adcampaign-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Handler persists audit:record tasks.
type Handler struct {
	node *snowflake.Node
	logs repository.Repository[AuditLog]
}

type HandlerParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		node: p.Node,
		logs: repository.ProvideStore[AuditLog](p.DB),
	}
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var r Record
	if err := json.Unmarshal(t.Payload(), &r); err != nil {
		// A malformed payload never becomes valid; do not retry it.
		return fmt.Errorf("decode audit record: %v: %w", err, asynq.SkipRetry)
	}

	row := &AuditLog{
		ID:           h.node.Generate().Int64(),
		ActorID:      r.ActorID,
		Action:       r.Action,
		ResourceType: r.ResourceType,
		ResourceID:   r.ResourceID,
		OldValue:     jsonOrNull(r.OldValue),
		NewValue:     jsonOrNull(r.NewValue),
		CreatedAt:    r.OccurredAt,
	}

	if err := h.logs.Create(ctx, row); err != nil {
		zap.L().Error("failed to persist audit record", zap.String("action", r.Action), zap.Error(err))
		return err
	}
	return nil
}

func jsonOrNull(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(raw)
}
