package audit

import (
	"time"

	"gorm.io/datatypes"
)

type AuditLog struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement:false"`
	ActorID      int64          `gorm:"column:actor_id;index;not null"`
	Action       string         `gorm:"column:action;type:varchar(50);not null"`
	ResourceType string         `gorm:"column:resource_type;type:varchar(50);not null;index:idx_audit_resource"`
	ResourceID   int64          `gorm:"column:resource_id;not null;index:idx_audit_resource"`
	OldValue     datatypes.JSON `gorm:"column:old_value"`
	NewValue     datatypes.JSON `gorm:"column:new_value"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }
