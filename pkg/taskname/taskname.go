package taskname

const (
	// Audit tasks
	AuditRecord = "audit:record"
)

// Queues
const (
	QueueAudit   = "audit"
	QueueDefault = "default"
)
