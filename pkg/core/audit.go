package core

import "time"

// Audit event types.
const (
	AuditJobCreated         = "job.created"
	AuditSourcesDiscovered  = "sources.discovered"
	AuditSourcesFetched     = "sources.fetched"
	AuditCorpusChunked      = "corpus.chunked"
	AuditStatusChanged      = "job.status_changed"
	AuditDraftGenerated     = "draft.generated"
	AuditApprovalRequested  = "approval.requested"
	AuditApprovalApplied    = "approval.applied"
	AuditEntityCommitted    = "entity.committed"
	AuditEmbeddingsUpserted = "embeddings.upserted"
	AuditExportCompleted    = "export.completed"
	AuditJobFailed          = "job.failed"
	AuditRunAggregated      = "run.aggregated"
)

// AuditEvent is an append-only record of a notable state change.
type AuditEvent struct {
	ID        string         `gorm:"primaryKey;size:36"`
	JobID     *string        `gorm:"index;size:36"`
	EntityID  *string        `gorm:"index;size:36"`
	Type      string         `gorm:"index;size:64;not null"`
	Details   map[string]any `gorm:"serializer:json"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
}
