package core

import (
	"time"
)

// JobKind identifies which approval flow a job runs through.
type JobKind string

const (
	KindPersona    JobKind = "persona"    // Persona generation from collected sources
	KindReflection JobKind = "reflection" // Periodic reflection cycle over recent events
	KindContent    JobKind = "content"    // Content drafting for a publishing plan
)

// Valid reports whether k is one of the known job kinds.
func (k JobKind) Valid() bool {
	switch k {
	case KindPersona, KindReflection, KindContent:
		return true
	}
	return false
}

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusQueued            JobStatus = "queued"
	StatusCollecting        JobStatus = "collecting"
	StatusProcessing        JobStatus = "processing"
	StatusAwaitingApproval  JobStatus = "awaiting_approval"
	StatusCommitted         JobStatus = "committed"
	StatusCommittedDegraded JobStatus = "committed_degraded" // Stored, index write outstanding
	StatusFailed            JobStatus = "failed"
)

// Job is one execution of the collect, generate, approve, commit pipeline.
type Job struct {
	ID             string     `gorm:"primaryKey;size:36"`
	Kind           JobKind    `gorm:"index;size:20;not null"`
	TargetName     string     `gorm:"size:255;not null"`
	TargetEntityID string     `gorm:"index;size:36;not null"` // Dedup scope for sources
	Input          []byte     `gorm:"type:bytes"`
	Status         JobStatus  `gorm:"index;size:30;not null;default:'queued'"`
	DraftNo        int        `gorm:"not null;default:0"`
	ResultEntityID *string    `gorm:"index;size:36"` // Set only once committed
	Reason         string     `gorm:"type:text"`
	LockedBy       string     `gorm:"size:255;not null;default:''"` // Worker lease owner or commit claim
	LockedUntil    *time.Time `gorm:"index"`
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime"`
}

// Committed reports whether the job reached one of the committed variants.
func (j *Job) Committed() bool {
	return j.Status == StatusCommitted || j.Status == StatusCommittedDegraded
}

// Draft is an immutable candidate artifact for a job.
// Edits never update a draft; they insert draft_no + 1.
type Draft struct {
	JobID        string    `gorm:"primaryKey;size:36"`
	DraftNo      int       `gorm:"primaryKey;autoIncrement:false"`
	Document     []byte    `gorm:"type:bytes;not null"`
	ReviewPrompt string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// Progress is a coarse, human-facing view of a job's position in the pipeline.
type Progress struct {
	Stage   JobStatus `json:"stage"`
	Percent int       `json:"percent"`
	Message string    `json:"message"`
}

// ProgressOf maps a job status to its progress view.
func ProgressOf(status JobStatus) Progress {
	p := Progress{Stage: status}
	switch status {
	case StatusQueued:
		p.Percent, p.Message = 0, "Queued"
	case StatusCollecting:
		p.Percent, p.Message = 20, "Collecting sources"
	case StatusProcessing:
		p.Percent, p.Message = 50, "Generating draft"
	case StatusAwaitingApproval:
		p.Percent, p.Message = 80, "Awaiting human approval"
	case StatusCommitted:
		p.Percent, p.Message = 100, "Completed"
	case StatusCommittedDegraded:
		p.Percent, p.Message = 100, "Completed (memory index sync pending)"
	case StatusFailed:
		p.Percent, p.Message = 0, "Failed"
	default:
		p.Message = "Unknown"
	}
	return p
}
