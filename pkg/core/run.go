package core

import "time"

// RunStatus is the aggregated result of a publish run.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	RunPartial RunStatus = "partial"
)

// PublishResult is the outcome of one channel publish attempt.
type PublishResult string

const (
	PublishSuccess PublishResult = "success"
	PublishFailed  PublishResult = "failed"
)

// Run is one batch of channel publish attempts.
type Run struct {
	ID               string     `gorm:"primaryKey;size:36"`
	ExpectedChannels []string   `gorm:"serializer:json"`
	Status           RunStatus  `gorm:"index;size:20;not null;default:'pending'"`
	Finalized        bool       `gorm:"index;not null;default:false"`
	Reason           string     `gorm:"type:text"`
	Deadline         *time.Time `gorm:"index"`
	CompletedAt      *time.Time
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// RunOutcome is one reported publish attempt, tagged by channel.
// The stored set for a run is always the last complete set supplied by the caller.
type RunOutcome struct {
	ID         string        `gorm:"primaryKey;size:36"`
	RunID      string        `gorm:"index;size:36;not null"`
	Channel    string        `gorm:"size:64;not null"`
	Result     PublishResult `gorm:"size:20;not null"`
	Detail     string        `gorm:"type:text"`
	ReportedAt time.Time
}
