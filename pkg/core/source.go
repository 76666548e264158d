package core

import "time"

// Channel names the adapter a source was collected through.
type Channel string

const (
	ChannelTranscript Channel = "transcript" // Video transcript (YouTube links)
	ChannelDocument   Channel = "document"   // Drive documents
	ChannelWeb        Channel = "web"        // Public web pages
	ChannelText       Channel = "text"       // Inline text supplied by the caller
)

// SourceOutcome is the recorded result of ingesting one source.
type SourceOutcome string

const (
	OutcomeOK               SourceOutcome = "ok"
	OutcomeFailedTranscript SourceOutcome = "failed_transcript"
	OutcomeFailedParse      SourceOutcome = "failed_parse"
	OutcomeSkippedDuplicate SourceOutcome = "skipped_duplicate"
)

// Failed reports whether the outcome is one of the failure variants.
func (o SourceOutcome) Failed() bool {
	return o == OutcomeFailedTranscript || o == OutcomeFailedParse
}

// Source records one ingested (or rejected) piece of material for a job.
//
// DedupHash is set only on ok rows and is unique per owning entity, so the
// storage layer rejects a second import of identical content.
type Source struct {
	ID            string        `gorm:"primaryKey;size:36"`
	JobID         string        `gorm:"size:36;not null;uniqueIndex:idx_source_origin,priority:1"`
	Channel       Channel       `gorm:"size:20;not null;uniqueIndex:idx_source_origin,priority:2"`
	Ref           string        `gorm:"size:1024;not null;uniqueIndex:idx_source_origin,priority:3"`
	OwnerEntityID string        `gorm:"size:36;not null;uniqueIndex:idx_source_dedup,priority:1"`
	DedupHash     *string       `gorm:"size:64;uniqueIndex:idx_source_dedup,priority:2"`
	ContentHash   string        `gorm:"size:64;index"`
	Outcome       SourceOutcome `gorm:"size:30;not null"`
	Detail        string        `gorm:"type:text"`
	Text          string        `gorm:"type:text"`
	CreatedAt     time.Time     `gorm:"autoCreateTime"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime"`
}
