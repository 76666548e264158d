package core

import "time"

// Entity is the durable target of committed jobs (a persona, for example).
// ActiveVersionID is moved only after the version row it points to is written.
type Entity struct {
	ID              string    `gorm:"primaryKey;size:36"`
	Name            string    `gorm:"size:255;not null"`
	Slug            string    `gorm:"uniqueIndex;size:255;not null"`
	ActiveVersionID *string   `gorm:"size:36"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// EntityVersion is an append-only snapshot of a committed document.
type EntityVersion struct {
	ID        string     `gorm:"primaryKey;size:36"`
	EntityID  string     `gorm:"size:36;not null;uniqueIndex:idx_entity_version,priority:1"`
	VersionNo int        `gorm:"not null;uniqueIndex:idx_entity_version,priority:2"`
	JobID     *string    `gorm:"size:36;uniqueIndex"`
	Kind      JobKind    `gorm:"size:20"`
	Document  []byte     `gorm:"type:bytes;not null"`
	Reason    string     `gorm:"type:text"`
	IndexedAt *time.Time `gorm:"index"` // nil while the memory index write is outstanding
	CreatedAt time.Time  `gorm:"autoCreateTime"`
}
