package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mpislabs/draftflow/pkg/llm"
)

// Section is an indexed top-level member of a committed version.
type Section struct {
	ID        string          `gorm:"primaryKey;size:36"`
	EntityID  string          `gorm:"index;size:36;not null"`
	VersionID string          `gorm:"size:36;not null;uniqueIndex:idx_memory_section,priority:1"`
	Key       string          `gorm:"column:section_key;size:255;not null;uniqueIndex:idx_memory_section,priority:2"`
	Kind      string          `gorm:"size:20"`
	Content   string          `gorm:"type:text;not null"`
	Embedding pgvector.Vector `gorm:"type:vector"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

func (Section) TableName() string { return "memory_sections" }

// SourceChunk is an indexed slice of an ingested source.
type SourceChunk struct {
	ID            string          `gorm:"primaryKey;size:36"`
	OwnerEntityID string          `gorm:"index;size:36;not null"`
	SourceID      string          `gorm:"size:36;not null;uniqueIndex:idx_memory_chunk,priority:1"`
	ChunkIndex    int             `gorm:"not null;uniqueIndex:idx_memory_chunk,priority:2"`
	Channel       string          `gorm:"size:20"`
	Content       string          `gorm:"type:text;not null"`
	Embedding     pgvector.Vector `gorm:"type:vector"`
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime"`
}

func (SourceChunk) TableName() string { return "memory_chunks" }

// Match is a search hit.
type Match struct {
	Key      string
	Content  string
	Distance float64
}

// PGVectorIndex keeps embeddings in PostgreSQL through the pgvector extension.
type PGVectorIndex struct {
	db       *gorm.DB
	embedder llm.Embedder
	logger   *slog.Logger
}

// NewPGVectorIndex creates an index over db. Call Migrate before first use.
func NewPGVectorIndex(db *gorm.DB, embedder llm.Embedder) *PGVectorIndex {
	return &PGVectorIndex{db: db, embedder: embedder, logger: slog.Default()}
}

// Migrate enables the vector extension and creates the index tables.
func (p *PGVectorIndex) Migrate(ctx context.Context) error {
	db := p.db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("enable pgvector: %w", err)
		}
	}
	return db.AutoMigrate(&Section{}, &SourceChunk{})
}

// IndexVersion embeds every section of e and upserts it by (version, key).
func (p *PGVectorIndex) IndexVersion(ctx context.Context, e Entry) error {
	if len(e.Sections) == 0 {
		return nil
	}
	texts := make([]string, len(e.Sections))
	for i, s := range e.Sections {
		texts[i] = s.Key + ": " + s.Text
	}
	vectors, err := p.embed(ctx, texts)
	if err != nil {
		return err
	}

	rows := make([]Section, len(e.Sections))
	for i, s := range e.Sections {
		rows[i] = Section{
			ID:        uuid.New().String(),
			EntityID:  e.EntityID,
			VersionID: e.VersionID,
			Key:       s.Key,
			Kind:      string(e.Kind),
			Content:   s.Text,
			Embedding: pgvector.NewVector(vectors[i]),
		}
	}
	err = p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "version_id"}, {Name: "section_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "embedding", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("upsert sections: %w", err)
	}
	p.logger.Debug("indexed version", "entity_id", e.EntityID, "version_id", e.VersionID, "sections", len(rows))
	return nil
}

// UpsertChunks embeds chunks and upserts them by (source, index).
func (p *PGVectorIndex) UpsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embed(ctx, texts)
	if err != nil {
		return err
	}

	rows := make([]SourceChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = SourceChunk{
			ID:            uuid.New().String(),
			OwnerEntityID: c.OwnerEntityID,
			SourceID:      c.SourceID,
			ChunkIndex:    c.Index,
			Channel:       string(c.Channel),
			Content:       c.Text,
			Embedding:     pgvector.NewVector(vectors[i]),
		}
	}
	err = p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "chunk_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "embedding", "updated_at"}),
	}).CreateInBatches(&rows, 100).Error
	if err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

// Search returns the limit sections of entityID closest to query by cosine
// distance. It needs PostgreSQL.
func (p *PGVectorIndex) Search(ctx context.Context, entityID, query string, limit int) ([]Match, error) {
	vectors, err := p.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	var out []Match
	err = p.db.WithContext(ctx).Model(&Section{}).
		Select("section_key AS key, content, embedding <=> ? AS distance", pgvector.NewVector(vectors[0])).
		Where("entity_id = ?", entityID).
		Order("distance").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("search sections: %w", err)
	}
	return out, nil
}

func (p *PGVectorIndex) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %v", ErrUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts", ErrUnavailable, len(vectors), len(texts))
	}
	return vectors, nil
}
