package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mpislabs/draftflow/pkg/core"
)

// FindSource returns the source a job recorded for (channel, ref), or nil.
func (s *GormStorage) FindSource(ctx context.Context, jobID string, channel core.Channel, ref string) (*core.Source, error) {
	var src core.Source
	err := s.db.WithContext(ctx).
		First(&src, "job_id = ? AND channel = ? AND ref = ?", jobID, channel, ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// HashRecorded reports whether hash was already imported for the owning entity.
func (s *GormStorage) HashRecorded(ctx context.Context, ownerEntityID, hash string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.Source{}).
		Where("owner_entity_id = ? AND dedup_hash = ?", ownerEntityID, hash).
		Count(&count).Error
	return count > 0, err
}

// SaveSource inserts src, or overwrites it when it already has an ID.
// A violated origin or dedup constraint returns core.ErrDuplicateSource.
func (s *GormStorage) SaveSource(ctx context.Context, src *core.Source) error {
	db := s.db.WithContext(ctx)
	var err error
	if src.ID == "" {
		src.ID = uuid.New().String()
		err = db.Create(src).Error
		if err != nil {
			src.ID = ""
		}
	} else {
		err = db.Save(src).Error
	}
	if isDuplicate(err) {
		return fmt.Errorf("%w: %s %s", core.ErrDuplicateSource, src.Channel, src.Ref)
	}
	return err
}

// ListSources returns a job's sources in insertion order.
func (s *GormStorage) ListSources(ctx context.Context, jobID string) ([]*core.Source, error) {
	var sources []*core.Source
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC, id ASC").
		Find(&sources).Error
	return sources, err
}

// CreateEntity inserts an entity. A taken slug returns core.ErrSlugTaken.
func (s *GormStorage) CreateEntity(ctx context.Context, entity *core.Entity) error {
	if entity.ID == "" {
		entity.ID = uuid.New().String()
	}
	err := s.db.WithContext(ctx).Create(entity).Error
	if isDuplicate(err) {
		return fmt.Errorf("%w: %s", core.ErrSlugTaken, entity.Slug)
	}
	return err
}

// GetEntity retrieves an entity by ID.
func (s *GormStorage) GetEntity(ctx context.Context, entityID string) (*core.Entity, error) {
	var entity core.Entity
	err := s.db.WithContext(ctx).First(&entity, "id = ?", entityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrEntityNotFound, entityID)
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// FindEntityBySlug returns the entity with slug, or nil.
func (s *GormStorage) FindEntityBySlug(ctx context.Context, slug string) (*core.Entity, error) {
	var entity core.Entity
	err := s.db.WithContext(ctx).First(&entity, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

// ListVersions returns an entity's versions in version order.
func (s *GormStorage) ListVersions(ctx context.Context, entityID string) ([]*core.EntityVersion, error) {
	var versions []*core.EntityVersion
	err := s.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("version_no ASC").
		Find(&versions).Error
	return versions, err
}

// GetVersionByJob returns the version committed by jobID, or nil.
func (s *GormStorage) GetVersionByJob(ctx context.Context, jobID string) (*core.EntityVersion, error) {
	var v core.EntityVersion
	err := s.db.WithContext(ctx).First(&v, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
