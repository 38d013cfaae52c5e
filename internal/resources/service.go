// Package resources manages user file and voice-note storage: metadata
// rows in the database, payloads in the blob container. Every successful
// mutation bumps the file-change watermark that feeds the reindex task.
package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/projectbrain/backend/internal/database/models"
	"github.com/projectbrain/backend/internal/reindex"
	"github.com/projectbrain/backend/internal/storage"
	"gorm.io/gorm"
)

var ErrResourceNotFound = errors.New("resource not found")

type Service struct {
	db     *gorm.DB
	store  storage.BlobStore
	logger *slog.Logger
}

func NewService(db *gorm.DB, store storage.BlobStore, logger *slog.Logger) *Service {
	return &Service{db: db, store: store, logger: logger}
}

// Upload stores the payload and creates the metadata row.
func (s *Service) Upload(ctx context.Context, userID uuid.UUID, kind models.ResourceKind, name, contentType string, data []byte) (*models.Resource, error) {
	resource := &models.Resource{
		UserID:      userID,
		Kind:        kind,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		BlobKey:     fmt.Sprintf("%s/%s", userID, uuid.New()),
	}

	if err := s.store.Upload(ctx, resource.BlobKey, data, contentType); err != nil {
		return nil, fmt.Errorf("storing resource payload: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(resource).Error; err != nil {
		// Orphaned blob; cheap to remove now rather than leak it.
		if derr := s.store.Delete(ctx, resource.BlobKey); derr != nil {
			s.logger.Warn("failed to remove orphaned blob", "key", resource.BlobKey, "error", derr)
		}
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	s.markFileChange(ctx)
	return resource, nil
}

// Download returns the metadata row and payload for an owned resource.
func (s *Service) Download(ctx context.Context, userID, resourceID uuid.UUID) (*models.Resource, []byte, error) {
	resource, err := s.get(ctx, userID, resourceID)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.store.Download(ctx, resource.BlobKey)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, nil, ErrResourceNotFound
		}
		return nil, nil, fmt.Errorf("downloading resource payload: %w", err)
	}
	return resource, data, nil
}

// List returns the metadata rows for all of a user's resources.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Resource, error) {
	var out []models.Resource
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	return out, nil
}

// Delete removes the blob and the metadata row. A missing blob does not
// block removal of the row.
func (s *Service) Delete(ctx context.Context, userID, resourceID uuid.UUID) error {
	resource, err := s.get(ctx, userID, resourceID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, resource.BlobKey); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		return fmt.Errorf("deleting resource payload: %w", err)
	}

	if err := s.db.WithContext(ctx).Delete(resource).Error; err != nil {
		return fmt.Errorf("deleting resource: %w", err)
	}

	s.markFileChange(ctx)
	return nil
}

// DeleteAllForUser removes every resource a user owns. Individual blob
// failures are collected, not fatal: callers treat storage cleanup as a
// best-effort side effect of account deletion.
func (s *Service) DeleteAllForUser(ctx context.Context, userID uuid.UUID) error {
	var rows []models.Resource
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return fmt.Errorf("listing resources for cleanup: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	var errs []error
	for _, resource := range rows {
		if err := s.store.Delete(ctx, resource.BlobKey); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
			errs = append(errs, fmt.Errorf("blob %s: %w", resource.BlobKey, err))
			continue
		}
		if err := s.db.WithContext(ctx).Delete(&resource).Error; err != nil {
			errs = append(errs, fmt.Errorf("resource %s: %w", resource.ID, err))
		}
	}

	s.markFileChange(ctx)
	return errors.Join(errs...)
}

func (s *Service) get(ctx context.Context, userID, resourceID uuid.UUID) (*models.Resource, error) {
	var resource models.Resource
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", resourceID, userID).
		First(&resource).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading resource: %w", err)
	}
	return &resource, nil
}

// markFileChange failures are logged, never propagated: the watermark is
// an optimization for the indexing pipeline, not part of the user-facing
// operation.
func (s *Service) markFileChange(ctx context.Context) {
	if err := reindex.MarkFileChange(ctx, s.store, time.Now()); err != nil {
		s.logger.Warn("failed to bump file-change watermark", "error", err)
	}
}
