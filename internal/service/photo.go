// Package service contains the business logic layer.
//
// This file implements the photo service for the garment catalogue.
package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/metrics"
	"github.com/mesura-app/mesura/internal/repository"
	"github.com/mesura-app/mesura/internal/storage"
	"github.com/mesura-app/mesura/internal/worker"
)

// photoURLTTL is how long presigned photo URLs stay valid.
const photoURLTTL = 15 * time.Minute

// PhotoService defines operations on the garment photo catalogue.
type PhotoService interface {
	// Upload validates and stores a photo, creates its database record,
	// and enqueues a background job to render the thumbnail.
	// Returns domain.EINVALID for unsupported types, domain.ETOOLARGE
	// for oversized files.
	Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader, params domain.UploadPhotoParams) (*domain.Photo, error)

	// GetByID retrieves a photo with resolved URLs.
	GetByID(ctx context.Context, id, accountID uuid.UUID) (*domain.Photo, error)

	// List returns a page of the account's photos, newest first, with
	// resolved URLs.
	List(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]domain.Photo, int64, error)

	// Delete removes a photo from storage and the database.
	Delete(ctx context.Context, id, accountID uuid.UUID) error
}

type photoService struct {
	queries *repository.Queries
	store   storage.Storage
	logger  *slog.Logger
}

// NewPhotoService creates a new PhotoService.
func NewPhotoService(queries *repository.Queries, store storage.Storage, logger *slog.Logger) PhotoService {
	return &photoService{
		queries: queries,
		store:   store,
		logger:  logger,
	}
}

func (s *photoService) Upload(ctx context.Context, file multipart.File, header *multipart.FileHeader, params domain.UploadPhotoParams) (*domain.Photo, error) {
	const op = "photo.upload"

	if header.Size > domain.MaxPhotoSize {
		metrics.PhotosUploaded.WithLabelValues("rejected").Inc()
		return nil, domain.Errorf(domain.ETOOLARGE, op, "Photo exceeds the %dMB size limit", domain.MaxPhotoSize/(1024*1024))
	}

	// A referenced order must belong to the same account
	if params.OrderID != nil {
		if _, err := s.queries.GetOrder(ctx, *params.OrderID, params.AccountID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.NotFound(op, "order", params.OrderID.String())
			}
			return nil, domain.Internal(err, op, "failed to verify order")
		}
	}

	// Sniff the real content type rather than trusting the header
	headerBytes := make([]byte, 512)
	n, err := file.Read(headerBytes)
	if err != nil && err != io.EOF {
		return nil, domain.Internal(err, op, "failed to read file header")
	}
	contentType := http.DetectContentType(headerBytes[:n])

	if _, ok := domain.SupportedPhotoTypes[contentType]; !ok {
		metrics.PhotosUploaded.WithLabelValues("rejected").Inc()
		return nil, domain.Invalid(op, fmt.Sprintf("Unsupported photo type: %s. Only JPEG and PNG are supported.", contentType))
	}

	if seeker, ok := file.(io.Seeker); ok {
		if _, err := seeker.Seek(0, 0); err != nil {
			return nil, domain.Internal(err, op, "failed to reset file pointer")
		}
	}

	fileData, err := io.ReadAll(file)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to read file data")
	}

	storageKey := storage.PhotoKey(params.AccountID, header.Filename)
	if err := s.store.Put(ctx, storageKey, bytes.NewReader(fileData), storage.PutOptions{
		ContentType: contentType,
		MaxSize:     domain.MaxPhotoSize,
	}); err != nil {
		metrics.PhotosUploaded.WithLabelValues("failed").Inc()
		return nil, domain.Internal(err, op, "failed to upload photo")
	}

	repoPhoto, err := s.queries.CreatePhoto(ctx, repository.CreatePhotoParams{
		AccountID:   params.AccountID,
		OrderID:     domain.ToNullUUID(params.OrderID),
		Caption:     domain.ToNullString(params.Caption),
		StorageKey:  storageKey,
		ContentType: contentType,
		SizeBytes:   header.Size,
	})
	if err != nil {
		// Roll back the stored object so storage and database stay in sync
		_ = s.store.Delete(ctx, storageKey)
		metrics.PhotosUploaded.WithLabelValues("failed").Inc()
		return nil, domain.Internal(err, op, "failed to create photo record")
	}

	// Thumbnail rendering happens in the background; the photo is usable
	// immediately via its original URL.
	if _, err := worker.EnqueueGenerateThumbnail(ctx, s.queries, repoPhoto.ID); err != nil {
		s.logger.Warn("failed to enqueue thumbnail job", "photo_id", repoPhoto.ID, "error", err)
	}

	metrics.PhotosUploaded.WithLabelValues("accepted").Inc()
	s.logger.Info("photo uploaded", "photo_id", repoPhoto.ID, "account_id", params.AccountID, "size_bytes", header.Size)

	return s.resolveURLs(ctx, repoPhotoToDomain(repoPhoto)), nil
}

func (s *photoService) GetByID(ctx context.Context, id, accountID uuid.UUID) (*domain.Photo, error) {
	const op = "photo.get"

	repoPhoto, err := s.queries.GetPhoto(ctx, id, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "photo", id.String())
		}
		return nil, domain.Internal(err, op, "failed to retrieve photo")
	}

	return s.resolveURLs(ctx, repoPhotoToDomain(repoPhoto)), nil
}

func (s *photoService) List(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]domain.Photo, int64, error) {
	const op = "photo.list"

	if limit <= 0 || limit > 100 {
		limit = 24
	}
	if offset < 0 {
		offset = 0
	}

	repoPhotos, err := s.queries.ListPhotos(ctx, repository.ListPhotosParams{
		AccountID: accountID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, 0, domain.Internal(err, op, "failed to list photos")
	}

	total, err := s.queries.CountPhotos(ctx, accountID)
	if err != nil {
		return nil, 0, domain.Internal(err, op, "failed to count photos")
	}

	photos := make([]domain.Photo, 0, len(repoPhotos))
	for _, rp := range repoPhotos {
		photos = append(photos, *s.resolveURLs(ctx, repoPhotoToDomain(rp)))
	}
	return photos, total, nil
}

func (s *photoService) Delete(ctx context.Context, id, accountID uuid.UUID) error {
	const op = "photo.delete"

	repoPhoto, err := s.queries.GetPhoto(ctx, id, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "photo", id.String())
		}
		return domain.Internal(err, op, "failed to retrieve photo")
	}

	if err := s.queries.DeletePhoto(ctx, id, accountID); err != nil {
		return domain.Internal(err, op, "failed to delete photo record")
	}

	// Storage cleanup after the record is gone. A failure here leaves an
	// orphaned object, not a dangling record.
	if err := s.store.Delete(ctx, repoPhoto.StorageKey); err != nil {
		s.logger.Warn("failed to delete photo object", "photo_id", id, "key", repoPhoto.StorageKey, "error", err)
	}
	if repoPhoto.ThumbnailKey.Valid {
		if err := s.store.Delete(ctx, repoPhoto.ThumbnailKey.String); err != nil {
			s.logger.Warn("failed to delete thumbnail object", "photo_id", id, "key", repoPhoto.ThumbnailKey.String, "error", err)
		}
	}

	s.logger.Info("photo deleted", "photo_id", id, "account_id", accountID)
	return nil
}

// resolveURLs fills in display URLs. URL resolution failures leave the
// field empty rather than failing the read.
func (s *photoService) resolveURLs(ctx context.Context, photo *domain.Photo) *domain.Photo {
	if url, err := s.store.URL(ctx, photo.StorageKey, photoURLTTL); err == nil {
		photo.URL = url
	}
	if photo.ThumbnailKey != "" {
		if url, err := s.store.URL(ctx, photo.ThumbnailKey, photoURLTTL); err == nil {
			photo.ThumbnailURL = url
		}
	}
	return photo
}

// repoPhotoToDomain converts a repository.Photo to domain.Photo.
func repoPhotoToDomain(p repository.Photo) *domain.Photo {
	var orderID *uuid.UUID
	if p.OrderID.Valid {
		id := p.OrderID.UUID
		orderID = &id
	}
	return &domain.Photo{
		ID:           p.ID,
		AccountID:    p.AccountID,
		OrderID:      orderID,
		Caption:      domain.NullStringValue(p.Caption),
		StorageKey:   p.StorageKey,
		ThumbnailKey: domain.NullStringValue(p.ThumbnailKey),
		ContentType:  p.ContentType,
		SizeBytes:    p.SizeBytes,
		CreatedAt:    p.CreatedAt,
	}
}

var _ PhotoService = (*photoService)(nil)
