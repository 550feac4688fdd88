// Package jobs contains the background job handlers executed by the worker.
package jobs

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/repository"
	"github.com/mesura-app/mesura/internal/storage"
	"github.com/mesura-app/mesura/internal/worker"
)

// ThumbnailProcessor renders a thumbnail from full-size image data.
type ThumbnailProcessor interface {
	// GenerateThumbnail creates a thumbnail from the provided image data.
	// Returns the thumbnail bytes (as JPEG), original width, and original height.
	// The thumbnail will fit within maxWidth x maxHeight while preserving aspect ratio.
	GenerateThumbnail(data io.Reader, maxWidth, maxHeight int) ([]byte, int, int, error)
}

// imagingProcessor implements ThumbnailProcessor using the imaging library.
type imagingProcessor struct{}

// NewImagingProcessor creates a thumbnail processor backed by the imaging library.
func NewImagingProcessor() ThumbnailProcessor {
	return &imagingProcessor{}
}

// GenerateThumbnail decodes the image, resizes it to fit within
// maxWidth x maxHeight preserving aspect ratio, and re-encodes as JPEG.
func (p *imagingProcessor) GenerateThumbnail(data io.Reader, maxWidth, maxHeight int) ([]byte, int, int, error) {
	img, _, err := image.Decode(data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	originalWidth := bounds.Dx()
	originalHeight := bounds.Dy()

	thumbnail := imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG, imaging.JPEGQuality(domain.ThumbnailJPEGQuality)); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return buf.Bytes(), originalWidth, originalHeight, nil
}

// GenerateThumbnailHandler processes jobs that render thumbnails for
// uploaded garment photos.
type GenerateThumbnailHandler struct {
	queries   *repository.Queries
	store     storage.Storage
	processor ThumbnailProcessor
	logger    *slog.Logger
}

// NewGenerateThumbnailHandler creates a new handler for thumbnail jobs.
func NewGenerateThumbnailHandler(
	queries *repository.Queries,
	store storage.Storage,
	processor ThumbnailProcessor,
	logger *slog.Logger,
) *GenerateThumbnailHandler {
	return &GenerateThumbnailHandler{
		queries:   queries,
		store:     store,
		processor: processor,
		logger:    logger,
	}
}

// Type returns the job type identifier.
func (h *GenerateThumbnailHandler) Type() string {
	return worker.JobTypeGenerateThumbnail
}

// Handle renders and stores the thumbnail for a single photo.
func (h *GenerateThumbnailHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.GenerateThumbnailPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	photo, err := h.queries.GetPhotoByID(ctx, p.PhotoID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Photo was deleted before the job ran
			return worker.NewPermanentError(fmt.Errorf("photo not found: %w", err))
		}
		return fmt.Errorf("fetch photo: %w", err)
	}

	if photo.ThumbnailKey.Valid {
		h.logger.Debug("Thumbnail already exists, skipping", "photo_id", photo.ID)
		return nil
	}

	reader, _, err := h.store.Get(ctx, photo.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return worker.NewPermanentError(fmt.Errorf("photo object missing: %w", err))
		}
		return fmt.Errorf("download photo from storage: %w", err)
	}
	defer reader.Close()

	thumbData, origW, origH, err := h.processor.GenerateThumbnail(
		reader,
		domain.ThumbnailMaxWidth,
		domain.ThumbnailMaxHeight,
	)
	if err != nil {
		// Undecodable data will not become decodable on retry
		return worker.NewPermanentError(fmt.Errorf("generate thumbnail: %w", err))
	}

	thumbKey := storage.ThumbnailKey(photo.StorageKey)
	err = h.store.Put(ctx, thumbKey, bytes.NewReader(thumbData), storage.PutOptions{
		ContentType: "image/jpeg",
		Overwrite:   true,
	})
	if err != nil {
		return fmt.Errorf("store thumbnail: %w", err)
	}

	err = h.queries.UpdatePhotoThumbnail(ctx, photo.ID, sql.NullString{String: thumbKey, Valid: true})
	if err != nil {
		return fmt.Errorf("update photo record: %w", err)
	}

	h.logger.Info("Thumbnail generated",
		"photo_id", photo.ID,
		"original_width", origW,
		"original_height", origH,
		"thumbnail_bytes", len(thumbData),
	)

	return nil
}
