// Package domain contains core business types and interfaces.
//
// This file defines the Photo domain type for the garment catalogue.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SupportedPhotoTypes maps MIME types to their human-readable names.
// Only JPEG and PNG are supported (HEIC requires CGO).
var SupportedPhotoTypes = map[string]string{
	"image/jpeg": "JPEG",
	"image/png":  "PNG",
}

const (
	// MaxPhotoSize is the maximum allowed size for uploaded photos (20MB).
	MaxPhotoSize = 20 * 1024 * 1024

	// ThumbnailMaxWidth is the maximum width for generated thumbnails.
	ThumbnailMaxWidth = 320

	// ThumbnailMaxHeight is the maximum height for generated thumbnails.
	ThumbnailMaxHeight = 320

	// ThumbnailJPEGQuality is the JPEG quality for thumbnail generation (0-100).
	ThumbnailJPEGQuality = 85
)

// Photo represents a garment photo in the catalogue.
//
// Photos are owned by one Account and may be linked to an Order to record
// the finished piece. StorageKey and ThumbnailKey address the storage
// backend; ThumbnailKey is empty until the thumbnail job has run.
type Photo struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	OrderID      *uuid.UUID // Optional order reference
	Caption      string
	StorageKey   string
	ThumbnailKey string
	ContentType  string
	SizeBytes    int64
	CreatedAt    time.Time

	// Resolved URLs, populated by the photo service for display
	URL          string
	ThumbnailURL string
}

// HasThumbnail reports whether the thumbnail job has completed.
func (p *Photo) HasThumbnail() bool {
	return p.ThumbnailKey != ""
}

// UploadPhotoParams contains validated parameters for a photo upload.
type UploadPhotoParams struct {
	AccountID   uuid.UUID
	OrderID     *uuid.UUID // Optional
	Caption     string     // Optional
	ContentType string
	SizeBytes   int64
}
