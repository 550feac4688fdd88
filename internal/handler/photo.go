// Package handler contains HTTP handlers for the Mesura application.
//
// This file implements the garment photo catalogue handlers.
package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mesura-app/mesura/internal/auth"
	"github.com/mesura-app/mesura/internal/csrf"
	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/service"
)

// defaultPhotoPageSize is the page size for the photo gallery.
const defaultPhotoPageSize = 24

// maxUploadMemory bounds the in-memory portion of multipart parsing;
// larger files spill to temp files.
const maxUploadMemory = 32 << 20

// =============================================================================
// Template Data Types
// =============================================================================

// PhotoGalleryPageData contains data for the photo gallery page.
type PhotoGalleryPageData struct {
	CurrentPath string
	Account     *domain.Account
	Photos      []domain.Photo
	Total       int64
	Page        int
	TotalPages  int
	Errors      []string // Upload errors to display
	Flash       *Flash
	CSRFToken   string
}

// =============================================================================
// Handler Configuration
// =============================================================================

// PhotoHandler handles photo catalogue HTTP requests.
type PhotoHandler struct {
	photos   service.PhotoService
	renderer TemplateRenderer
	logger   *slog.Logger
}

// NewPhotoHandler creates a new PhotoHandler.
func NewPhotoHandler(
	photos service.PhotoService,
	renderer TemplateRenderer,
	logger *slog.Logger,
) *PhotoHandler {
	return &PhotoHandler{
		photos:   photos,
		renderer: renderer,
		logger:   logger,
	}
}

// RegisterRoutes registers all photo routes with the provided mux.
func (h *PhotoHandler) RegisterRoutes(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.Handle("GET /photos", guard(http.HandlerFunc(h.Index)))
	mux.Handle("POST /photos", guard(http.HandlerFunc(h.Upload)))
	mux.Handle("DELETE /photos/{id}", guard(http.HandlerFunc(h.Delete)))
}

// =============================================================================
// GET /photos - Photo Gallery
// =============================================================================

// Index displays the paginated photo gallery. Photo and thumbnail URLs
// are resolved by the photo service; a photo whose thumbnail job has not
// run yet falls back to the original in the template.
func (h *PhotoHandler) Index(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	page := parsePageParam(r)
	photos, total, err := h.photos.List(r.Context(), account.ID, defaultPhotoPageSize, (page-1)*defaultPhotoPageSize)
	if err != nil {
		h.logger.Error("failed to list photos", "error", err, "account_id", account.ID)
		h.renderGallery(w, r, account, nil, 0, page, &Flash{
			Type:    "error",
			Message: "Failed to load photos. Please try again.",
		}, nil)
		return
	}

	h.renderGallery(w, r, account, photos, total, page, nil, nil)
}

// =============================================================================
// POST /photos - Upload Photos
// =============================================================================

// Upload handles photo upload.
//
// Form Fields:
// - photos (required): one or more image files
// - caption (optional): applied to every file in the batch
// - order_id (optional): links the photos to an order
//
// Each file is validated and stored independently; per-file failures
// are collected and shown alongside the refreshed gallery rather than
// failing the whole batch.
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.logger.Error("failed to parse multipart form", "error", err)
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		http.Error(w, "No photos uploaded", http.StatusBadRequest)
		return
	}

	caption := strings.TrimSpace(r.FormValue("caption"))
	orderID := parseOptionalUUID(strings.TrimSpace(r.FormValue("order_id")))

	var uploadErrors []string
	successCount := 0

	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			h.logger.Error("failed to open uploaded file", "error", err, "filename", fileHeader.Filename)
			uploadErrors = append(uploadErrors, fmt.Sprintf("%s: Failed to open file", fileHeader.Filename))
			continue
		}

		_, err = h.photos.Upload(r.Context(), file, fileHeader, domain.UploadPhotoParams{
			AccountID: account.ID,
			OrderID:   orderID,
			Caption:   caption,
		})
		_ = file.Close()

		if err != nil {
			h.logger.Error("failed to upload photo",
				"error", err,
				"filename", fileHeader.Filename,
				"code", domain.ErrorCode(err),
			)
			uploadErrors = append(uploadErrors, fmt.Sprintf("%s: %s", fileHeader.Filename, domain.ErrorMessage(err)))
			continue
		}

		successCount++
	}

	h.logger.Info("photo upload completed",
		"account_id", account.ID,
		"success_count", successCount,
		"error_count", len(uploadErrors),
	)

	// Refresh the first gallery page so new photos appear on top.
	photos, total, err := h.photos.List(r.Context(), account.ID, defaultPhotoPageSize, 0)
	if err != nil {
		h.logger.Error("failed to fetch photos after upload", "error", err)
		http.Error(w, "Upload completed but failed to refresh gallery", http.StatusInternalServerError)
		return
	}

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Trigger", "galleryUpdated")
		h.renderer.RenderPartial(w, "photo_gallery", PhotoGalleryPageData{
			CurrentPath: r.URL.Path,
			Account:     account,
			Photos:      photos,
			Total:       total,
			Page:        1,
			TotalPages:  photoPageCount(total),
			Errors:      uploadErrors,
			CSRFToken:   csrf.GetTokenFromRequest(r),
		})
		return
	}

	var flash *Flash
	if successCount > 0 {
		flash = &Flash{Type: "success", Message: fmt.Sprintf("Uploaded %d photo(s).", successCount)}
	}
	h.renderGallery(w, r, account, photos, total, 1, flash, uploadErrors)
}

// =============================================================================
// DELETE /photos/{id} - Delete Photo
// =============================================================================

// Delete removes a photo and its stored objects.
func (h *PhotoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	account := auth.GetAccountFromRequest(r)
	if account == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid photo ID", http.StatusBadRequest)
		return
	}

	if err := h.photos.Delete(r.Context(), id, account.ID); err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			http.Error(w, "Photo not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to delete photo", "error", err, "photo_id", id)
		http.Error(w, "Failed to delete photo", http.StatusInternalServerError)
		return
	}

	h.logger.Info("photo deleted", "photo_id", id, "account_id", account.ID)

	if r.Header.Get("HX-Request") == "true" {
		photos, total, err := h.photos.List(r.Context(), account.ID, defaultPhotoPageSize, 0)
		if err != nil {
			h.logger.Error("failed to fetch photos after delete", "error", err)
			http.Error(w, "Delete completed but failed to refresh gallery", http.StatusInternalServerError)
			return
		}
		w.Header().Set("HX-Trigger", "galleryUpdated")
		h.renderer.RenderPartial(w, "photo_gallery", PhotoGalleryPageData{
			CurrentPath: r.URL.Path,
			Account:     account,
			Photos:      photos,
			Total:       total,
			Page:        1,
			TotalPages:  photoPageCount(total),
			CSRFToken:   csrf.GetTokenFromRequest(r),
		})
		return
	}

	http.Redirect(w, r, "/photos", http.StatusSeeOther)
}

// =============================================================================
// Helper Methods
// =============================================================================

// photoPageCount computes the number of gallery pages.
func photoPageCount(total int64) int {
	pages := total / defaultPhotoPageSize
	if total%defaultPhotoPageSize > 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return int(pages)
}

// renderGallery renders the full gallery page.
func (h *PhotoHandler) renderGallery(w http.ResponseWriter, r *http.Request, account *domain.Account, photos []domain.Photo, total int64, page int32, flash *Flash, uploadErrors []string) {
	data := PhotoGalleryPageData{
		CurrentPath: r.URL.Path,
		Account:     account,
		Photos:      photos,
		Total:       total,
		Page:        int(page),
		TotalPages:  photoPageCount(total),
		Errors:      uploadErrors,
		Flash:       flash,
		CSRFToken:   csrf.GetTokenFromRequest(r),
	}
	h.renderer.RenderHTTP(w, "photos/index", data)
}
