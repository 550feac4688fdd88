package storage

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DetectContentType determines the MIME type of a file.
//
// Detection priority:
// 1. If providedType is non-empty, use it directly
// 2. Try to detect from file extension using mime.TypeByExtension
// 3. Sniff content from the first 512 bytes of data (if available)
// 4. Fall back to "application/octet-stream"
func DetectContentType(providedType, filename string, data io.Reader) string {
	if providedType != "" {
		return providedType
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	if data != nil {
		// http.DetectContentType sniffs at most 512 bytes
		buffer := make([]byte, 512)
		n, err := io.ReadFull(data, buffer)
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return http.DetectContentType(buffer[:n])
		}
	}

	return "application/octet-stream"
}

// AllowedPhotoTypes defines the MIME types accepted for garment photos.
var AllowedPhotoTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true, // Some systems use this instead of image/jpeg
	"image/png":  true,
}

// IsAllowedPhotoType checks if a content type is an accepted garment
// photo format.
func IsAllowedPhotoType(contentType string) bool {
	return AllowedPhotoTypes[normalizeContentType(contentType)]
}

// IsImage returns true if the content type is any image format.
func IsImage(contentType string) bool {
	return strings.HasPrefix(normalizeContentType(contentType), "image/")
}

// ExtensionForContentType returns a common file extension for a MIME
// type, used when generating storage keys from content types.
func ExtensionForContentType(contentType string) string {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	}

	exts, err := mime.ExtensionsByType(contentType)
	if err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// normalizeContentType strips parameters like charset and lowercases.
func normalizeContentType(contentType string) string {
	baseType := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(baseType))
}
