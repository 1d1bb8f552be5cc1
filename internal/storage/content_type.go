package storage

import (
	"mime"
	"path/filepath"
	"strings"
)

// ContentTypeZIP is the MIME type used for generated project artifacts.
const ContentTypeZIP = "application/zip"

// DetectContentType determines the MIME type for a stored object.
//
// Detection priority:
// 1. If providedType is non-empty, use it directly
// 2. Detect from the key's extension using mime.TypeByExtension
// 3. Fall back to "application/octet-stream"
func DetectContentType(providedType, key string) string {
	if providedType != "" {
		return providedType
	}

	ext := strings.ToLower(filepath.Ext(key))
	if ext == ".zip" {
		// mime.TypeByExtension can return the legacy x-zip-compressed type
		// depending on the host's mime tables; pin the canonical one.
		return ContentTypeZIP
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	return "application/octet-stream"
}

// IsZIP returns true if the content type denotes a ZIP archive.
func IsZIP(contentType string) bool {
	baseType := strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
	return baseType == ContentTypeZIP || baseType == "application/x-zip-compressed"
}
