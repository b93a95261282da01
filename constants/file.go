package constants

import (
	"mime"
	"strings"
)

// AllowedExtensions holds the image extensions accepted for card and hearing uploads.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedImage reports whether ext (with or without dot) is an accepted image type.
func IsAllowedImage(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// ContentTypeFor returns the MIME type used when staging a file with ext.
func ContentTypeFor(ext string) string {
	ext = NormalizeExt(ext)
	if mt := mime.TypeByExtension("." + ext); mt != "" {
		return mt
	}
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	}
	return "application/octet-stream"
}
