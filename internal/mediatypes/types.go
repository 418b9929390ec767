package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType represents the category of an incoming file.
type FileType string

const (
	// FileTypeVideo represents a video clip.
	FileTypeVideo FileType = "video"
	// FileTypeAnimation represents an animated image that can be re-encoded.
	FileTypeAnimation FileType = "animation"
	// FileTypeOther represents anything that cannot be converted.
	FileTypeOther FileType = "other"
)

// VideoExtensions maps file extensions to whether they are supported video formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
	".ts":   true,
}

// AnimationExtensions maps extensions of animated image formats ffmpeg can decode.
var AnimationExtensions = map[string]bool{
	".gif": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",
	".gif":  "image/gif",
}

// extensionsByMime is the reverse of MimeTypes; the first extension listed
// for a MIME type wins.
var extensionsByMime = map[string]string{
	"video/mp4":        ".mp4",
	"video/x-matroska": ".mkv",
	"video/x-msvideo":  ".avi",
	"video/quicktime":  ".mov",
	"video/x-ms-wmv":   ".wmv",
	"video/x-flv":      ".flv",
	"video/webm":       ".webm",
	"video/x-m4v":      ".m4v",
	"video/mpeg":       ".mpeg",
	"video/3gpp":       ".3gp",
	"video/mp2t":       ".ts",
	"image/gif":        ".gif",
}

// normalizeMime strips parameters and lowercases a MIME type.
func normalizeMime(mime string) string {
	mime, _, _ = strings.Cut(mime, ";")
	return strings.ToLower(strings.TrimSpace(mime))
}

func normalizeExt(filename string) string {
	return strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
}

// Classify returns the FileType for a declared MIME type and file name.
// The MIME type is authoritative unless it is empty or generic.
func Classify(mime, filename string) FileType {
	switch m := normalizeMime(mime); {
	case strings.HasPrefix(m, "video/"):
		return FileTypeVideo
	case m == "image/gif":
		return FileTypeAnimation
	case m != "" && m != "application/octet-stream":
		return FileTypeOther
	}

	ext := normalizeExt(filename)
	if VideoExtensions[ext] {
		return FileTypeVideo
	}
	if AnimationExtensions[ext] {
		return FileTypeAnimation
	}
	return FileTypeOther
}

// IsVideo returns true if the file can be fed to the converter.
func IsVideo(mime, filename string) bool {
	return Classify(mime, filename) != FileTypeOther
}

// ExtensionForMIME returns the canonical extension for a MIME type, or ""
// when it is not recognized.
func ExtensionForMIME(mime string) string {
	return extensionsByMime[normalizeMime(mime)]
}

// InputExtension picks the extension for a downloaded copy: the file name's
// own extension when it is a known format, else one derived from the MIME
// type, else "".
func InputExtension(mime, filename string) string {
	ext := normalizeExt(filename)
	if VideoExtensions[ext] || AnimationExtensions[ext] {
		return ext
	}
	return ExtensionForMIME(mime)
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}
