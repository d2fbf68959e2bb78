package artifact

import (
	"fmt"
	"path"
	"strings"
)

const (
	MiB = 1024 * 1024

	MaxSingleFileSize    int64 = 5 * MiB
	MaxArchiveSize       int64 = 50 * MiB
	MaxExtractedFileSize int64 = 5 * MiB
	MaxArchiveMembers          = 500

	MaxVersionNameLength  = 100
	MaxArtifactNameLength = 100
	MaxDescriptionLength  = 500
)

var forbiddenExtensions = []string{
	// executables and scripts
	".exe", ".dll", ".bat", ".cmd", ".com", ".msi", ".sh", ".ps1",
	".so", ".dylib", ".app", ".jar", ".scr", ".vbs",
	// video
	".mp4", ".mov", ".avi", ".mkv", ".webm", ".wmv", ".flv", ".m4v",
	// office documents
	".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
}

// IsForbiddenExtension matches p against the denylist regardless of case or
// directory depth.
func IsForbiddenExtension(p string) bool {
	lower := strings.ToLower(p)
	for _, ext := range forbiddenExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func formatMB(n int64) string {
	return fmt.Sprintf("%.2fMB", float64(n)/float64(MiB))
}

func CheckSingleFileSize(size int64) error {
	if size > MaxSingleFileSize {
		return Policyf("file too large: maximum is 5MB, got %d bytes (%s)", size, formatMB(size))
	}
	return nil
}

func CheckArchiveSize(size int64) error {
	if size > MaxArchiveSize {
		return Policyf("archive too large: maximum is 50MB, got %d bytes (%s)", size, formatMB(size))
	}
	return nil
}

func CheckExtractedFileSize(name string, size int64) error {
	if size > MaxExtractedFileSize {
		return Policyf("file %q too large after extraction: maximum is 5MB, got %d bytes", name, size)
	}
	return nil
}

var mimeByExt = map[string]string{
	"html": "text/html",
	"htm":  "text/html",

	"css": "text/css",

	"js":  "application/javascript",
	"mjs": "application/javascript",
	"ts":  "application/typescript",

	"json": "application/json",
	"xml":  "application/xml",
	"csv":  "text/csv",

	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"webp": "image/webp",
	"ico":  "image/x-icon",
	"avif": "image/avif",

	"woff":  "font/woff",
	"woff2": "font/woff2",
	"ttf":   "font/ttf",
	"otf":   "font/otf",
	"eot":   "application/vnd.ms-fontobject",

	"pdf":      "application/pdf",
	"txt":      "text/plain",
	"md":       "text/markdown",
	"markdown": "text/markdown",

	"zip": "application/zip",
	"map": "application/json",
}

const OctetStream = "application/octet-stream"

// MimeTypeForPath looks up the MIME type by extension.
func MimeTypeForPath(p string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if m, ok := mimeByExt[ext]; ok {
		return m
	}
	return OctetStream
}
