package constants

import (
	"path/filepath"
	"strings"
)

// MimePNG is the content type of rendered pages sent for extraction.
const MimePNG = "image/png"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPDFName reports whether an attachment filename ends in .pdf (any case).
func IsPDFName(name string) bool {
	return NormalizeExt(filepath.Ext(strings.TrimSpace(name))) == "pdf"
}
