package staticfile

import (
	"strings"
)

// defaultMimeTypes is the built-in extension table. The empty extension
// (files such as "Makefile") is served as plain text.
var defaultMimeTypes = map[string]string{
	".txt":  "text/plain",
	".inl":  "text/plain",
	".h":    "text/plain",
	".cc":   "text/plain",
	".md":   "text/plain",
	"":      "text/plain",
	".html": "text/html",
	".js":   "text/javascript",
	".css":  "text/css",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".woff": "application/font-woff",
	".ttf":  "application/font-ttf",
	".eot":  "application/vnd.ms-fontobject",
	".otf":  "application/font-otf",
	".wasm": "application/wasm",
}

const defaultOctetStreamMimeType = "application/octet-stream"

// MimeTable maps lower-cased file extensions to content types. It is built
// once and only read afterwards, so it is safe for concurrent use.
type MimeTable struct {
	types map[string]string
}

// NewMimeTable returns the built-in table with overrides applied on top.
// Override keys are matched case-insensitively.
func NewMimeTable(overrides map[string]string) *MimeTable {
	types := make(map[string]string, len(defaultMimeTypes)+len(overrides))
	for ext, mimeType := range defaultMimeTypes {
		types[ext] = mimeType
	}
	for ext, mimeType := range overrides {
		types[strings.ToLower(ext)] = mimeType
	}
	return &MimeTable{types: types}
}

// Lookup returns the content type for an extension as produced by Ext.
func (t *MimeTable) Lookup(ext string) string {
	if mimeType, ok := t.types[ext]; ok {
		return mimeType
	}
	return defaultOctetStreamMimeType
}

// ContentType returns the content type for a file path.
func (t *MimeTable) ContentType(filePath string) string {
	return t.Lookup(Ext(filePath))
}

// Ext returns the lower-cased extension of the last path element, including
// the dot. Names whose only dot is the leading one (".bashrc") and the
// special names "." and ".." have no extension.
func Ext(filePath string) string {
	p := strings.TrimRight(filePath, "/")
	base := p[strings.LastIndexByte(p, '/')+1:]
	if base == ".." {
		return ""
	}
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(base[idx:])
}
