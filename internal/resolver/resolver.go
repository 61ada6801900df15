// Package resolver maps request URLs onto the working directory and
// classifies what lives there.
package resolver

import (
	"io/fs"
	"strings"
)

const (
	// RootMarker prefixes every request URL to form a path relative to the
	// working directory.
	RootMarker = "."
	// IndexFile is served in place of a directory listing when a
	// directory-like URL contains it as a regular file.
	IndexFile = "index.html"
)

// ResourceKind classifies a resolved path.
type ResourceKind int

const (
	// Missing covers nonexistent paths, failed status queries and anything
	// that is neither a regular file nor a directory.
	Missing ResourceKind = iota
	File
	Directory
)

func (k ResourceKind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return "missing"
	}
}

// Resolution is the outcome of classifying a candidate path.
type Resolution struct {
	// Path is the final path, possibly rewritten to the directory's index file.
	Path string
	Kind ResourceKind
	// Info is nil when Kind is Missing.
	Info fs.FileInfo
}

// MapPath turns a request URL path into a candidate filesystem path. The URL
// is used verbatim: ".." segments are not collapsed.
func MapPath(requestURL string) string {
	return RootMarker + requestURL
}

// Classifier stats candidate paths on a FileSystem.
type Classifier struct {
	fs FileSystem
}

// NewClassifier returns a Classifier backed by fsys.
func NewClassifier(fsys FileSystem) *Classifier {
	return &Classifier{fs: fsys}
}

// Classify resolves candidatePath. Directory-like paths (trailing "/") are
// rewritten to their index file when one exists as a regular file. Every
// status query failure collapses to Missing.
func (c *Classifier) Classify(candidatePath string) Resolution {
	finalPath := candidatePath
	if indexPath, ok := c.probeIndex(candidatePath); ok {
		finalPath = indexPath
	}

	info, err := c.fs.Stat(finalPath)
	if err != nil {
		return Resolution{Path: finalPath, Kind: Missing}
	}
	switch {
	case info.Mode().IsRegular():
		return Resolution{Path: finalPath, Kind: File, Info: info}
	case info.IsDir():
		return Resolution{Path: finalPath, Kind: Directory, Info: info}
	default:
		return Resolution{Path: finalPath, Kind: Missing}
	}
}

// probeIndex reports the index file path for a directory-like candidate.
// Failures are not errors, they just mean there is no rewrite.
func (c *Classifier) probeIndex(candidatePath string) (string, bool) {
	if !strings.HasSuffix(candidatePath, "/") {
		return "", false
	}
	indexPath := candidatePath + IndexFile
	info, err := c.fs.Stat(indexPath)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return indexPath, true
}
