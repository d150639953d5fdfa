package docs

import (
	"path/filepath"
	"strings"
)

// Kind is a document family recognized by extension.
type Kind string

const (
	KindText    Kind = "text"
	KindPDF     Kind = "pdf"
	KindImage   Kind = "image"
	KindUnknown Kind = "unknown"
)

var imageMIMEs = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".bmp":  "image/bmp",
}

// DetectKind classifies path by its extension, case-insensitively.
func DetectKind(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".txt" || ext == ".md":
		return KindText
	case ext == ".pdf":
		return KindPDF
	case imageMIMEs[ext] != "":
		return KindImage
	default:
		return KindUnknown
	}
}

// ImageMIME returns the media type for an image path, defaulting to image/png.
func ImageMIME(path string) string {
	if m, ok := imageMIMEs[strings.ToLower(filepath.Ext(path))]; ok {
		return m
	}
	return "image/png"
}
