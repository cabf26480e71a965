package service

import (
	"fmt"
	"path/filepath"
	"strings"
)

var mimeExtensions = map[string]string{
	"application/pdf":  ".pdf",
	"text/plain":       ".txt",
	"text/csv":         ".csv",
	"application/json": ".json",
	"application/xml":  ".xml",
	"text/xml":         ".xml",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"application/zip": ".zip",
}

// resolveFilename picks the download name for a dataset, in order:
// originalFilename, dataset-{id}{fileExtension}, fileName, a MIME guess
// from type or fileType, and finally dataset-{id}.
func resolveFilename(datasetID uint64, env envelope) string {
	fallback := fmt.Sprintf("dataset-%d", datasetID)

	if name := env.str("originalFilename"); name != "" {
		return sanitizeFilename(name, fallback)
	}
	if ext := env.str("fileExtension"); ext != "" {
		return sanitizeFilename(fallback+ext, fallback)
	}
	if name := env.str("fileName"); name != "" {
		return sanitizeFilename(name, fallback)
	}
	for _, key := range []string{"type", "fileType"} {
		if ext, ok := mimeExtensions[strings.ToLower(env.str(key))]; ok {
			return fallback + ext
		}
	}
	return fallback
}

// sanitizeFilename keeps a name safe for Content-Disposition: no path
// components, quotes or control characters
func sanitizeFilename(name, fallback string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '"' {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	return name
}
