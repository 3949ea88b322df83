// Package static embeds the single-page web UI.
package static

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:dist/*
var distFS embed.FS

// FileSystem serves the embedded dist directory. The bool is false when no UI is bundled.
func FileSystem() (http.FileSystem, bool) {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		return nil, false
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil || len(entries) == 0 {
		return nil, false
	}
	return http.FS(sub), true
}
