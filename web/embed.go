// Package web embeds the broker console (dist/) and serves it as a
// single-page application.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// indexFile is served for every path that is not an embedded asset.
const indexFile = "index.html"

// SPAHandler returns an http.Handler that serves the embedded console.
// Unknown paths fall back to index.html so client-side routes resolve.
func SPAHandler() http.Handler {
	return spaHandler(distFS, "dist")
}

func spaHandler(fsys fs.FS, root string) http.Handler {
	subFS, err := fs.Sub(fsys, root)
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" {
			name = indexFile
		}

		if f, err := subFS.Open(name); err == nil {
			if closeErr := f.Close(); closeErr != nil {
				slog.Debug("web: failed to close embedded file", "path", name, "error", closeErr)
			}
			fileServer.ServeHTTP(w, r)
			return
		}

		// API typos should not receive the HTML shell.
		if strings.HasPrefix(name, "api/") {
			http.NotFound(w, r)
			return
		}

		r2 := r.Clone(r.Context())
		r2.URL.Path = "/"
		fileServer.ServeHTTP(w, r2)
	})
}
