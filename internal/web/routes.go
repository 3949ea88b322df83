package web

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-recognizer/internal/web/handlers"
	"github.com/kozaktomas/face-recognizer/internal/web/static"
)

func (s *Server) setupRoutes() {
	recognizeHandler := handlers.NewRecognizeHandler(s.faceDB, s.logger)
	datasetHandler := handlers.NewDatasetHandler(s.faceDB.DatasetPath(), s.logger)
	indexHandler := handlers.NewIndexHandler(s.faceDB, s.logger)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Event streams run as long as the rebuild does.
		r.Get("/index/rebuild/{jobId}/events", indexHandler.RebuildEvents)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(5 * time.Minute))

			r.Post("/recognize", recognizeHandler.Recognize)

			// Dataset gallery
			r.Get("/dataset", datasetHandler.List)
			r.Get("/dataset/{identity}/{file}", datasetHandler.Image)
			r.Get("/dataset/{identity}/{file}/thumb", datasetHandler.Thumbnail)

			// Index
			r.Get("/index/stats", indexHandler.Stats)
			r.Get("/index/rebuild", indexHandler.ListRebuilds)
			r.Post("/index/rebuild", indexHandler.StartRebuild)
			r.Get("/index/rebuild/{jobId}", indexHandler.RebuildStatus)
			r.Delete("/index/rebuild/{jobId}", indexHandler.CancelRebuild)
		})
	})

	// Serve static files for frontend (SPA)
	s.router.Get("/*", s.serveSPA)
}

// contentTypeFor maps a static asset path to its content type.
func contentTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".html"):
		return "text/html; charset=utf-8"
	case strings.HasSuffix(path, ".css"):
		return "text/css; charset=utf-8"
	case strings.HasSuffix(path, ".js"):
		return "application/javascript; charset=utf-8"
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	case strings.HasSuffix(path, ".svg"):
		return "image/svg+xml"
	case strings.HasSuffix(path, ".png"):
		return "image/png"
	case strings.HasSuffix(path, ".ico"):
		return "image/x-icon"
	}
	return "application/octet-stream"
}

// serveSPA serves the single-page application
func (s *Server) serveSPA(w http.ResponseWriter, r *http.Request) {
	fs, ok := static.FileSystem()
	if !ok {
		http.NotFound(w, r)
		return
	}

	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	f, err := fs.Open(path)
	if err == nil {
		defer f.Close()
		stat, err := f.Stat()
		if err == nil && !stat.IsDir() {
			w.Header().Set("Content-Type", contentTypeFor(path))
			w.WriteHeader(http.StatusOK)
			io.Copy(w, f) //nolint:errcheck // client gone
			return
		}
	}

	// Unknown non-asset paths fall back to index.html.
	if strings.HasPrefix(path, "/api/") || strings.Contains(stripDir(path), ".") {
		http.NotFound(w, r)
		return
	}
	indexFile, err := fs.Open("/index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer indexFile.Close()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, indexFile) //nolint:errcheck // client gone
}

func stripDir(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
