package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-recognizer/internal/constants"
	"github.com/kozaktomas/face-recognizer/internal/dataset"
	"github.com/kozaktomas/face-recognizer/internal/imaging"
)

// DatasetHandler serves the reference image gallery.
type DatasetHandler struct {
	root   string
	logger *slog.Logger
}

// NewDatasetHandler creates a new dataset handler for the dataset at root.
func NewDatasetHandler(root string, logger *slog.Logger) *DatasetHandler {
	return &DatasetHandler{root: root, logger: logger}
}

// GalleryImage is one gallery tile.
type GalleryImage struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	ThumbURL string `json:"thumb_url"`
}

// GalleryIdentity groups the tiles of one person.
type GalleryIdentity struct {
	Name   string         `json:"name"`
	Images []GalleryImage `json:"images"`
}

// GalleryResponse is the body of the dataset listing.
type GalleryResponse struct {
	Identities  []GalleryIdentity `json:"identities"`
	TotalImages int               `json:"total_images"`
}

func imageURL(identity, name string) string {
	return "/api/v1/dataset/" + url.PathEscape(identity) + "/" + url.PathEscape(name)
}

// List handles GET /dataset with an optional ?person= filter.
func (h *DatasetHandler) List(w http.ResponseWriter, r *http.Request) {
	ds, err := dataset.Scan(h.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			respondJSON(w, http.StatusOK, GalleryResponse{Identities: []GalleryIdentity{}})
			return
		}
		h.logger.Error("failed to scan dataset", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read dataset")
		return
	}

	resp := GalleryResponse{Identities: []GalleryIdentity{}}
	for _, identity := range ds.Filter(r.URL.Query().Get("person")) {
		g := GalleryIdentity{Name: identity.Name, Images: make([]GalleryImage, 0, len(identity.Images))}
		for _, img := range identity.Images {
			src := imageURL(img.Identity, img.Name)
			g.Images = append(g.Images, GalleryImage{Name: img.Name, URL: src, ThumbURL: src + "/thumb"})
		}
		resp.TotalImages += len(g.Images)
		resp.Identities = append(resp.Identities, g)
	}

	respondJSON(w, http.StatusOK, resp)
}

// findImage resolves {identity}/{file} and reads it.
func (h *DatasetHandler) findImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	identity, err1 := url.PathUnescape(chi.URLParam(r, "identity"))
	name, err2 := url.PathUnescape(chi.URLParam(r, "file"))
	if err1 != nil || err2 != nil {
		respondError(w, http.StatusBadRequest, "invalid image path")
		return nil, false
	}

	ds, err := dataset.Scan(h.root)
	if err != nil {
		respondError(w, http.StatusNotFound, "image not found")
		return nil, false
	}
	img, err := ds.Find(identity, name)
	if err != nil {
		respondError(w, http.StatusNotFound, "image not found")
		return nil, false
	}

	data, err := os.ReadFile(img.Path)
	if err != nil {
		h.logger.Error("failed to read dataset image", "path", img.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read image")
		return nil, false
	}
	return data, true
}

// Image handles GET /dataset/{identity}/{file}.
func (h *DatasetHandler) Image(w http.ResponseWriter, r *http.Request) {
	data, ok := h.findImage(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", imaging.DetectMIMEType(data))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // client gone
}

// Thumbnail handles GET /dataset/{identity}/{file}/thumb.
func (h *DatasetHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	data, ok := h.findImage(w, r)
	if !ok {
		return
	}

	thumb, err := imaging.Thumbnail(data, constants.ThumbnailSize)
	if err != nil {
		h.logger.Warn("failed to create thumbnail", "identity", sanitizeForLog(chi.URLParam(r, "identity")),
			"file", sanitizeForLog(chi.URLParam(r, "file")), "error", err)
		respondError(w, http.StatusUnprocessableEntity, "cannot create thumbnail")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(thumb) //nolint:errcheck // client gone
}
