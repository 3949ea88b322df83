package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-recognizer/internal/constants"
	"github.com/kozaktomas/face-recognizer/internal/recognizer"
)

// allowedUploadExtensions are the query image types accepted by the upload widget.
var allowedUploadExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// RecognizeHandler answers "who is this" for uploaded images.
type RecognizeHandler struct {
	faceDB *recognizer.FaceDB
	logger *slog.Logger
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(faceDB *recognizer.FaceDB, logger *slog.Logger) *RecognizeHandler {
	return &RecognizeHandler{faceDB: faceDB, logger: logger}
}

// RecognizeResponse is the body of a recognize call. Found is false when no face was
// detected or the index is empty; Known is false when the best match is below the threshold.
type RecognizeResponse struct {
	Found     bool               `json:"found"`
	Known     bool               `json:"known"`
	Best      *recognizer.Match  `json:"best,omitempty"`
	Matches   []recognizer.Match `json:"matches"`
	Threshold float64            `json:"threshold"`
}

// parseTopK reads the optional k form value.
func parseTopK(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.FormValue("k"))
	if raw == "" {
		return constants.DefaultTopK, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 1 {
		return 0, errors.New("k must be a positive integer")
	}
	return min(k, constants.MaxTopK), nil
}

// Recognize handles POST /recognize with a multipart "file" field.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	k, err := parseTopK(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if !allowedUploadExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		respondError(w, http.StatusBadRequest, "unsupported file type (jpg, jpeg or png)")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	matches, err := h.faceDB.Search(r.Context(), data, k)
	if err != nil {
		h.logger.Error("recognition failed", "filename", sanitizeForLog(header.Filename), "error", err)
		respondError(w, http.StatusInternalServerError, "recognition failed")
		return
	}

	resp := RecognizeResponse{
		Matches:   []recognizer.Match{},
		Threshold: h.faceDB.Threshold(),
	}
	if len(matches) > 0 {
		best := matches[0]
		resp.Found = true
		resp.Known = best.Known
		resp.Best = &best
		resp.Matches = matches
	}

	h.logger.Info("recognized image", "filename", sanitizeForLog(header.Filename),
		"found", resp.Found, "known", resp.Known, "k", k)
	respondJSON(w, http.StatusOK, resp)
}
