package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/face-recognizer/internal/recognizer"
)

// IndexHandler exposes index statistics and background rebuilds.
type IndexHandler struct {
	faceDB     *recognizer.FaceDB
	jobManager *JobManager
	logger     *slog.Logger
}

// NewIndexHandler creates a new index handler.
func NewIndexHandler(faceDB *recognizer.FaceDB, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{
		faceDB:     faceDB,
		jobManager: NewJobManager(),
		logger:     logger,
	}
}

// StatsResponse is the body of GET /index/stats.
type StatsResponse struct {
	*recognizer.Stats
	Threshold float64 `json:"threshold"`
	Dataset   string  `json:"dataset"`
}

// Stats returns per-person counts of the current index.
func (h *IndexHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.faceDB.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to read index stats", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read index stats")
		return
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		Stats:     stats,
		Threshold: h.faceDB.Threshold(),
		Dataset:   h.faceDB.DatasetPath(),
	})
}

// StartRebuild starts an async rebuild from the dataset folder.
func (h *IndexHandler) StartRebuild(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	job, created := h.jobManager.CreateJob(uuid.New().String(), cancel)
	if !created {
		cancel()
		respondJSON(w, http.StatusConflict, map[string]string{
			"error":  "a rebuild is already running",
			"job_id": job.ID,
		})
		return
	}

	go h.runRebuild(ctx, job)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(JobStatusPending),
	})
}

func (h *IndexHandler) runRebuild(ctx context.Context, job *RebuildJob) {
	job.setRunning()
	h.logger.Info("index rebuild started", "job_id", job.ID)

	report, err := h.faceDB.BuildIndex(ctx, recognizer.WithProgress(job.setProgress))
	job.finish(report, err)

	if job.GetStatus() == JobStatusCancelled {
		h.logger.Info("index rebuild cancelled", "job_id", job.ID)
		return
	}
	if err != nil {
		h.logger.Error("index rebuild failed", "job_id", job.ID, "error", err)
		return
	}
	h.logger.Info("index rebuild completed", "job_id", job.ID,
		"faces", report.Faces, "skipped", len(report.Skipped), "duration", report.Duration)
}

// RebuildStatus returns the status of a rebuild job.
func (h *IndexHandler) RebuildStatus(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// ListRebuilds returns known rebuild jobs, newest first.
func (h *IndexHandler) ListRebuilds(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobManager.ListJobs()
	views := make([]RebuildJobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, job.Snapshot())
	}
	respondJSON(w, http.StatusOK, views)
}

// CancelRebuild asks a running rebuild to stop. The job turns cancelled once the build
// has returned.
func (h *IndexHandler) CancelRebuild(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if isJobTerminal(job.GetStatus()) {
		respondError(w, http.StatusConflict, "job already finished")
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": "cancelling",
	})
}

// RebuildEvents streams rebuild progress via Server-Sent Events.
func (h *IndexHandler) RebuildEvents(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(j SSEJob) any {
			return j.(*RebuildJob).Snapshot()
		},
	)
}
