package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// sseKeepAlive is how often a comment line is written while a job is quiet.
const sseKeepAlive = 15 * time.Second

// isJobTerminal returns true if the job status is a terminal state
func isJobTerminal(status JobStatus) bool {
	return status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled
}

// isTerminalEvent reports whether the event type ends a job stream.
func isTerminalEvent(eventType string) bool {
	return eventType == "completed" || eventType == "job_error" || eventType == "cancelled"
}

func sendFinalEvent(w http.ResponseWriter, flusher http.Flusher, job SSEJob) {
	final := job.FinalEvent()
	sendSSEEvent(w, flusher, final.Type, final)
}

// sendSSEEvent writes one named event with a JSON payload and flushes it.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}

// setupSSEConnection resolves the {jobId} job and switches the response to an event stream.
// On failure it writes a JSON error and returns false.
func setupSSEConnection(w http.ResponseWriter, r *http.Request, lookupJob func(string) SSEJob) (SSEJob, http.Flusher, bool) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return nil, nil, false
	}

	job := lookupJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return nil, nil, false
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return job, flusher, true
}

// streamSSEEvents sends an initial status event, then relays job events until the job
// reaches a terminal state or the client goes away. Every stream of a finished job ends
// with exactly one completed, job_error or cancelled event.
func streamSSEEvents(w http.ResponseWriter, r *http.Request, lookupJob func(string) SSEJob, getInitialData func(SSEJob) any) {
	job, flusher, ok := setupSSEConnection(w, r, lookupJob)
	if !ok {
		return
	}

	eventCh := job.AddListener()
	defer job.RemoveListener(eventCh)

	sendSSEEvent(w, flusher, "status", getInitialData(job))
	if isJobTerminal(job.GetStatus()) {
		sendFinalEvent(w, flusher, job)
		return
	}

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if isTerminalEvent(event.Type) {
				return
			}
			// The terminal event may have been dropped on a full buffer.
			if isJobTerminal(job.GetStatus()) {
				sendFinalEvent(w, flusher, job)
				return
			}
		}
	}
}
