package api

import (
	"fmt"
	"net/http"

	"github.com/dgallion1/docdiff/internal/pipeline"
	"github.com/dgallion1/docdiff/internal/wikiapi"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDiffRequest(w, r)
	if !ok {
		return
	}
	if req.RevID > 0 && !wikiapi.ValidLang(req.Lang) {
		jsonError(w, fmt.Sprintf("invalid lang: %q", req.Lang), http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(s.pipelineRequest(req, s.cfg.JobTimeout))
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	snap := job.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   snap.ID,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/jobs/%s", snap.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}
