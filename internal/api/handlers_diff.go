package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/docdiff/internal/differ"
	"github.com/dgallion1/docdiff/internal/parser"
	"github.com/dgallion1/docdiff/internal/pipeline"
	"github.com/dgallion1/docdiff/internal/wikiapi"
)

// diffRequest is the body of POST /api/diff and POST /api/jobs.
type diffRequest struct {
	Previous  string `json:"previous"`
	Current   string `json:"current"`
	Dialect   string `json:"dialect" validate:"omitempty,oneof=wikitext markdown html text csv docx pdf"`
	Title     string `json:"title" validate:"max=512"`
	TimeoutMS int    `json:"timeout_ms" validate:"gte=0"`

	// Revision reference, accepted by /api/jobs only.
	Lang  string `json:"lang" validate:"required_with=RevID,max=16"`
	RevID int64  `json:"revid" validate:"gte=0"`
}

func (s *Server) decodeDiffRequest(w http.ResponseWriter, r *http.Request) (*diffRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*s.cfg.MaxUploadBytes+1024*1024)
	var req diffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, fmt.Sprintf("request exceeds max size (%d bytes)", maxErr.Limit), http.StatusRequestEntityTooLarge)
			return nil, false
		}
		jsonError(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if err := s.validate.Struct(&req); err != nil {
		jsonError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

// pipelineRequest converts a validated body into a comparison request.
func (s *Server) pipelineRequest(req *diffRequest, maxTimeout time.Duration) pipeline.Request {
	dialect := parser.Wikitext
	if req.Dialect != "" {
		dialect = parser.Dialect(req.Dialect)
	}
	return pipeline.Request{
		Previous: []byte(req.Previous),
		Current:  []byte(req.Current),
		Dialect:  dialect,
		Title:    req.Title,
		Lang:     req.Lang,
		RevID:    req.RevID,
		Timeout:  s.timeout(time.Duration(req.TimeoutMS)*time.Millisecond, maxTimeout),
	}
}

// timeout picks the comparison budget: the configured default when none
// was requested, capped at limit.
func (s *Server) timeout(requested, limit time.Duration) time.Duration {
	if requested <= 0 {
		requested = s.cfg.DefaultTimeout
	}
	if requested > limit {
		requested = limit
	}
	return requested
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeDiffRequest(w, r)
	if !ok {
		return
	}
	if req.RevID > 0 {
		jsonError(w, "revision diffs use GET /api/diff/revision or POST /api/jobs", http.StatusBadRequest)
		return
	}

	diff, err := s.runner.Run(r.Context(), s.pipelineRequest(req, s.cfg.MaxTimeout))
	if err != nil {
		s.diffError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (s *Server) handleDiffUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size; extra 1MB for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, 2*s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	prevData, _, err := s.readUpload(r, "previous")
	if err != nil {
		uploadError(w, err)
		return
	}
	currData, currName, err := s.readUpload(r, "current")
	if err != nil {
		uploadError(w, err)
		return
	}

	var dialect parser.Dialect
	if v := r.FormValue("dialect"); v != "" {
		dialect, err = parser.ParseDialect(v)
	} else {
		dialect, err = parser.DialectForFile(currName)
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var requested time.Duration
	if v := r.FormValue("timeout_ms"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			requested = time.Duration(n) * time.Millisecond
		}
	}

	diff, err := s.runner.Run(r.Context(), pipeline.Request{
		Previous: prevData,
		Current:  currData,
		Dialect:  dialect,
		Filename: currName,
		Title:    r.FormValue("title"),
		Timeout:  s.timeout(requested, s.cfg.MaxTimeout),
	})
	if err != nil {
		s.diffError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

type uploadTooLarge struct{ limit int64 }

func (e *uploadTooLarge) Error() string {
	return fmt.Sprintf("file exceeds max size (%d bytes)", e.limit)
}

func (s *Server) readUpload(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("%s file is required: %w", field, err)
	}
	defer file.Close()
	return s.readFile(file, sanitizeFilename(header.Filename))
}

func (s *Server) readFile(file multipart.File, name string) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, name, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, name, &uploadTooLarge{limit: s.cfg.MaxUploadBytes}
	}
	return data, name, nil
}

func uploadError(w http.ResponseWriter, err error) {
	var tooLarge *uploadTooLarge
	if errors.As(err, &tooLarge) {
		jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	jsonError(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) handleDiffRevision(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lang := q.Get("lang")
	if lang == "" {
		lang = "en"
	}
	if !wikiapi.ValidLang(lang) {
		jsonError(w, fmt.Sprintf("invalid lang: %q", lang), http.StatusBadRequest)
		return
	}
	revID, err := strconv.ParseInt(q.Get("revid"), 10, 64)
	if err != nil || revID <= 0 {
		jsonError(w, "revid must be a positive integer", http.StatusBadRequest)
		return
	}
	var requested time.Duration
	if v := q.Get("timeout_ms"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			requested = time.Duration(n) * time.Millisecond
		}
	}

	diff, err := s.runner.Run(r.Context(), pipeline.Request{
		Lang:    lang,
		RevID:   revID,
		Timeout: s.timeout(requested, s.cfg.MaxTimeout),
	})
	if err != nil {
		s.diffError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

// diffError reports a comparison that produced no diff. The body always
// names the outcome so a client can never mistake it for "no changes".
func (s *Server) diffError(w http.ResponseWriter, r *http.Request, err error) {
	status := pipeline.Outcome(err)
	code := http.StatusInternalServerError
	switch status {
	case differ.StatusTimeout:
		code = http.StatusGatewayTimeout
	case differ.StatusTooLarge:
		code = http.StatusRequestEntityTooLarge
	case differ.StatusCanceled:
		code = http.StatusServiceUnavailable
	case pipeline.StatusFetchFailed:
		code = http.StatusBadGateway
		if errors.Is(err, wikiapi.ErrNotFound) {
			code = http.StatusNotFound
		}
	}
	if code >= 500 {
		s.log.Warn("diff unavailable", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error(), "status": string(status)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
