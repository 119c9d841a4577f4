package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/provider"
	"github.com/sells-group/orderparse/internal/store"
)

// parseRequest is the JSON form of POST /v1/parse, for documents already
// under the configured document root.
type parseRequest struct {
	DocumentRef  string `json:"document_ref"`
	RequestID    string `json:"request_id"`
	SenderDomain string `json:"sender_domain"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleParse accepts either a multipart upload ("file" part) or a JSON body
// naming a server-side document.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var (
		ref   string
		hints model.Hints
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		path, cleanup, err := s.saveUpload(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		defer cleanup()
		ref = path
		hints = model.Hints{
			RequestID:    r.FormValue("request_id"),
			SenderDomain: r.FormValue("sender_domain"),
		}
	} else {
		var req parseRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.DocumentRef == "" {
			writeError(w, http.StatusBadRequest, "document_ref is required")
			return
		}
		path, status, msg := s.resolveRef(req.DocumentRef)
		if status != http.StatusOK {
			writeError(w, status, msg)
			return
		}
		ref = path
		hints = model.Hints{RequestID: req.RequestID, SenderDomain: req.SenderDomain}
	}

	if hints.RequestID == "" {
		hints.RequestID = middleware.GetReqID(r.Context())
	}

	out := s.parser.Parse(r.Context(), ref, hints)
	writeJSON(w, http.StatusOK, out)
}

// resolveRef maps a client document_ref onto a file inside DocumentRoot.
// It returns the path to parse, or an HTTP status and message on rejection.
func (s *Server) resolveRef(ref string) (string, int, string) {
	if s.opts.DocumentRoot == "" {
		return "", http.StatusBadRequest, "document_ref is not accepted, upload the file instead"
	}
	rel := filepath.FromSlash(ref)
	if !filepath.IsLocal(rel) {
		return "", http.StatusBadRequest, "document_ref must be a relative path inside the document root"
	}

	root, err := os.OpenRoot(s.opts.DocumentRoot)
	if err != nil {
		zap.L().Error("api: open document root", zap.String("root", s.opts.DocumentRoot), zap.Error(err))
		return "", http.StatusInternalServerError, "document root unavailable"
	}
	defer root.Close() //nolint:errcheck

	// os.Root refuses symlinks that lead outside the root.
	info, err := root.Stat(rel)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", http.StatusNotFound, "document not found"
	case err != nil:
		zap.L().Warn("api: rejected document_ref", zap.String("ref", ref), zap.Error(err))
		return "", http.StatusBadRequest, "document_ref must be a relative path inside the document root"
	case !info.Mode().IsRegular():
		return "", http.StatusBadRequest, "document_ref is not a regular file"
	}
	return filepath.Join(s.opts.DocumentRoot, rel), http.StatusOK, ""
}

// saveUpload stores the "file" part under UploadDir, keeping its extension
// so content sniffing can fall back to it.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (string, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return "", nil, eris.Wrap(err, "invalid multipart upload")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, eris.Wrap(err, "file part is required")
	}
	defer file.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(s.opts.UploadDir, "upload-*"+strings.ToLower(filepath.Ext(header.Filename)))
	if err != nil {
		return "", nil, eris.Wrap(err, "create upload file")
	}
	cleanup := func() {
		if err := os.Remove(tmp.Name()); err != nil {
			zap.L().Warn("api: failed to remove upload", zap.String("path", tmp.Name()), zap.Error(err))
		}
	}
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close() //nolint:errcheck
		cleanup()
		return "", nil, eris.Wrap(err, "store upload")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, eris.Wrap(err, "store upload")
	}
	return tmp.Name(), cleanup, nil
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	statuses := s.providers.Status()
	out := make([]provider.Status, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	results := s.providers.CheckHealth(r.Context())
	status := http.StatusOK
	healthy := 0
	for _, h := range results {
		if h.Healthy {
			healthy++
		}
	}
	if healthy == 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"healthy": healthy, "providers": results})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run store is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		zap.L().Error("api: get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "run store is disabled")
		return
	}
	lookback := s.opts.LookbackHours
	if v := r.URL.Query().Get("lookback_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "lookback_hours must be a positive integer")
			return
		}
		lookback = n
	}
	snap, err := s.metrics.Collect(r.Context(), lookback)
	if err != nil {
		zap.L().Error("api: collect metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to collect metrics")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
