package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/infrastructure/snapshot/upload"
)

const maxUploadFiles = 200

// startSync runs a reconciliation batch for the connected root. It answers
// 202 {"accepted":true,"root":...} and leaves progress to GET /v1/sync/status,
// unless ?wait=true asks for the final report.
func (rt *Router) startSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Root string `json:"root"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}
	if rt.deps.Sources == nil {
		writeError(w, domain.WrapError(domain.ErrUnsupportedCapability, "sync", errors.New("no snapshot source configured")))
		return
	}
	source, err := rt.deps.Sources(req.Root)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		report, err := rt.deps.Syncer.SyncSource(r.Context(), source)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	if busy(rt.deps.Syncer.Status()) {
		writeError(w, domain.WrapError(domain.ErrBatchInProgress, "sync", errors.New("try again when the current batch finishes")))
		return
	}
	ctx := rt.deps.BaseContext
	requestID := requestIDFromContext(r.Context())
	go func() {
		_, err := rt.deps.Syncer.SyncSource(ctx, source)
		switch {
		case err == nil:
		case domain.IsKind(err, domain.ErrBatchInProgress):
			slog.Info("background_sync_skipped", "request_id", requestID, "reason", "batch_in_progress")
		default:
			slog.Error("background_sync_failed", "request_id", requestID, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, syncAccepted{Accepted: true, Root: req.Root})
}

type syncAccepted struct {
	Accepted bool   `json:"accepted"`
	Root     string `json:"root,omitempty"`
}

func busy(p domain.BatchProgress) bool {
	switch p.Phase {
	case domain.PhaseScanning, domain.PhaseAnalyzing, domain.PhaseReconciling:
		return true
	default:
		return false
	}
}

func (rt *Router) syncStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.deps.Syncer.Status())
}

// upload archives multipart files ("files" or "file") as a flat batch and
// returns the batch report.
func (rt *Router) upload(w http.ResponseWriter, r *http.Request) {
	maxBytes := rt.cfg.UploadMaxBytes
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form with field 'files' is required"})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'files' is required"})
		return
	}
	if len(headers) > maxUploadFiles {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("at most %d files per upload", maxUploadFiles)})
		return
	}

	now := time.Now()
	source := upload.New()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read " + fh.Filename})
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read " + fh.Filename})
			return
		}
		source.Add(upload.File{Name: fh.Filename, Data: data, ModTime: now})
	}

	report, err := rt.deps.Syncer.SyncSource(r.Context(), source)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
