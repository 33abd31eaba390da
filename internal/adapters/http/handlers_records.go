package httpadapter

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func (rt *Router) listRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.RecordFilter{
		Query:        q.Get("q"),
		Category:     q.Get("category"),
		DocumentType: q.Get("documentType"),
		PathPrefix:   q.Get("pathPrefix"),
		Limit:        queryInt(q.Get("limit"), defaultPageSize),
		Offset:       queryInt(q.Get("offset"), 0),
	}
	if filter.Limit <= 0 || filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if raw := q.Get("status"); raw != "" {
		status, ok := domain.ParseRecordStatus(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status " + strconv.Quote(raw)})
			return
		}
		filter.Status = status
	}
	if raw := q.Get("importance"); raw != "" {
		v, ok := domain.ParseImportance(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown importance " + strconv.Quote(raw)})
			return
		}
		filter.Importance = v
	}
	if raw := q.Get("confidentiality"); raw != "" {
		v, ok := domain.ParseConfidentiality(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown confidentiality " + strconv.Quote(raw)})
			return
		}
		filter.Confidentiality = v
	}

	items := rt.deps.Reader.Search(filter)
	if items == nil {
		items = []domain.FileRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"count":  len(items),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

func (rt *Router) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := rt.deps.Reader.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) updateRecordStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	status, ok := domain.ParseRecordStatus(req.Status)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be one of active, archived, destroyed"})
		return
	}
	rec, err := rt.deps.Editor.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) assignRecordPolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PolicyID string `json:"policyId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	rec, err := rt.deps.Editor.AssignPolicy(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.PolicyID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) recordPreview(w http.ResponseWriter, r *http.Request) {
	rec, err := rt.deps.Reader.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	p := rec.Preview
	if p == nil {
		writeError(w, domain.WrapError(domain.ErrRecordNotFound, "preview", errors.New("record has no preview")))
		return
	}

	if p.BlobKey != "" && rt.deps.Blobs != nil {
		body, err := rt.deps.Blobs.Open(r.Context(), p.BlobKey)
		if err != nil {
			writeError(w, domain.WrapError(domain.ErrRecordNotFound, "preview", err))
			return
		}
		defer body.Close()
		w.Header().Set("Content-Type", p.MimeType)
		w.Header().Set("Cache-Control", "private, max-age=300")
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, body)
		return
	}
	if p.Text != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, p.Text)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (rt *Router) complianceAlerts(w http.ResponseWriter, _ *http.Request) {
	items := rt.deps.Reader.ComplianceAlerts(rt.now())
	if items == nil {
		items = []domain.FileRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (rt *Router) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.deps.Reader.Stats(rt.now()))
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
