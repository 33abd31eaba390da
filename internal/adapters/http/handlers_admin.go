package httpadapter

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

func (rt *Router) listAudit(w http.ResponseWriter, r *http.Request) {
	entries := rt.deps.Audit.List(queryInt(r.URL.Query().Get("limit"), 100))
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
}

type policyRequest struct {
	Name           string   `json:"name"`
	DurationMonths int      `json:"durationMonths"`
	Action         string   `json:"action"`
	DocumentTypes  []string `json:"documentTypes"`
}

func (p policyRequest) toDomain(id string) domain.RetentionPolicy {
	return domain.RetentionPolicy{
		ID:             id,
		Name:           p.Name,
		DurationMonths: p.DurationMonths,
		Action:         domain.RetentionAction(strings.ToLower(strings.TrimSpace(p.Action))),
		DocumentTypes:  p.DocumentTypes,
	}
}

func (rt *Router) listPolicies(w http.ResponseWriter, _ *http.Request) {
	items := rt.deps.Policies.List()
	if items == nil {
		items = []domain.RetentionPolicy{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (rt *Router) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	created, err := rt.deps.Policies.Create(r.Context(), req.toDomain(""))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (rt *Router) updatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	updated, err := rt.deps.Policies.Update(r.Context(), req.toDomain(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (rt *Router) deletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := rt.deps.Policies.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		Limit    int    `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	if req.Limit <= 0 {
		req.Limit = rt.cfg.ChatTopK
	}
	if rt.deps.Chat == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "chat is not configured"})
		return
	}
	answer, err := rt.deps.Chat.Ask(r.Context(), req.Question, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
