package rag

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lifelink/copilot/internal/fault"
	"github.com/lifelink/copilot/internal/permissions"
	"github.com/lifelink/copilot/internal/tenant"
)

// RegisterRoutes mounts document management endpoints under
// /api/v1/documents. Writes are limited to managers and admins; listing is
// open to any authenticated role.
func RegisterRoutes(r chi.Router, p *Pipeline) {
	r.Route("/api/v1/documents", func(r chi.Router) {
		r.Get("/", handleListDocuments(p))
		r.Post("/", handleIngest(p))
		r.Put("/", handleReindex(p))
		r.Delete("/", handleDeleteSource(p))
		r.Delete("/tenant", handleDeleteTenant(p))
		r.Post("/search", handleSearch(p))
	})
}

// canManageDocuments gates index writes. Document curation sits at the same
// tier as reporting, not at the tool matrix level, so it is checked here
// rather than through the action matrix.
func canManageDocuments(role permissions.Role) bool {
	return role == permissions.RoleAdmin || role == permissions.RoleManager
}

func handleListDocuments(p *Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenant.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		docs, err := p.Documents(r.Context(), actor.Tenant.EffectiveTenantID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
	}
}

func handleIngest(p *Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenant.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}
		if !canManageDocuments(permissions.Role(actor.Role)) {
			http.Error(w, "insufficient permissions to manage documents", http.StatusForbidden)
			return
		}

		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		// The caller's tenant always wins over whatever the body claims.
		req.TenantID = actor.Tenant.EffectiveTenantID

		result, err := p.Ingest(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

func handleReindex(p *Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenant.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}
		if !canManageDocuments(permissions.Role(actor.Role)) {
			http.Error(w, "insufficient permissions to manage documents", http.StatusForbidden)
			return
		}

		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		req.TenantID = actor.Tenant.EffectiveTenantID

		result, err := p.Reindex(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleDeleteSource(p *Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenant.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}
		if !canManageDocuments(permissions.Role(actor.Role)) {
			http.Error(w, "insufficient permissions to manage documents", http.StatusForbidden)
			return
		}

		sourcePath := r.URL.Query().Get("source_path")
		if err := p.DeleteSource(r.Context(), actor.Tenant.EffectiveTenantID, sourcePath); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": sourcePath})
	}
}

func handleDeleteTenant(p *Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenant.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}
		// Offboarding wipes the whole index partition, admins only.
		if permissions.Role(actor.Role) != permissions.RoleAdmin {
			http.Error(w, "only admins may delete a tenant index", http.StatusForbidden)
			return
		}

		tenantID := actor.Tenant.EffectiveTenantID
		if err := p.DeleteTenant(r.Context(), tenantID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted_tenant": tenantID})
	}
}

// searchRequest is the document search body. TopK zero falls back to the
// pipeline default.
type searchRequest struct {
	Query   string `json:"query"`
	DocType string `json:"doc_type,omitempty"`
	TopK    int    `json:"top_k,omitempty"`
}

func handleSearch(p *Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenant.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Query == "" {
			http.Error(w, "query is required", http.StatusBadRequest)
			return
		}

		result, err := p.Retrieve(r.Context(), actor.Tenant.EffectiveTenantID, req.Query, RetrieveOptions{
			DocType: req.DocType,
			TopK:    req.TopK,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fault.KindOf(err) {
	case fault.KindValidation:
		status = http.StatusBadRequest
	case fault.KindPermission:
		status = http.StatusForbidden
	case fault.KindNotFound:
		status = http.StatusNotFound
	case fault.KindConflict:
		status = http.StatusConflict
	case fault.KindUnavailable:
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
