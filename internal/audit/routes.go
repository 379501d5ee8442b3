package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lifelink/copilot/internal/tenant"
)

// RegisterRoutes mounts audit endpoints under /api/v1/audit. All reads are
// scoped to the caller's effective tenant and own user ID.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/v1/audit", func(r chi.Router) {
		r.Get("/", handleList(store))
		r.Get("/{id}", handleGetByID(store))
	})
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenant.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		q := r.URL.Query()
		filter := ListFilter{Limit: 50}
		if v := q.Get("action_type"); v != "" {
			filter.ActionType = ActionType(v)
		}
		if v := q.Get("status"); v != "" {
			filter.Status = Status(v)
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := q.Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}

		records, err := store.ListByUser(r.Context(), actor.Tenant.EffectiveTenantID, actor.UserID, filter)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
	}
}

func handleGetByID(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenant.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		rec, err := store.GetByID(r.Context(), actor.Tenant.EffectiveTenantID, chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
