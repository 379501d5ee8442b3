package agent

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lifelink/copilot/internal/confirm"
	"github.com/lifelink/copilot/internal/conversation"
	"github.com/lifelink/copilot/internal/fault"
	"github.com/lifelink/copilot/internal/permissions"
	"github.com/lifelink/copilot/internal/tenant"
)

// RegisterRoutes mounts the chat surface under /api/v1/ai. A pending
// confirmation is a successful chat response, not an error; only Resolve
// outcomes map to 4xx codes.
func RegisterRoutes(r chi.Router, a *Agent, confirms *confirm.Manager, conversations *conversation.Store) {
	r.Route("/api/v1/ai", func(r chi.Router) {
		r.Post("/chat", handleChat(a))
		r.Post("/confirm/{action_id}", handleConfirm(confirms))
		r.Get("/conversations", handleListSessions(conversations))
		r.Get("/conversations/{session_id}", handleGetSession(conversations))
		r.Delete("/conversations/{session_id}", handleClearSession(conversations))
	})
}

func handleChat(a *Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenant.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		resp, err := a.Chat(r.Context(), chatActor(actor), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type confirmRequest struct {
	Approved bool `json:"approved"`
}

func handleConfirm(confirms *confirm.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenant.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		var req confirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		resolution, err := confirms.Resolve(r.Context(), confirm.Actor{
			TenantID: actor.Tenant.EffectiveTenantID,
			UserID:   actor.UserID,
			Role:     permissions.Role(actor.Role),
		}, chi.URLParam(r, "action_id"), req.Approved)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resolution)
	}
}

func handleListSessions(conversations *conversation.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenant.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		sessions, err := conversations.Sessions(r.Context(), actor.Tenant.EffectiveTenantID, actor.UserID, 20, 0)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
	}
}

func handleGetSession(conversations *conversation.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenant.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		messages, err := conversations.Recent(r.Context(), actor.Tenant.EffectiveTenantID, chi.URLParam(r, "session_id"), 100)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": messages, "count": len(messages)})
	}
}

func handleClearSession(conversations *conversation.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := tenant.FromContext(r.Context())
		if !ok {
			http.Error(w, "missing identity", http.StatusUnauthorized)
			return
		}

		deleted, err := conversations.Clear(r.Context(), actor.Tenant.EffectiveTenantID, chi.URLParam(r, "session_id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted_messages": deleted})
	}
}

func chatActor(actor tenant.Actor) Actor {
	return Actor{
		TenantID: actor.Tenant.EffectiveTenantID,
		UserID:   actor.UserID,
		Role:     permissions.Role(actor.Role),
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
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
