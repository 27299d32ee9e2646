package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) registerAuthRoutes(r chi.Router) {
	r.Get("/auth/status", h.AuthStatus)
	r.Post("/auth/api-key", h.SetAPIKey)
	r.Delete("/auth/api-key", h.RemoveAPIKey)
	r.Post("/auth/setup-token", h.SetSetupToken)
}

// AuthStatus reports the backend credential state.
func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.deps.Auth.Status(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, status)
}

// SetAPIKey stores an API key.
func (h *Handler) SetAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		Error(w, http.StatusBadRequest, "key required")
		return
	}

	if err := h.deps.Auth.SetAPIKey(r.Context(), req.Key); err != nil {
		h.fail(w, r, err)
		return
	}

	h.opts.Logger.Info("auth.api_key.saved")
	JSON(w, http.StatusOK, map[string]bool{"saved": true})
}

// RemoveAPIKey deletes the stored API key.
func (h *Handler) RemoveAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Auth.RemoveAPIKey(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// SetSetupToken writes a CLI setup token and verifies it authenticates.
func (h *Handler) SetSetupToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		Error(w, http.StatusBadRequest, "token required")
		return
	}

	if err := h.deps.Auth.SetSetupToken(req.Token); err != nil {
		h.fail(w, r, err)
		return
	}

	status, err := h.deps.Auth.Status(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !status.Authenticated {
		Error(w, http.StatusBadRequest, "token saved but authentication failed: "+status.Reason)
		return
	}

	h.opts.Logger.Info("auth.setup_token.saved")
	JSON(w, http.StatusOK, map[string]bool{"saved": true})
}
