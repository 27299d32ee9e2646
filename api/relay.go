package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// registerRelayRoutes serves the endpoints used by external chat bridges.
// Every request must carry the relay secret as a bearer token.
func (h *Handler) registerRelayRoutes(r chi.Router) {
	r.Use(h.relayAuth)
	r.Post("/chat", h.RelayChat)
	r.Get("/messages/{name}", h.RelayMessages)
}

func (h *Handler) relayAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.opts.RelaySecret == "" {
			Error(w, http.StatusInternalServerError, "relay not configured")
			return
		}

		want := "Bearer " + h.opts.RelaySecret
		got := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type relayChatRequest struct {
	AgentName string `json:"agent_name"`
	Content   string `json:"content"`
	Wait      bool   `json:"wait"`
}

// RelayChat queues a message for the agent with the given name. With
// wait=true (body or query) the request blocks until the turn settles and
// returns the reply, or the rejection as an error body.
func (h *Handler) RelayChat(w http.ResponseWriter, r *http.Request) {
	var req relayChatRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.AgentName) == "" || strings.TrimSpace(req.Content) == "" {
		Error(w, http.StatusBadRequest, "agent_name and content required")
		return
	}

	a, err := h.deps.Store.GetAgentByName(r.Context(), req.AgentName)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	pending := h.deps.Turns.Enqueue(r.Context(), a.ID, req.Content)

	if !req.Wait && r.URL.Query().Get("wait") != "true" {
		JSON(w, http.StatusOK, map[string]string{"status": "queued"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.RelayTimeout)
	defer cancel()

	reply, err := pending.Wait(ctx)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		h.opts.Logger.Warn("relay.chat.failed", "agent_id", a.ID, "error", err)
		Error(w, status, err.Error())
		return
	}

	JSON(w, http.StatusOK, reply)
}

// RelayMessages returns the conversation of the agent with the given name.
func (h *Handler) RelayMessages(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.Store.GetAgentByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	messages, err := h.deps.Store.ListMessages(r.Context(), a.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	JSON(w, http.StatusOK, filterMessages(messages, a.ShowHeartbeat))
}
