package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"github.com/hupe1980/agentdeck/core"
)

// Stream upgrades to a websocket and forwards the agent's events as JSON
// text frames. The first frame is connected, followed by typing when a turn
// is already running. Frames are never replayed.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agent(w, r)
	if !ok {
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.opts.AllowedOrigins),
	})
	if err != nil {
		h.opts.Logger.Warn("stream.accept.failed", "agent_id", a.ID, "error", err)
		return
	}
	defer ws.CloseNow()

	// Subscribe before the greeting so nothing published in between is lost.
	sub := h.deps.Streams.Subscribe(a.ID)
	defer sub.Close()

	h.opts.Logger.Debug("stream.opened", "agent_id", a.ID)

	// The client sends nothing; CloseRead cancels ctx once it disconnects.
	ctx := ws.CloseRead(r.Context())

	if err := h.writeEvent(ctx, ws, core.NewEvent(a.ID, core.EventConnected, core.ConnectedData{AgentID: a.ID})); err != nil {
		return
	}
	if h.deps.Turns.IsProcessing(a.ID) {
		if err := h.writeEvent(ctx, ws, core.NewEvent(a.ID, core.EventTyping, core.TypingData{Active: true})); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.opts.Logger.Debug("stream.closed", "agent_id", a.ID)
			return
		case ev, ok := <-sub.C():
			if !ok {
				_ = ws.Close(websocket.StatusGoingAway, "agent removed")
				return
			}
			if err := h.writeEvent(ctx, ws, ev); err != nil {
				h.opts.Logger.Debug("stream.write.failed", "agent_id", a.ID, "error", err)
				return
			}
		}
	}
}

func (h *Handler) writeEvent(ctx context.Context, ws *websocket.Conn, ev core.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
	defer cancel()

	return ws.Write(ctx, websocket.MessageText, data)
}

// originPatterns converts allowed origins to the host patterns the upgrader matches.
func originPatterns(allowed []string) []string {
	patterns := make([]string, 0, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
