// Package api serves the HTTP surface of agentdeck: agent management, chat
// submission, the live event stream and the relay used by chat bridges.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hupe1980/agentdeck/agent"
	"github.com/hupe1980/agentdeck/auth"
	"github.com/hupe1980/agentdeck/bus"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/engine"
	"github.com/hupe1980/agentdeck/logging"
)

// Store is the persistence surface read by the handlers.
type Store interface {
	core.AgentStore
	core.MessageStore
	core.MemoryStore
	core.ScheduleStore
	Ping(ctx context.Context) error
}

// Turns submits and controls turns. *engine.Engine implements it.
type Turns interface {
	Enqueue(ctx context.Context, agentID, content string, optFns ...engine.EnqueueOption) *engine.Pending
	Abort(agentID string) bool
	IsProcessing(agentID string) bool
}

// Agents manages the agent lifecycle. *agent.Service implements it.
type Agents interface {
	Create(ctx context.Context, in agent.CreateInput) (*core.Agent, error)
	Update(ctx context.Context, id string, in agent.UpdateInput) (*core.Agent, error)
	Delete(ctx context.Context, id string) error
}

// Auth manages backend credentials. *auth.Resolver implements it.
type Auth interface {
	Status(ctx context.Context) (auth.Status, error)
	SetAPIKey(ctx context.Context, key string) error
	RemoveAPIKey(ctx context.Context) error
	SetSetupToken(token string) error
}

// Streams attaches live observers. *bus.Bus implements it.
type Streams interface {
	Subscribe(agentID string) *bus.Subscription
}

// Dependencies are the collaborators the handlers delegate to.
type Dependencies struct {
	Store     Store
	Workspace core.Workspace
	Turns     Turns
	Agents    Agents
	Auth      Auth
	Streams   Streams
}

// Options configures a Handler.
type Options struct {
	// RelaySecret is the bearer token of the relay endpoints. Empty disables them.
	RelaySecret string
	// RelayTimeout bounds how long a waiting relay request blocks for a reply.
	RelayTimeout time.Duration
	// AllowedOrigins are matched by the CORS middleware and the stream upgrade.
	AllowedOrigins []string
	// WriteTimeout bounds a single stream frame write.
	WriteTimeout time.Duration
	Logger       logging.Logger
}

// Handler holds the dependencies shared by all routes.
type Handler struct {
	deps Dependencies
	opts Options
}

// NewHandler creates a Handler.
func NewHandler(deps Dependencies, optFns ...func(o *Options)) *Handler {
	opts := Options{
		RelayTimeout:   10 * time.Minute,
		AllowedOrigins: []string{"*"},
		WriteTimeout:   5 * time.Second,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Handler{deps: deps, opts: opts}
}

// Routes returns the router serving every endpoint.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(CORS(h.opts.AllowedOrigins))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		h.registerAuthRoutes(r)
		h.registerAgentRoutes(r)
	})

	r.Route("/relay", h.registerRelayRoutes)

	return r
}

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]string{"api": "ok", "database": "ok"},
	}
	code := http.StatusOK

	if err := h.deps.Store.Ping(ctx); err != nil {
		h.opts.Logger.Error("health.check.failed", "error", err)
		status["status"] = "degraded"
		status["checks"] = map[string]string{"api": "ok", "database": "unreachable"}
		code = http.StatusServiceUnavailable
	}

	JSON(w, code, status)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// fail maps domain errors to status codes.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrUnknownAgent):
		Error(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, core.ErrAgentExists):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, agent.ErrNameRequired),
		errors.Is(err, auth.ErrInvalidCredential),
		errors.Is(err, core.ErrPathEscape):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		h.opts.Logger.Error("http.request.failed", "method", r.Method, "path", r.URL.Path, "error", err)
		Error(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			h.opts.Logger.Debug("http.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chiMiddleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// CORS returns middleware that handles CORS headers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" && originAllowed(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
