// Package agentdeck wires the turn engine, its backends, the built-in tools
// and the background triggers into a single Deck. Most applications:
//  1. Create a Deck via New() (optionally supplying a durable store and workspace)
//  2. Start the heartbeat and schedule triggers with Start
//  3. Serve Handler() or submit turns directly with Send
//
// Every unset dependency defaults to an in-memory implementation so a Deck is
// usable in tests without a database or filesystem.
package agentdeck

import (
	"context"
	"net/http"
	"time"

	"github.com/hupe1980/agentdeck/agent"
	"github.com/hupe1980/agentdeck/api"
	"github.com/hupe1980/agentdeck/auth"
	"github.com/hupe1980/agentdeck/backend"
	"github.com/hupe1980/agentdeck/bus"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/engine"
	"github.com/hupe1980/agentdeck/heartbeat"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/model/cli"
	"github.com/hupe1980/agentdeck/model/openai"
	"github.com/hupe1980/agentdeck/scheduler"
	"github.com/hupe1980/agentdeck/store"
	"github.com/hupe1980/agentdeck/tool"
	"github.com/hupe1980/agentdeck/tool/builtin"
	"github.com/hupe1980/agentdeck/workspace"
)

// Options configures a Deck.
type Options struct {
	// Store defaults to store.NewInMemory().
	Store store.Store
	// Workspace defaults to workspace.NewInMemory().
	Workspace core.Workspace
	// WorkspaceRoot is the directory shown to agents as the parent of their workspace.
	WorkspaceRoot string

	// CredentialsPath is the CLI OAuth credentials file.
	CredentialsPath string
	// EnvAPIKey is used when no API key is stored.
	EnvAPIKey string

	// ClaudeBin is the CLI binary of the resumable backend.
	ClaudeBin      string
	BackendTimeout time.Duration
	// Resumable overrides the CLI runner as the OAuth backend.
	Resumable backend.Resumable
	// StatelessModel overrides the Anthropic adapter used with an API key.
	StatelessModel func(apiKey string) model.Model

	AckProvider  backend.AckProvider
	AckDelay     time.Duration
	OpenAIAPIKey string
	OpenAIModel  string

	ScheduleTick time.Duration
	HTTPClient   *http.Client
	Logger       logging.Logger
}

// Deck aggregates the services of a running agentdeck instance.
type Deck struct {
	opts Options

	Store     store.Store
	Workspace core.Workspace
	Auth      *auth.Resolver
	Bus       *bus.Bus
	Tools     *tool.Registry
	Engine    *engine.Engine
	Heartbeat *heartbeat.Trigger
	Scheduler *scheduler.Ticker
	Agents    *agent.Service
}

// New creates a Deck with optional overrides.
func New(optFns ...func(o *Options)) (*Deck, error) {
	opts := Options{
		WorkspaceRoot:   "data/agents",
		CredentialsPath: auth.DefaultCredentialsPath(),
		ClaudeBin:       "claude",
		BackendTimeout:  5 * time.Minute,
		AckProvider:     backend.AckAuto,
		AckDelay:        8 * time.Second,
		OpenAIModel:     "gpt-4o-mini",
		ScheduleTick:    30 * time.Second,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Store == nil {
		opts.Store = store.NewInMemory()
	}
	if opts.Workspace == nil {
		opts.Workspace = workspace.NewInMemory()
	}

	d := &Deck{opts: opts, Store: opts.Store, Workspace: opts.Workspace}
	logger := opts.Logger

	d.Auth = auth.NewResolver(opts.Store, func(o *auth.Options) {
		o.CredentialsPath = opts.CredentialsPath
		o.EnvAPIKey = opts.EnvAPIKey
	})

	// The runner reports backend processes to the engine state so Abort can kill them.
	state := engine.NewState()
	runner := cli.NewRunner(func(o *cli.Options) {
		o.Binary = opts.ClaudeBin
		o.Timeout = opts.BackendTimeout
		o.Tracker = state
		o.Logger = logging.With(logger, "component", "cli")
	})

	resumable := opts.Resumable
	if resumable == nil {
		resumable = runner
	}

	manager := backend.NewManager(d.Auth, opts.Store, resumable, func(o *backend.Options) {
		if opts.StatelessModel != nil {
			o.StatelessModel = opts.StatelessModel
		}
		o.Logger = logging.With(logger, "component", "backend")
	})

	composer := backend.NewComposer(opts.Workspace, opts.Store, opts.Store, func(o *backend.ComposerOptions) {
		o.WorkspaceRoot = opts.WorkspaceRoot
	})

	ack := backend.NewAcknowledger(d.Auth, func(o *backend.AcknowledgerOptions) {
		o.Provider = opts.AckProvider
		o.CLI = runner.Model("haiku")
		if opts.OpenAIAPIKey != "" {
			o.OpenAI = openai.NewModel(func(m *openai.Options) {
				m.APIKey = opts.OpenAIAPIKey
				m.Model = opts.OpenAIModel
				m.MaxCompletionTokens = 256
			})
		}
	})

	d.Bus = bus.New(func(o *bus.Options) { o.Logger = logging.With(logger, "component", "bus") })
	d.Tools = tool.NewRegistry()

	d.Engine = engine.New(engine.Dependencies{
		Agents:       opts.Store,
		Messages:     opts.Store,
		Backend:      manager,
		Prompts:      composer,
		Acknowledger: ack,
		Tools:        d.Tools,
		Publisher:    d.Bus,
		Bootstrap:    d,
	}, func(o *engine.Options) {
		o.State = state
		o.AckDelay = opts.AckDelay
		o.Logger = logging.With(logger, "component", "engine")
	})

	if err := builtin.Register(d.Tools, builtin.Deps{
		Agents:      opts.Store,
		Workspace:   opts.Workspace,
		Memories:    opts.Store,
		Schedules:   opts.Store,
		Credentials: opts.Store,
		Bootstrap:   d,
		Asker:       d.Engine,
		Subagent:    runner.Model,
		HTTPClient:  opts.HTTPClient,
	}); err != nil {
		return nil, err
	}

	d.Heartbeat = heartbeat.New(opts.Store, opts.Workspace, d.Engine, func(o *heartbeat.Options) {
		o.Logger = logging.With(logger, "component", "heartbeat")
	})

	d.Scheduler = scheduler.New(opts.Store, d.Engine, func(o *scheduler.Options) {
		o.Tick = opts.ScheduleTick
		o.Logger = logging.With(logger, "component", "scheduler")
	})

	d.Agents = agent.NewService(opts.Store, opts.Workspace, func(o *agent.Options) {
		o.Heartbeats = d.Heartbeat
		o.Lanes = d.Engine
		o.Subscribers = d.Bus
		o.Publisher = d.Bus
		o.Logger = logging.With(logger, "component", "agent")
	})

	callbackLogger := logging.With(logger, "component", "callbacks")
	d.Engine.Callbacks().RegisterCallback(engine.NewLoggingCallback(engine.CallbackOnAck, callbackLogger))
	d.Engine.Callbacks().RegisterCallback(engine.NewLoggingCallback(engine.CallbackOnError, callbackLogger))

	return d, nil
}

// CompleteBootstrap finishes an agent's bootstrap ritual.
func (d *Deck) CompleteBootstrap(ctx context.Context, agentID string) error {
	return d.Agents.CompleteBootstrap(ctx, agentID)
}

// Start arms the heartbeat timers and the schedule ticker.
func (d *Deck) Start(ctx context.Context) error {
	if err := d.Heartbeat.Start(ctx); err != nil {
		return err
	}
	d.Scheduler.Start(ctx)
	return nil
}

// Stop halts the triggers and cancels running turns.
func (d *Deck) Stop() {
	d.Scheduler.Stop()
	d.Heartbeat.Stop()
	d.Engine.Stop()
}

// Handler returns the HTTP API bound to this Deck.
func (d *Deck) Handler(optFns ...func(o *api.Options)) *api.Handler {
	return api.NewHandler(api.Dependencies{
		Store:     d.Store,
		Workspace: d.Workspace,
		Turns:     d.Engine,
		Agents:    d.Agents,
		Auth:      d.Auth,
		Streams:   d.Bus,
	}, append([]func(o *api.Options){func(o *api.Options) {
		o.Logger = logging.With(d.opts.Logger, "component", "api")
	}}, optFns...)...)
}

// Send runs a turn on the agent with the given name and waits for its reply.
func (d *Deck) Send(ctx context.Context, agentName, content string) (engine.Reply, error) {
	a, err := d.Store.GetAgentByName(ctx, agentName)
	if err != nil {
		return engine.Reply{}, err
	}
	return d.Engine.Enqueue(ctx, a.ID, content).Wait(ctx)
}
