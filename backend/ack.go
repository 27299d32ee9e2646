package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentdeck/auth"
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/model/anthropic"
)

// AckProvider selects the model that writes acknowledgments.
type AckProvider string

const (
	// AckAuto follows the credential mode: Anthropic for an API key, the CLI for OAuth.
	AckAuto      AckProvider = "auto"
	AckAnthropic AckProvider = "anthropic"
	AckCLI       AckProvider = "cli"
	AckOpenAI    AckProvider = "openai"
)

// ParseAckProvider maps a configuration value to an AckProvider, defaulting to AckAuto.
func ParseAckProvider(s string) AckProvider {
	switch p := AckProvider(strings.ToLower(strings.TrimSpace(s))); p {
	case AckAnthropic, AckCLI, AckOpenAI:
		return p
	default:
		return AckAuto
	}
}

// ErrNoAckModel is returned when the selected provider has no model configured.
var ErrNoAckModel = errors.New("no acknowledgment model configured")

const ackPrompt = `you are %s, an ai agent. the user just sent you this message:

"%s"

you are about to start working on this. generate a short casual acknowledgment (1 sentence, all lowercase) that shows you read their message and are about to get on it. DO NOT answer their question or attempt the task. just acknowledge it like "sounds good, let me look into that" or "ooh nice, give me a sec to work on that". reference what they asked about naturally but don't provide any actual content or answers. just the acknowledgment, nothing else.`

// AcknowledgerOptions configures an Acknowledger.
type AcknowledgerOptions struct {
	Provider AckProvider
	Timeout  time.Duration
	// Anthropic builds the fast API model from a key.
	Anthropic func(apiKey string) model.Model
	// CLI is the fast model of the resumable backend, run without a session.
	CLI model.Model
	// OpenAI is used when Provider is AckOpenAI.
	OpenAI model.Model
}

// Acknowledger produces the short "on it" reply sent while a slow turn runs.
type Acknowledger struct {
	auth Authenticator
	opts AcknowledgerOptions
}

// NewAcknowledger creates an Acknowledger.
func NewAcknowledger(authenticator Authenticator, optFns ...func(o *AcknowledgerOptions)) *Acknowledger {
	opts := AcknowledgerOptions{
		Provider: AckAuto,
		Timeout:  15 * time.Second,
		Anthropic: func(apiKey string) model.Model {
			return anthropic.NewModel(func(o *anthropic.Options) {
				o.APIKey = apiKey
				o.Model = anthropic.ResolveModel("haiku")
				o.MaxTokens = 256
			})
		},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Acknowledger{auth: authenticator, opts: opts}
}

// Acknowledge asks the fast model to acknowledge content on behalf of
// agentName. It returns "" when the model answered with nothing usable.
func (a *Acknowledger) Acknowledge(ctx context.Context, agentName, content string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	llm, err := a.model(ctx)
	if err != nil {
		return "", err
	}

	resp, err := model.Collect(ctx, llm, model.Request{
		Contents: []core.Content{
			core.NewTextContent(core.RoleUser, fmt.Sprintf(ackPrompt, agentName, content)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("acknowledge via %s: %w", llm.Info().Provider, err)
	}

	return strings.TrimSpace(resp.Content.Text()), nil
}

func (a *Acknowledger) model(ctx context.Context) (model.Model, error) {
	provider := a.opts.Provider

	if provider == AckAuto {
		status, err := a.auth.Status(ctx)
		if err != nil {
			return nil, err
		}
		if err := status.Err(); err != nil {
			return nil, err
		}
		provider = AckCLI
		if status.Mode == auth.ModeAPIKey {
			provider = AckAnthropic
		}
	}

	switch provider {
	case AckAnthropic:
		key, err := a.auth.APIKey(ctx)
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, &core.AuthenticationError{Reason: "no api key for acknowledgments"}
		}
		return a.opts.Anthropic(key), nil
	case AckOpenAI:
		if a.opts.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai", ErrNoAckModel)
		}
		return a.opts.OpenAI, nil
	default:
		if a.opts.CLI == nil {
			return nil, fmt.Errorf("%w: cli", ErrNoAckModel)
		}
		return a.opts.CLI, nil
	}
}
