package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/agentdeck/logging"
)

// CallbackType names a point in the turn lifecycle.
type CallbackType string

const (
	// CallbackBeforeTurn runs once the turn owns its lane, before anything is
	// persisted. An error fails the turn.
	CallbackBeforeTurn CallbackType = "before_turn"

	// CallbackOnAck runs after an acknowledgment was delivered.
	CallbackOnAck CallbackType = "on_ack"

	// CallbackAfterTurn runs after the reply was persisted and published.
	CallbackAfterTurn CallbackType = "after_turn"

	// CallbackOnError runs when a turn fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext describes the turn a callback runs for.
type CallbackContext struct {
	AgentID string
	Kind    TurnKind
	// Content is the user content of the turn.
	Content string
	// Ack is set for CallbackOnAck.
	Ack string
	// Reply is set for CallbackAfterTurn.
	Reply *Reply
	// Err is set for CallbackOnError.
	Err          error
	CallbackType CallbackType
}

// Callback is a turn lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a callback from fn.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type implements Callback.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute implements Callback.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager routes lifecycle points to the registered callbacks.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty CallbackManager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds callback for its type. Callbacks run in registration order.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs the callbacks of callbackType and stops at the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback writes one structured entry per lifecycle point.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a LoggingCallback.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type implements Callback.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute implements Callback.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}

	args := []any{"agent_id", callbackCtx.AgentID, "kind", callbackCtx.Kind}

	if r := callbackCtx.Reply; r != nil {
		args = append(args, "message_id", r.ID, "tool_calls", len(r.ToolCalls), "suppressed", r.Suppressed)
	}
	if callbackCtx.Err != nil {
		args = append(args, "error", callbackCtx.Err.Error())
	}

	c.logger.Info("turn."+string(c.callbackType), args...)

	return nil
}
