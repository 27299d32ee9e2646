// Package engine schedules conversational turns.
//
// Every agent owns a lane: turns enqueued for the same agent run strictly one
// after another in enqueue order, whatever the outcome of the previous turn,
// while turns of different agents run concurrently. A turn persists the user
// message, composes the prompt, drives the flow loop against the backend and
// persists and publishes the reply.
//
// # Acknowledgment race
//
// Ordinary chat turns of bootstrapped agents race the tool loop against a
// short timer. When the loop is still busy once the timer fires, a quick
// acknowledgment generated by a lightweight model is persisted and published
// first, so the user sees something while the real answer is on its way:
//
//	p := eng.Enqueue(ctx, agentID, "summarise my inbox", engine.WithOnAck(func(ack string) {
//	    fmt.Println("ack:", ack)
//	}))
//
//	reply, err := p.Wait(ctx)
//
// # Heartbeats
//
// Heartbeat turns run without history and without a session. A reply that is
// essentially HEARTBEAT_OK is suppressed entirely; anything else is stored as
// a heartbeat message and published as heartbeat_alert.
//
// # Abort
//
// Abort cancels the in-flight turn of an agent with cause core.ErrAborted and
// kills the backend process registered through State. Queued turns still run.
package engine
