// Package agent manages the lifecycle of agents: creation with a fresh
// workspace, updates that keep the workspace and heartbeat timer in sync,
// deletion that tears down every runtime resource of the agent, and
// completion of the bootstrap ritual.
//
// The Service is the only writer of agent records outside the stores
// themselves; turn execution lives in package engine.
package agent
