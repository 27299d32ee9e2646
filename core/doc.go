// Package core provides the foundational domain types and collaborator
// interfaces of agentdeck:
//
//   - Agents (configured personas with their own history and workspace)
//   - Messages and embedded ToolCalls (the persisted conversation)
//   - Sessions (continuation handles of the resumable backend)
//   - Events (ephemeral notifications fanned out to live observers)
//   - Content / Part (the provider-neutral conversation representation)
//   - Store and Workspace interfaces implemented by the store and workspace packages
//
// The package keeps implementation concerns (persistence, orchestration,
// transports) out of scope and exposes small interfaces instead.
package core
