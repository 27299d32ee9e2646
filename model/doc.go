// Package model defines the provider-neutral request/response types and the
// Model interface implemented by the backend adapters (Anthropic, OpenAI and
// the claude CLI). Collect adapts the channel based Generate contract to a
// single final response.
package model
