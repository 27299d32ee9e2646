// Package memory contains core.MemoryStore implementations. Memories are the
// standing facts an agent records with the remember tool; prompt composition
// lists them when the workspace has no MEMORY.md.
package memory
