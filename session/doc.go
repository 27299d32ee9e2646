// Package session houses implementations of core.SessionStore, the binding
// between an agent and its resumable backend continuation handle. The
// contract lives in core so the backend manager never depends on a concrete
// store; the SQLite implementation lives in package store.
package session
