// Package testutil contains helper builders and scripted doubles used across
// tests to reduce boilerplate when constructing agents, messages and
// conversation contents, and when faking the backend. They are not intended
// for production usage.
package testutil
