package workspace

import (
	"sort"
	"sync"
	"time"
)

// InMemory is an in-process Workspace for tests and ephemeral deployments.
//
// Layout: sanitized agent name -> relative path -> content.
type InMemory struct {
	mu    sync.RWMutex
	files map[string]map[string]string
}

// NewInMemory returns an empty in-memory workspace.
func NewInMemory() *InMemory {
	return &InMemory{files: make(map[string]map[string]string)}
}

// Init seeds BOOTSTRAP.md for the agent.
func (m *InMemory) Init(agentName string) error {
	return m.Write(agentName, BootstrapFile, BootstrapTemplate)
}

// Read returns the file content; ok is false when it does not exist.
func (m *InMemory) Read(agentName, p string) (string, bool, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return "", false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	content, ok := m.files[SanitizeName(agentName)][cleaned]

	return content, ok, nil
}

// Write stores (or overwrites) a file.
func (m *InMemory) Write(agentName, p, content string) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := SanitizeName(agentName)
	if _, exists := m.files[key]; !exists {
		m.files[key] = make(map[string]string)
	}
	m.files[key][cleaned] = content

	return nil
}

// Delete removes a file if present.
func (m *InMemory) Delete(agentName, p string) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files[SanitizeName(agentName)], cleaned)

	return nil
}

// Rename moves the workspace unless the target exists.
func (m *InMemory) Rename(oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldKey, newKey := SanitizeName(oldName), SanitizeName(newName)
	files, ok := m.files[oldKey]
	if !ok || oldKey == newKey {
		return nil
	}
	if _, exists := m.files[newKey]; exists {
		return nil
	}

	m.files[newKey] = files
	delete(m.files, oldKey)

	return nil
}

// Remove drops the whole workspace.
func (m *InMemory) Remove(agentName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, SanitizeName(agentName))

	return nil
}

// List returns a sorted snapshot of the file paths.
func (m *InMemory) List(agentName string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := m.files[SanitizeName(agentName)]

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	return paths, nil
}

// DailyLogs returns yesterday's and today's logs relative to now.
func (m *InMemory) DailyLogs(agentName string, now time.Time) (string, error) {
	return formatDailyLogs(now, func(p string) (string, bool, error) {
		return m.Read(agentName, p)
	})
}

// MemoryLogs lists the dated logs under memory/, newest first.
func (m *InMemory) MemoryLogs(agentName string) ([]string, error) {
	files, err := m.List(agentName)
	if err != nil {
		return nil, err
	}

	return memoryLogNames(files), nil
}
