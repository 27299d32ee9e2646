package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Dir keeps each agent's workspace in a directory below Root.
type Dir struct {
	Root string
}

// NewDir returns a filesystem workspace rooted at root.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

func (d *Dir) agentDir(agentName string) string {
	return filepath.Join(d.Root, SanitizeName(agentName))
}

func (d *Dir) resolve(agentName, p string) (string, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.agentDir(agentName), filepath.FromSlash(cleaned)), nil
}

// Init creates the agent directory with its memory/ folder and BOOTSTRAP.md.
func (d *Dir) Init(agentName string) error {
	dir := d.agentDir(agentName)

	if err := os.MkdirAll(filepath.Join(dir, MemoryDir), 0o755); err != nil {
		return fmt.Errorf("init workspace: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, BootstrapFile), []byte(BootstrapTemplate), 0o644)
}

// Read returns the file content; ok is false when it does not exist.
func (d *Dir) Read(agentName, p string) (string, bool, error) {
	full, err := d.resolve(agentName, p)
	if err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}

	return string(data), true, nil
}

// Write creates or overwrites a file, creating parent directories.
func (d *Dir) Write(agentName, p, content string) error {
	full, err := d.resolve(agentName, p)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}

	return os.WriteFile(full, []byte(content), 0o644)
}

// Delete removes a file; a missing file is not an error.
func (d *Dir) Delete(agentName, p string) error {
	full, err := d.resolve(agentName, p)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

// Rename moves a workspace to a new agent name. It does nothing when the
// source is missing or the target already exists.
func (d *Dir) Rename(oldName, newName string) error {
	oldDir, newDir := d.agentDir(oldName), d.agentDir(newName)
	if oldDir == newDir {
		return nil
	}

	if _, err := os.Stat(oldDir); err != nil {
		return nil
	}
	if _, err := os.Stat(newDir); err == nil {
		return nil
	}

	return os.Rename(oldDir, newDir)
}

// Remove deletes the whole workspace.
func (d *Dir) Remove(agentName string) error {
	return os.RemoveAll(d.agentDir(agentName))
}

// List returns all file paths relative to the workspace, slash-separated and sorted.
func (d *Dir) List(agentName string) ([]string, error) {
	root := d.agentDir(agentName)

	var files []string

	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == root {
				return fs.SkipAll
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)

	return files, nil
}

// DailyLogs returns yesterday's and today's logs relative to now.
func (d *Dir) DailyLogs(agentName string, now time.Time) (string, error) {
	return formatDailyLogs(now, func(p string) (string, bool, error) {
		return d.Read(agentName, p)
	})
}

// MemoryLogs lists the dated logs under memory/, newest first.
func (d *Dir) MemoryLogs(agentName string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.agentDir(agentName), MemoryDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			files = append(files, MemoryDir+"/"+e.Name())
		}
	}

	return memoryLogNames(files), nil
}
