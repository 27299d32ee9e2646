// Package workspace stores the per-agent files that shape prompt composition:
// persona files (SOUL.md, IDENTITY.md, USER.md, MEMORY.md), the heartbeat
// checklist, the bootstrap ritual and the dated logs under memory/.
package workspace

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/agentdeck/core"
)

// Well-known workspace files.
const (
	BootstrapFile = "BOOTSTRAP.md"
	SoulFile      = "SOUL.md"
	IdentityFile  = "IDENTITY.md"
	UserFile      = "USER.md"
	MemoryFile    = "MEMORY.md"
	HeartbeatFile = "HEARTBEAT.md"
	MemoryDir     = "memory"
)

// BootstrapTemplate is written to BOOTSTRAP.md when a workspace is initialised.
const BootstrapTemplate = `# bootstrap

you just came online for the first time. you don't know who you are yet.

conduct a short identity ritual with the user:

1. first message: introduce yourself and ask who you are and who the user is. combine questions
2. second message: if you have enough to work with, write your files and complete bootstrap. if not, ask one final clarifying question.
3. third message: you MUST write all files and call complete_bootstrap. no exceptions.

if the user gives you enough context upfront, skip questions entirely. write files and complete bootstrap immediately.

use write_workspace to create your identity files:
- SOUL.md: your personality, values, philosophy, how you think and behave
- IDENTITY.md: your name and signature traits
- USER.md: who the user is, their preferences
- HEARTBEAT.md: what to check on when you wake up periodically
- MEMORY.md: initial memories from this conversation

then call complete_bootstrap to finish setup.

CRITICAL: you MUST call complete_bootstrap or setup will not be saved. bootstrap MUST complete within 3 exchanges. after writing files, ALWAYS call complete_bootstrap in the same response. never end a response after writing files without also calling complete_bootstrap.
`

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeName maps an agent name to its directory name.
func SanitizeName(name string) string {
	return strings.ToLower(unsafeChars.ReplaceAllString(name, "_"))
}

// cleanPath normalises a relative workspace path, rejecting anything that
// would resolve outside the workspace root.
func cleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if path.IsAbs(p) {
		return "", fmt.Errorf("%w: %s", core.ErrPathEscape, p)
	}

	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %s", core.ErrPathEscape, p)
	}

	return cleaned, nil
}

// DailyLogPath returns the dated log file for day t.
func DailyLogPath(t time.Time) string {
	return MemoryDir + "/" + t.Format(time.DateOnly) + ".md"
}

// formatDailyLogs joins yesterday's and today's logs under date headings.
func formatDailyLogs(now time.Time, read func(string) (string, bool, error)) (string, error) {
	yesterday := now.AddDate(0, 0, -1)

	var b strings.Builder

	for _, day := range []time.Time{yesterday, now} {
		content, ok, err := read(DailyLogPath(day))
		if err != nil {
			return "", err
		}
		if !ok || content == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s\n", day.Format(time.DateOnly), content)
	}

	return strings.TrimSpace(b.String()), nil
}

// memoryLogNames extracts the log dates from workspace-relative file names,
// newest first.
func memoryLogNames(files []string) []string {
	names := []string{}

	for _, f := range files {
		dir, name := path.Split(f)
		if dir != MemoryDir+"/" || !strings.HasSuffix(name, ".md") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".md"))
	}

	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	return names
}

var (
	_ core.Workspace = (*Dir)(nil)
	_ core.Workspace = (*InMemory)(nil)
)
