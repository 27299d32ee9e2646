package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/agentdeck/core"
)

// PromptText renders the content sent on the resumable backend's stdin: its
// text parts, then one line per function response.
func PromptText(c core.Content) string {
	text := c.Text()

	resps := c.FunctionResponses()
	if len(resps) == 0 {
		return text
	}

	lines := make([]string, 0, len(resps))
	for _, r := range resps {
		lines = append(lines, fmt.Sprintf("[%s]: %s", r.ID, encodeJSON(r.Response)))
	}

	return text + "\n\ntool results:\n" + strings.Join(lines, "\n")
}

// ContextText flattens earlier contents into a transcript for a fresh start.
func ContextText(contents []core.Content) string {
	entries := make([]string, 0, len(contents))

	for _, c := range contents {
		switch c.Role {
		case core.RoleUser:
			if text := PromptText(c); strings.TrimSpace(text) != "" {
				entries = append(entries, "user: "+text)
			}
		case core.RoleAssistant:
			var parts []string
			for _, p := range c.Parts {
				switch v := p.(type) {
				case core.TextPart:
					if v.Text != "" {
						parts = append(parts, v.Text)
					}
				case core.FunctionCallPart:
					args := v.FunctionCall.Arguments
					if args == "" {
						args = "{}"
					}
					parts = append(parts, fmt.Sprintf("[tool call: %s(%s)]", v.FunctionCall.Name, args))
				}
			}
			if len(parts) > 0 {
				entries = append(entries, "assistant: "+strings.Join(parts, "\n"))
			}
		}
	}

	return strings.Join(entries, "\n\n")
}

func encodeJSON(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	return string(data)
}

func lastUserIndex(contents []core.Content) int {
	for i := len(contents) - 1; i >= 0; i-- {
		if contents[i].Role == core.RoleUser {
			return i
		}
	}
	return -1
}
