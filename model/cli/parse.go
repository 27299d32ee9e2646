package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/model"
)

// ErrEmptyOutput is returned when the CLI printed nothing parseable.
var ErrEmptyOutput = errors.New("claude cli returned empty response")

type result struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	IsError bool   `json:"is_error"`
	Result  any    `json:"result"`
}

// ParseOutput converts raw CLI stdout into a response. The whole output is
// tried as one JSON document first, then each line from the end.
func ParseOutput(output string, parseTools bool) (model.Response, error) {
	parsed, ok := parseResult(output)
	if !ok {
		if strings.TrimSpace(output) == "" {
			return model.Response{}, &core.BackendProcessError{Err: ErrEmptyOutput}
		}
		return buildResponse(output, parseTools), nil
	}

	text, _ := parsed.Result.(string)

	if parsed.IsError || parsed.Subtype == "error_max_turns" {
		if text != "" && core.IsContextOverflow(core.ClassifyBackendError(errors.New(text))) {
			return model.Response{}, &core.ContextOverflowError{Err: errors.New(text)}
		}
		return buildResponse(text, parseTools), nil
	}

	if parsed.Result != nil && text == "" {
		if _, isString := parsed.Result.(string); !isString {
			data, err := json.Marshal(parsed.Result)
			if err == nil {
				text = string(data)
			}
		}
	}

	if text != "" || parsed.Type == "result" {
		return buildResponse(text, parseTools), nil
	}

	return buildResponse(output, parseTools), nil
}

func parseResult(output string) (result, bool) {
	var r result

	output = strings.TrimSpace(output)
	if output == "" {
		return r, false
	}

	if json.Unmarshal([]byte(output), &r) == nil {
		return r, true
	}

	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if json.Unmarshal([]byte(line), &r) == nil {
			return r, true
		}
	}

	return r, false
}

var jsonBlock = regexp.MustCompile("```json\\s*\\n?\\s*([\\s\\S]*?)\\s*\\n?\\s*```")

var callSeq atomic.Uint64

func nextCallID() string {
	return fmt.Sprintf("toolu_cli_%d_%d", time.Now().UnixMilli(), callSeq.Add(1))
}

func buildResponse(text string, parseTools bool) model.Response {
	content := core.Content{Role: core.RoleAssistant, Parts: []core.Part{core.TextPart{Text: text}}}
	finish := model.FinishStop

	if parseTools {
		for _, call := range ExtractToolCalls(text) {
			content.Parts = append(content.Parts, core.FunctionCallPart{FunctionCall: call})
			finish = model.FinishToolUse
		}
	}

	return model.Response{Content: content, FinishReason: finish}
}

// ExtractToolCalls returns the tool invocations written as
// {"tool_use": {"name": ..., "input": {...}}} objects inside ```json fences.
func ExtractToolCalls(text string) []core.FunctionCall {
	var calls []core.FunctionCall

	for _, match := range jsonBlock.FindAllStringSubmatch(text, -1) {
		for _, raw := range extractObjects(match[1]) {
			var obj struct {
				ToolUse *struct {
					Name  string          `json:"name"`
					Input json.RawMessage `json:"input"`
				} `json:"tool_use"`
			}
			if json.Unmarshal([]byte(raw), &obj) != nil || obj.ToolUse == nil || obj.ToolUse.Name == "" {
				continue
			}

			args := "{}"
			if in := strings.TrimSpace(string(obj.ToolUse.Input)); in != "" && in != "null" {
				args = in
			}

			calls = append(calls, core.FunctionCall{ID: nextCallID(), Name: obj.ToolUse.Name, Arguments: args})
		}
	}

	return calls
}

// extractObjects scans s for balanced top-level {...} spans that parse as
// JSON. Braces inside string literals are ignored.
func extractObjects(s string) []string {
	var out []string

	for i := 0; i < len(s); {
		if s[i] != '{' {
			i++
			continue
		}

		depth, inString, escaped, end := 0, false, false, -1

	scan:
		for j := i; j < len(s); j++ {
			ch := s[j]
			switch {
			case escaped:
				escaped = false
			case ch == '\\' && inString:
				escaped = true
			case ch == '"':
				inString = !inString
			case inString:
			case ch == '{':
				depth++
			case ch == '}':
				depth--
				if depth == 0 {
					end = j
					break scan
				}
			}
		}

		if end < 0 {
			i++
			continue
		}

		if candidate := s[i : end+1]; json.Valid([]byte(candidate)) {
			out = append(out, candidate)
		}

		i = end + 1
	}

	return out
}
