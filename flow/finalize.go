package flow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/internal/util"
)

const synthesizedOutputLimit = 10000

var (
	rawResultJSON = regexp.MustCompile(`^\s*\{.*"type"\s*:\s*"result"`)
	breadcrumbs   = regexp.MustCompile(`\n*\[used \w+:[\s\S]*$`)
)

// Finalize builds the reply of a turn from the backend's final text, the
// intermediate prose published along the way and the recorded tool calls.
func Finalize(text string, intermediates []string, calls []core.ToolCall) string {
	if rawResultJSON.MatchString(text) {
		text = ""
	}

	// Backends echo the history breadcrumbs back; they are not part of the reply.
	final := strings.TrimSpace(breadcrumbs.ReplaceAllString(text, ""))

	if final == "" && len(calls) > 0 {
		last := calls[len(calls)-1]
		final = fmt.Sprintf("done (used %s)\n\n%s", last.Name, util.Truncate(prettyOutput(last.Output), synthesizedOutputLimit))
	}

	reply := final

	if n := len(intermediates); n > 0 {
		last := intermediates[n-1]

		switch {
		case final == "":
			reply = strings.Join(intermediates, "\n\n")
		case final == last || strings.Contains(last, final):
			reply = strings.Join(intermediates, "\n\n")
		case strings.Contains(final, last):
			reply = strings.Join(append(append([]string{}, intermediates[:n-1]...), final), "\n\n")
		default:
			reply = strings.Join(intermediates, "\n\n") + "\n\n" + final
		}
	}

	return strings.TrimSpace(util.CollapseBlankLines(reply))
}

func prettyOutput(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	return string(data)
}
