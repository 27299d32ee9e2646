package backend

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/agentdeck/model"
)

const toolUseInstructions = "you have these tools available. to use a tool, include a json block in your response:\n" +
	"```json\n{\"tool_use\": {\"name\": \"tool_name\", \"input\": {...}}}\n```\n\navailable tools:\n"

// FullInstructions returns the system prompt followed by the tool-use block
// the resumable backend needs, since it has no native tool support.
func FullInstructions(system string, tools []model.ToolDefinition) string {
	if len(tools) == 0 {
		return system
	}

	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\n")
	b.WriteString(toolUseInstructions)

	for i, t := range tools {
		if i > 0 {
			b.WriteByte('\n')
		}

		schema, err := json.Marshal(t.Function.Parameters)
		if err != nil {
			schema = []byte("{}")
		}

		b.WriteString("- ")
		b.WriteString(t.Function.Name)
		b.WriteString(": ")
		b.WriteString(t.Function.Description)
		b.WriteString("\n  parameters: ")
		b.Write(schema)
	}

	return b.String()
}

// PromptHash identifies the full instruction text a session was created with.
func PromptHash(system string, tools []model.ToolDefinition) string {
	return hashText(FullInstructions(system, tools))
}

func hashText(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}
