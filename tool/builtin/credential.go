package builtin

import (
	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/tool"
)

type storeCredentialArgs struct {
	Key   string `json:"key" description:"credential name (e.g. github_token)"`
	Value string `json:"value" description:"the secret value to store"`
}

type getCredentialArgs struct {
	Key string `json:"key" description:"credential name to look up"`
}

func newStoreCredential(creds core.CredentialStore) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"store_credential",
		"securely store a credential or secret for later use. credentials are scoped to this agent and persist across tasks.",
		storeCredentialArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			key := tool.StringArg(args, "key")
			if err := creds.PutCredential(tc.Context(), tc.AgentID(), key, tool.StringArg(args, "value")); err != nil {
				return nil, err
			}
			return map[string]any{"stored": true, "key": key}, nil
		},
	)
}

func newGetCredential(creds core.CredentialStore) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"get_credential",
		"retrieve a previously stored credential by key. returns null if not found.",
		getCredentialArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			key := tool.StringArg(args, "key")

			value, ok, err := creds.GetCredential(tc.Context(), tc.AgentID(), key)
			if err != nil {
				return nil, err
			}

			var out any
			if ok && value != "" {
				out = value
			}

			return map[string]any{"key": key, "value": out}, nil
		},
	)
}
