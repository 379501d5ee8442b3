package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lifelink/copilot/internal/conversation"
	"github.com/lifelink/copilot/internal/llm"
	"github.com/lifelink/copilot/internal/rag"
	"github.com/lifelink/copilot/internal/tools"
)

const systemPrompt = `You are the LifeLink assistant, part of an organ procurement management system used by hospital coordination centers.

You help coordination center staff with their daily work:
- Looking up and managing procurement occurrences
- Notifying on-call teams
- Generating operational reports
- Answering questions about procedures and protocols

STRICT RULES:
1. You must NOT make clinical decisions about organ viability.
2. You must NOT modify patient data directly.
3. State-changing actions always go through an explicit confirmation step; tell the user what will change and wait for their approval.
4. Patient data access is logged; show only what is needed and keep names masked as returned by the tools.
5. Be concise. Use lists and short structured answers.

TOOL USE:
To call a tool, respond with ONLY a JSON object of the form
{"tool_call": {"name": "<tool name>", "params": {...}}}
and nothing else. You will receive the tool result and can then answer the user in plain text, or call another tool. Never invent tools or parameters.

Available tools for this user (%s):
%s`

// assemble builds the message list for a turn: system prompt with the tool
// catalog, retrieved documentation when the index has relevant passages,
// then the transcript replay. Retrieval failure never blocks the turn.
func (a *Agent) assemble(ctx context.Context, actor Actor, query string, history []conversation.Message, offered []tools.Tool) []llm.Message {
	messages := []llm.Message{{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf(systemPrompt, actor.Role, toolCatalog(offered)),
	}}

	if a.pipeline != nil {
		res, err := a.pipeline.Retrieve(ctx, actor.TenantID, query, rag.RetrieveOptions{})
		if err != nil {
			a.log.Warn("context retrieval failed, continuing without it",
				zap.String("tenant_id", actor.TenantID),
				zap.Error(err),
			)
		} else if docContext := rag.FormatContext(res); docContext != "" {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: docContext})
		}
	}

	for _, msg := range history {
		role := llm.RoleUser
		if msg.Role == conversation.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: msg.Content})
	}
	return messages
}

func toolCatalog(offered []tools.Tool) string {
	if len(offered) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, t := range offered {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description())
	}
	return strings.TrimRight(b.String(), "\n")
}
