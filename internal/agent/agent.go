// Package agent orchestrates a chat turn: transcript replay, retrieval
// context, the model call, and tool dispatch through the runner. The model
// is treated as opaque text-in text-out; tool use travels as a JSON
// directive convention parsed out of the completion.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lifelink/copilot/internal/audit"
	"github.com/lifelink/copilot/internal/conversation"
	"github.com/lifelink/copilot/internal/fault"
	"github.com/lifelink/copilot/internal/llm"
	"github.com/lifelink/copilot/internal/permissions"
	"github.com/lifelink/copilot/internal/rag"
	"github.com/lifelink/copilot/internal/tools"
)

const (
	defaultHistoryLimit  = 10
	defaultMaxToolRounds = 5
	defaultTurnTimeout   = 60 * time.Second
)

// Actor identifies who is chatting. Role gates which tools the model is
// offered at all.
type Actor struct {
	TenantID string
	UserID   string
	Role     permissions.Role
}

// ChatRequest is one user turn.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ToolCall summarizes one tool invocation made during a turn.
type ToolCall struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ChatResponse is the assistant's side of the turn. When a gated tool was
// proposed, Confirmation and ActionID carry the pending approval and Reply
// explains it; the turn itself still succeeds.
type ChatResponse struct {
	SessionID    string                    `json:"session_id"`
	Reply        string                    `json:"reply"`
	ToolCalls    []ToolCall                `json:"tool_calls,omitempty"`
	ActionID     string                    `json:"confirmation_action_id,omitempty"`
	Confirmation *tools.ConfirmationPrompt `json:"confirmation_details,omitempty"`
}

// Options tunes an Agent.
type Options struct {
	HistoryLimit  int
	MaxToolRounds int
	TurnTimeout   time.Duration
}

// Agent drives chat turns against the model, the tool runner and the
// retrieval pipeline.
type Agent struct {
	provider      llm.Provider
	model         string
	runner        *tools.Runner
	pipeline      *rag.Pipeline
	conversations *conversation.Store
	audits        *audit.Store
	log           *zap.Logger

	historyLimit  int
	maxToolRounds int
	turnTimeout   time.Duration
}

// New creates an Agent. The pipeline may be nil when no document index is
// configured; turns then run without retrieved context.
func New(provider llm.Provider, model string, runner *tools.Runner, pipeline *rag.Pipeline, conversations *conversation.Store, audits *audit.Store, log *zap.Logger, opts Options) *Agent {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = defaultMaxToolRounds
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = defaultTurnTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{
		provider:      provider,
		model:         model,
		runner:        runner,
		pipeline:      pipeline,
		conversations: conversations,
		audits:        audits,
		log:           log,
		historyLimit:  opts.HistoryLimit,
		maxToolRounds: opts.MaxToolRounds,
		turnTimeout:   opts.TurnTimeout,
	}
}

// Chat runs one turn. The user message is persisted before the model call,
// so a failed completion still leaves the transcript consistent.
func (a *Agent) Chat(ctx context.Context, actor Actor, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fault.New(fault.KindValidation, "message is required")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	ctx, cancel := context.WithTimeout(ctx, a.turnTimeout)
	defer cancel()

	userMsg, err := a.conversations.Append(ctx, conversation.Message{
		TenantID:  actor.TenantID,
		UserID:    actor.UserID,
		SessionID: req.SessionID,
		Role:      conversation.RoleUser,
		Content:   req.Message,
	})
	if err != nil {
		return nil, err
	}

	history, err := a.conversations.Recent(ctx, actor.TenantID, req.SessionID, a.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	offered := a.runner.Registry().ForRole(actor.Role)
	messages := a.assemble(ctx, actor, req.Message, history, offered)

	resp, calls, err := a.converse(ctx, actor, userMsg.ID, messages)
	if err != nil {
		return nil, err
	}
	resp.SessionID = req.SessionID

	toolCalls := map[string]any(nil)
	if len(calls) > 0 {
		b, _ := json.Marshal(calls)
		toolCalls = map[string]any{"calls": json.RawMessage(b)}
	}
	if _, err := a.conversations.Append(ctx, conversation.Message{
		TenantID:  actor.TenantID,
		UserID:    actor.UserID,
		SessionID: req.SessionID,
		Role:      conversation.RoleAssistant,
		Content:   resp.Reply,
		ToolCalls: toolCalls,
	}); err != nil {
		a.log.Error("persisting assistant message failed",
			zap.String("tenant_id", actor.TenantID),
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
	}

	a.recordQuery(ctx, actor, userMsg.ID, req.Message, resp)
	return resp, nil
}

// converse loops the model until it produces a final answer, a pending
// confirmation, or the round budget runs out.
func (a *Agent) converse(ctx context.Context, actor Actor, conversationID string, messages []llm.Message) (*ChatResponse, []ToolCall, error) {
	var calls []ToolCall

	for round := 0; round < a.maxToolRounds; round++ {
		completion, err := a.provider.Complete(ctx, llm.CompletionRequest{
			Model:       a.model,
			Messages:    messages,
			MaxTokens:   2048,
			Temperature: 0.1,
		})
		if err != nil {
			return nil, nil, fault.Wrap(fault.KindUnavailable, "language model request failed", err)
		}

		directive := parseDirective(completion.Content)
		if directive == nil {
			return &ChatResponse{Reply: strings.TrimSpace(completion.Content), ToolCalls: calls}, calls, nil
		}

		inv := tools.Invocation{
			TenantID:       actor.TenantID,
			UserID:         actor.UserID,
			Role:           actor.Role,
			ConversationID: conversationID,
		}
		result, runErr := a.runner.Run(ctx, inv, directive.Name, tools.Params(directive.Params))

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: completion.Content})

		switch {
		case runErr != nil:
			calls = append(calls, ToolCall{Name: directive.Name, Message: runErr.Error()})
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("Tool %s failed: %s\nExplain the problem to the user.", directive.Name, runErr.Error()),
			})
		case result.ConfirmationRequired:
			calls = append(calls, ToolCall{Name: directive.Name, Success: true, Message: "pending confirmation"})
			return &ChatResponse{
				Reply:        result.Message,
				ToolCalls:    calls,
				ActionID:     result.ActionID,
				Confirmation: result.Confirmation,
			}, calls, nil
		default:
			calls = append(calls, ToolCall{Name: directive.Name, Success: true, Message: result.Message})
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("Tool %s result:\n%s\nAnswer the user based on this result.", directive.Name, renderResult(result)),
			})
		}
	}

	return nil, nil, fault.New(fault.KindInternal, "tool round limit reached without a final answer")
}

func (a *Agent) recordQuery(ctx context.Context, actor Actor, conversationID, message string, resp *ChatResponse) {
	promptTokens := llm.EstimateTokens(message)
	replyTokens := llm.EstimateTokens(resp.Reply)
	output := map[string]any{
		"reply_chars":        len(resp.Reply),
		"estimated_tokens":   promptTokens + replyTokens,
		"estimated_cost_usd": llm.EstimateCost(a.model, promptTokens, replyTokens),
	}
	if len(resp.ToolCalls) > 0 {
		names := make([]string, len(resp.ToolCalls))
		for i, c := range resp.ToolCalls {
			names[i] = c.Name
		}
		output["tools_used"] = strings.Join(names, ",")
	}
	_, err := a.audits.Create(ctx, audit.Record{
		TenantID:       actor.TenantID,
		UserID:         actor.UserID,
		ConversationID: conversationID,
		ActionType:     audit.ActionQuery,
		InputParams:    map[string]any{"message": message},
		OutputResult:   output,
		Status:         audit.StatusSuccess,
		Severity:       audit.SeverityInfo,
	})
	if err != nil {
		a.log.Error("recording query audit failed",
			zap.String("tenant_id", actor.TenantID),
			zap.Error(err),
		)
	}
}

// directive is the tool-use convention the system prompt instructs the
// model to emit.
type directive struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// parseDirective extracts a tool_call directive from model output. Output
// that does not carry one, including malformed JSON, is a final answer.
func parseDirective(content string) *directive {
	jsonStr := content
	if idx := strings.Index(content, "{"); idx >= 0 {
		jsonStr = content[idx:]
	} else {
		return nil
	}
	if idx := strings.LastIndex(jsonStr, "}"); idx >= 0 {
		jsonStr = jsonStr[:idx+1]
	}

	var wrapper struct {
		ToolCall *directive `json:"tool_call"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &wrapper); err != nil {
		return nil
	}
	if wrapper.ToolCall == nil || wrapper.ToolCall.Name == "" {
		return nil
	}
	return wrapper.ToolCall
}

func renderResult(result *tools.Result) string {
	var b strings.Builder
	if result.Message != "" {
		b.WriteString(result.Message)
		b.WriteString("\n")
	}
	if len(result.Data) > 0 {
		data, err := json.MarshalIndent(result.Data, "", "  ")
		if err == nil {
			b.Write(data)
		}
	}
	if b.Len() == 0 {
		return "Operation completed successfully."
	}
	return b.String()
}
