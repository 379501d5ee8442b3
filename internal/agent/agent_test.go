package agent

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/lifelink/copilot/internal/audit"
	"github.com/lifelink/copilot/internal/conversation"
	"github.com/lifelink/copilot/internal/db"
	"github.com/lifelink/copilot/internal/fault"
	"github.com/lifelink/copilot/internal/llm"
	"github.com/lifelink/copilot/internal/permissions"
	"github.com/lifelink/copilot/internal/tools"
)

// scriptedProvider replays canned completions in order and records every
// request it receives.
type scriptedProvider struct {
	replies  []string
	requests []llm.CompletionRequest
	err      error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	idx := len(p.requests) - 1
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	return &llm.CompletionResponse{Content: p.replies[idx], Model: "test-model"}, nil
}

type stubTool struct {
	name    string
	confirm bool
	calls   atomic.Int64
	result  *tools.Result
	execErr error
}

func (s *stubTool) Name() string               { return s.name }
func (s *stubTool) Description() string        { return "stub tool" }
func (s *stubTool) RequiresConfirmation() bool { return s.confirm }
func (s *stubTool) Severity() audit.Severity   { return audit.SeverityInfo }

func (s *stubTool) Prompt(_ tools.Invocation, _ tools.Params) tools.ConfirmationPrompt {
	return tools.ConfirmationPrompt{Message: "Proceed?", Action: s.name}
}

func (s *stubTool) Execute(_ context.Context, _ tools.Invocation, _ tools.Params) (*tools.Result, error) {
	s.calls.Add(1)
	if s.execErr != nil {
		return nil, s.execErr
	}
	if s.result != nil {
		return s.result, nil
	}
	return &tools.Result{Message: "ok"}, nil
}

type fixture struct {
	agent         *Agent
	provider      *scriptedProvider
	conversations *conversation.Store
	audits        *audit.Store
}

func setupAgent(t *testing.T, provider *scriptedProvider, ts ...tools.Tool) *fixture {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	audits := audit.NewStore(database)
	conversations := conversation.NewStore(database)

	registry, err := tools.NewRegistry(ts...)
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	runner := tools.NewRunner(registry, audits, zap.NewNop())

	a := New(provider, "test-model", runner, nil, conversations, audits, zap.NewNop(), Options{})
	return &fixture{agent: a, provider: provider, conversations: conversations, audits: audits}
}

func testActor() Actor {
	return Actor{TenantID: "tenant-1", UserID: "user-1", Role: permissions.RoleOperator}
}

func TestChatPlainAnswer(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"All quiet on the roster today."}}
	fx := setupAgent(t, provider, &stubTool{name: "list_occurrences"})
	ctx := context.Background()

	resp, err := fx.agent.Chat(ctx, testActor(), ChatRequest{Message: "anything going on?"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Reply != "All quiet on the roster today." {
		t.Errorf("unexpected reply %q", resp.Reply)
	}
	if resp.SessionID == "" {
		t.Error("expected a minted session ID")
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("expected no tool calls, got %d", len(resp.ToolCalls))
	}

	messages, err := fx.conversations.Recent(ctx, "tenant-1", resp.SessionID, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(messages))
	}
	if messages[0].Role != conversation.RoleUser || messages[1].Role != conversation.RoleAssistant {
		t.Errorf("unexpected roles %s, %s", messages[0].Role, messages[1].Role)
	}

	records, err := fx.audits.ListByUser(ctx, "tenant-1", "user-1", audit.ListFilter{ActionType: audit.ActionQuery})
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 query audit record, got %d", len(records))
	}
	if records[0].Status != audit.StatusSuccess {
		t.Errorf("expected success status, got %s", records[0].Status)
	}
}

func TestChatSystemPromptListsAllowedTools(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"ok"}}
	fx := setupAgent(t, provider,
		&stubTool{name: "list_occurrences"},
		&stubTool{name: "send_team_notification"},
	)

	actor := testActor() // operator: may list, may not notify
	_, err := fx.agent.Chat(context.Background(), actor, ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	system := provider.requests[0].Messages[0]
	if system.Role != llm.RoleSystem {
		t.Fatalf("first message should be the system prompt, got role %s", system.Role)
	}
	if !strings.Contains(system.Content, "list_occurrences") {
		t.Error("system prompt should offer list_occurrences to an operator")
	}
	if strings.Contains(system.Content, "send_team_notification") {
		t.Error("system prompt must not offer send_team_notification to an operator")
	}
}

func TestChatRunsToolThenAnswers(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		`{"tool_call": {"name": "list_occurrences", "params": {"status": "open"}}}`,
		"There are 2 open occurrences.",
	}}
	tool := &stubTool{name: "list_occurrences", result: &tools.Result{
		Data:    map[string]any{"total": 2},
		Message: "Found 2 occurrences.",
	}}
	fx := setupAgent(t, provider, tool)

	resp, err := fx.agent.Chat(context.Background(), testActor(), ChatRequest{Message: "show open occurrences"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if tool.calls.Load() != 1 {
		t.Fatalf("expected 1 tool execution, got %d", tool.calls.Load())
	}
	if resp.Reply != "There are 2 open occurrences." {
		t.Errorf("unexpected reply %q", resp.Reply)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "list_occurrences" || !resp.ToolCalls[0].Success {
		t.Errorf("unexpected tool call summary %+v", resp.ToolCalls)
	}

	// The second model request must carry the tool result.
	second := provider.requests[1].Messages
	last := second[len(second)-1]
	if !strings.Contains(last.Content, "Found 2 occurrences.") {
		t.Errorf("tool result not fed back to the model: %q", last.Content)
	}
}

func TestChatSurfacesPendingConfirmation(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		`{"tool_call": {"name": "update_occurrence_status", "params": {"occurrence_id": "abc", "new_status": "completed"}}}`,
	}}
	tool := &stubTool{name: "update_occurrence_status", confirm: true}
	fx := setupAgent(t, provider, tool)

	resp, err := fx.agent.Chat(context.Background(), testActor(), ChatRequest{Message: "mark abc completed"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if tool.calls.Load() != 0 {
		t.Fatal("gated tool must not execute before confirmation")
	}
	if resp.ActionID == "" {
		t.Fatal("expected a confirmation action ID")
	}
	if resp.Confirmation == nil || resp.Confirmation.Message != "Proceed?" {
		t.Errorf("expected the confirmation prompt, got %+v", resp.Confirmation)
	}

	rec, err := fx.audits.GetByID(context.Background(), "tenant-1", resp.ActionID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Status != audit.StatusPending {
		t.Errorf("expected pending audit record, got %s", rec.Status)
	}
}

func TestChatFeedsToolErrorBackToModel(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		`{"tool_call": {"name": "list_occurrences", "params": {}}}`,
		"The occurrence service is unavailable right now.",
	}}
	tool := &stubTool{name: "list_occurrences", execErr: fault.New(fault.KindUnavailable, "backend down")}
	fx := setupAgent(t, provider, tool)

	resp, err := fx.agent.Chat(context.Background(), testActor(), ChatRequest{Message: "list occurrences"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Reply != "The occurrence service is unavailable right now." {
		t.Errorf("unexpected reply %q", resp.Reply)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Success {
		t.Errorf("tool call should be recorded as failed: %+v", resp.ToolCalls)
	}
	last := provider.requests[1].Messages
	if !strings.Contains(last[len(last)-1].Content, "failed") {
		t.Error("tool failure not fed back to the model")
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	fx := setupAgent(t, &scriptedProvider{replies: []string{"x"}}, &stubTool{name: "list_occurrences"})

	_, err := fx.agent.Chat(context.Background(), testActor(), ChatRequest{Message: "   "})
	if !fault.IsKind(err, fault.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestChatWrapsProviderFailure(t *testing.T) {
	provider := &scriptedProvider{err: context.DeadlineExceeded}
	fx := setupAgent(t, provider, &stubTool{name: "list_occurrences"})

	_, err := fx.agent.Chat(context.Background(), testActor(), ChatRequest{Message: "hello"})
	if !fault.IsKind(err, fault.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestChatStopsAtToolRoundLimit(t *testing.T) {
	// The model keeps asking for the same tool and never answers.
	provider := &scriptedProvider{replies: []string{
		`{"tool_call": {"name": "list_occurrences", "params": {}}}`,
	}}
	tool := &stubTool{name: "list_occurrences"}
	fx := setupAgent(t, provider, tool)

	_, err := fx.agent.Chat(context.Background(), testActor(), ChatRequest{Message: "loop forever"})
	if !fault.IsKind(err, fault.KindInternal) {
		t.Fatalf("expected internal error at round limit, got %v", err)
	}
	if tool.calls.Load() != int64(defaultMaxToolRounds) {
		t.Errorf("expected %d tool executions, got %d", defaultMaxToolRounds, tool.calls.Load())
	}
}

func TestParseDirective(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain text", "Hello, how can I help?", ""},
		{"bare directive", `{"tool_call": {"name": "list_occurrences", "params": {"status": "open"}}}`, "list_occurrences"},
		{"fenced directive", "```json\n{\"tool_call\": {\"name\": \"generate_report\", \"params\": {}}}\n```", "generate_report"},
		{"other json", `{"answer": "42"}`, ""},
		{"broken json", `{"tool_call": {`, ""},
		{"empty name", `{"tool_call": {"name": "", "params": {}}}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := parseDirective(tt.content)
			got := ""
			if d != nil {
				got = d.Name
			}
			if got != tt.want {
				t.Errorf("parseDirective(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}
