package confirm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/lifelink/copilot/internal/audit"
	"github.com/lifelink/copilot/internal/db"
	"github.com/lifelink/copilot/internal/fault"
	"github.com/lifelink/copilot/internal/permissions"
	"github.com/lifelink/copilot/internal/tools"
)

// gatedTool is a confirmation-gated tool that counts real executions.
type gatedTool struct {
	calls atomic.Int64
}

func (g *gatedTool) Name() string               { return "update_occurrence_status" }
func (g *gatedTool) Description() string        { return "gated test tool" }
func (g *gatedTool) RequiresConfirmation() bool { return true }
func (g *gatedTool) Severity() audit.Severity   { return audit.SeverityWarn }

func (g *gatedTool) Prompt(tools.Invocation, tools.Params) tools.ConfirmationPrompt {
	return tools.ConfirmationPrompt{Message: "Proceed?", Action: "Update Status"}
}

func (g *gatedTool) Execute(_ context.Context, _ tools.Invocation, params tools.Params) (*tools.Result, error) {
	g.calls.Add(1)
	return &tools.Result{
		Data:    map[string]any{"new_status": params.String("new_status")},
		Message: "updated",
	}, nil
}

func setup(t *testing.T) (*Manager, *tools.Runner, *audit.Store, *gatedTool) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	tool := &gatedTool{}
	registry, err := tools.NewRegistry(tool)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	audits := audit.NewStore(database)
	runner := tools.NewRunner(registry, audits, zap.NewNop())
	return NewManager(audits, runner, zap.NewNop()), runner, audits, tool
}

func propose(t *testing.T, runner *tools.Runner) string {
	t.Helper()
	res, err := runner.Run(context.Background(), tools.Invocation{
		TenantID: "t1", UserID: "u1", Role: permissions.RoleOperator,
	}, "update_occurrence_status", tools.Params{"new_status": "completed"})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !res.ConfirmationRequired || res.ActionID == "" {
		t.Fatalf("proposal did not request confirmation: %+v", res)
	}
	return res.ActionID
}

func actor() Actor {
	return Actor{TenantID: "t1", UserID: "u1", Role: permissions.RoleOperator}
}

func TestResolveApproveExecutes(t *testing.T) {
	m, runner, audits, tool := setup(t)
	ctx := context.Background()
	actionID := propose(t, runner)

	resolution, err := m.Resolve(ctx, actor(), actionID, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !resolution.Approved || resolution.Status != audit.StatusSuccess {
		t.Errorf("resolution = %+v", resolution)
	}
	if resolution.Result == nil || resolution.Result.Data["new_status"] != "completed" {
		t.Errorf("result = %+v", resolution.Result)
	}
	if got := tool.calls.Load(); got != 1 {
		t.Errorf("tool executed %d times, want 1", got)
	}

	rec, err := audits.GetByID(ctx, "t1", actionID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Status != audit.StatusSuccess {
		t.Errorf("record status = %s", rec.Status)
	}
}

func TestResolveRejectCancelsWithoutExecuting(t *testing.T) {
	m, runner, audits, tool := setup(t)
	ctx := context.Background()
	actionID := propose(t, runner)

	resolution, err := m.Resolve(ctx, actor(), actionID, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolution.Approved || resolution.Status != audit.StatusCancelled {
		t.Errorf("resolution = %+v", resolution)
	}
	if got := tool.calls.Load(); got != 0 {
		t.Errorf("rejected tool executed %d times", got)
	}

	rec, err := audits.GetByID(ctx, "t1", actionID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Status != audit.StatusCancelled {
		t.Errorf("record status = %s", rec.Status)
	}
}

func TestResolveUnknownAction(t *testing.T) {
	m, _, _, _ := setup(t)
	_, err := m.Resolve(context.Background(), actor(), "no-such-action", true)
	if !fault.IsKind(err, fault.KindNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestResolveAlreadyResolvedIsConflict(t *testing.T) {
	m, runner, _, _ := setup(t)
	ctx := context.Background()
	actionID := propose(t, runner)

	if _, err := m.Resolve(ctx, actor(), actionID, true); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	_, err := m.Resolve(ctx, actor(), actionID, true)
	if !fault.IsKind(err, fault.KindConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
}

func TestResolveOwnershipEnforced(t *testing.T) {
	m, runner, _, tool := setup(t)
	ctx := context.Background()
	actionID := propose(t, runner)

	other := Actor{TenantID: "t1", UserID: "u2", Role: permissions.RoleAdmin}
	_, err := m.Resolve(ctx, other, actionID, true)
	if !fault.IsKind(err, fault.KindPermission) {
		t.Fatalf("got %v, want permission error", err)
	}
	if got := tool.calls.Load(); got != 0 {
		t.Errorf("tool executed %d times for non-owner", got)
	}
}

func TestResolveWrongTenantIsNotFound(t *testing.T) {
	m, runner, _, _ := setup(t)
	actionID := propose(t, runner)

	foreign := Actor{TenantID: "t2", UserID: "u1", Role: permissions.RoleOperator}
	_, err := m.Resolve(context.Background(), foreign, actionID, true)
	if !fault.IsKind(err, fault.KindNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestConcurrentResolveExecutesOnce(t *testing.T) {
	m, runner, _, tool := setup(t)
	ctx := context.Background()
	actionID := propose(t, runner)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int64
		conflicts atomic.Int64
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Resolve(ctx, actor(), actionID, true)
			switch {
			case err == nil:
				successes.Add(1)
			case fault.IsKind(err, fault.KindConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Errorf("successful resolves = %d, want exactly 1", got)
	}
	if got := conflicts.Load(); got != attempts-1 {
		t.Errorf("conflicts = %d, want %d", got, attempts-1)
	}
	if got := tool.calls.Load(); got != 1 {
		t.Errorf("tool executed %d times, want exactly 1", got)
	}
}
