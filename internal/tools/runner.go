package tools

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lifelink/copilot/internal/audit"
	"github.com/lifelink/copilot/internal/fault"
	"github.com/lifelink/copilot/internal/permissions"
)

// Runner executes tools with the full guard sequence: permission check,
// confirmation gate, execution with panic recovery, and an audit record on
// every path including denials and failures.
type Runner struct {
	registry *Registry
	audits   *audit.Store
	log      *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(registry *Registry, audits *audit.Store, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{registry: registry, audits: audits, log: log}
}

// Registry exposes the runner's tool set for listing surfaces.
func (r *Runner) Registry() *Registry { return r.registry }

// Run invokes the named tool for inv. Gated tools that have not been
// confirmed yet do not execute: Run records a pending audit entry and
// returns a confirmation request whose action ID is that entry. The confirm
// flow later claims the entry and re-enters through ExecuteClaimed.
func (r *Runner) Run(ctx context.Context, inv Invocation, name string, params Params) (*Result, error) {
	start := time.Now()

	tool, err := r.registry.Get(name)
	if err != nil {
		return nil, err
	}

	if err := permissions.Check(inv.Role, name); err != nil {
		r.record(ctx, inv, tool, params, audit.StatusFailed, nil, err, time.Since(start))
		r.log.Warn("tool permission denied",
			zap.String("tool", name),
			zap.String("user_id", inv.UserID),
			zap.String("role", string(inv.Role)),
		)
		return nil, err
	}

	if tool.RequiresConfirmation() && !inv.Confirmed {
		return r.requestConfirmation(ctx, inv, tool, params)
	}

	result, execErr := r.invoke(ctx, inv, tool, params)
	elapsed := time.Since(start)

	if execErr != nil {
		r.record(ctx, inv, tool, params, audit.StatusFailed, nil, execErr, elapsed)
		r.logFailure(tool, inv, execErr)
		return nil, execErr
	}

	result.ExecutionTimeMS = elapsed.Milliseconds()
	r.record(ctx, inv, tool, params, audit.StatusSuccess, result, nil, elapsed)
	r.logSuccess(tool, inv, result)
	return result, nil
}

// ExecuteClaimed runs a confirmed tool and resolves the already-claimed
// audit record actionID with the outcome. The caller has verified ownership
// and won the claim; the permission matrix was checked when the action was
// proposed and the role cannot have produced the record otherwise.
func (r *Runner) ExecuteClaimed(ctx context.Context, inv Invocation, actionID, name string, params Params) (*Result, error) {
	start := time.Now()

	tool, err := r.registry.Get(name)
	if err != nil {
		return nil, err
	}

	inv.Confirmed = true
	result, execErr := r.invoke(ctx, inv, tool, params)
	elapsed := time.Since(start)

	out := audit.Outcome{ExecutionTimeMS: elapsed.Milliseconds()}
	if execErr != nil {
		out.Status = audit.StatusFailed
		out.ErrorMessage = execErr.Error()
	} else {
		out.Status = audit.StatusSuccess
		out.OutputResult = result.Data
		result.ExecutionTimeMS = elapsed.Milliseconds()
	}

	if upErr := r.audits.UpdateStatus(ctx, inv.TenantID, actionID, out); upErr != nil {
		r.log.Error("resolving claimed audit record failed",
			zap.String("action_id", actionID),
			zap.Error(upErr),
		)
	}

	if execErr != nil {
		r.logFailure(tool, inv, execErr)
		return nil, execErr
	}
	r.logSuccess(tool, inv, result)
	return result, nil
}

// invoke isolates the panic recovery so a buggy tool surfaces as an internal
// error instead of taking the request down.
func (r *Runner) invoke(ctx context.Context, inv Invocation, tool Tool, params Params) (result *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = fault.Newf(fault.KindInternal, "tool %s panicked: %v", tool.Name(), p)
		}
	}()
	result, err = tool.Execute(ctx, inv, params)
	if err == nil && result == nil {
		err = fault.Newf(fault.KindInternal, "tool %s returned no result", tool.Name())
	}
	return result, err
}

// requestConfirmation parks the invocation as a pending audit record and
// hands back the prompt. Nothing has executed at this point.
func (r *Runner) requestConfirmation(ctx context.Context, inv Invocation, tool Tool, params Params) (*Result, error) {
	prompt := tool.Prompt(inv, params)

	actionID, err := r.audits.Create(ctx, audit.Record{
		TenantID:       inv.TenantID,
		UserID:         inv.UserID,
		ConversationID: inv.ConversationID,
		ActionType:     audit.ActionToolExecution,
		ToolName:       tool.Name(),
		InputParams:    params,
		Status:         audit.StatusPending,
		Severity:       tool.Severity(),
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("confirmation requested",
		zap.String("tool", tool.Name()),
		zap.String("user_id", inv.UserID),
		zap.String("action_id", actionID),
	)

	return &Result{
		Message:              "This action requires confirmation. " + prompt.Message,
		ConfirmationRequired: true,
		ActionID:             actionID,
		Confirmation:         &prompt,
	}, nil
}

func (r *Runner) record(ctx context.Context, inv Invocation, tool Tool, params Params, status audit.Status, result *Result, execErr error, elapsed time.Duration) {
	rec := audit.Record{
		TenantID:        inv.TenantID,
		UserID:          inv.UserID,
		ConversationID:  inv.ConversationID,
		ActionType:      audit.ActionToolExecution,
		ToolName:        tool.Name(),
		InputParams:     params,
		Status:          status,
		ExecutionTimeMS: elapsed.Milliseconds(),
		Severity:        tool.Severity(),
	}
	if execErr != nil {
		rec.ErrorMessage = execErr.Error()
	}
	if result != nil {
		rec.OutputResult = result.Data
	}

	if _, err := r.audits.Create(ctx, rec); err != nil {
		// The action already happened; losing the trail entry is worth a
		// loud log but not a user-facing failure.
		r.log.Error("writing audit record failed",
			zap.String("tool", tool.Name()),
			zap.Error(err),
		)
	}
}

func (r *Runner) logSuccess(tool Tool, inv Invocation, result *Result) {
	r.log.Info("tool executed",
		zap.String("tool", tool.Name()),
		zap.String("user_id", inv.UserID),
		zap.String("tenant_id", inv.TenantID),
		zap.Int64("execution_time_ms", result.ExecutionTimeMS),
	)
}

func (r *Runner) logFailure(tool Tool, inv Invocation, err error) {
	r.log.Error("tool failed",
		zap.String("tool", tool.Name()),
		zap.String("user_id", inv.UserID),
		zap.String("tenant_id", inv.TenantID),
		zap.Error(err),
	)
}
