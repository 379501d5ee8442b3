// Package confirm resolves pending tool actions: the second half of the
// two-phase flow that starts when the runner parks a gated invocation. A
// pending action is approved or rejected exactly once, by the user who
// proposed it.
package confirm

import (
	"context"

	"go.uber.org/zap"

	"github.com/lifelink/copilot/internal/audit"
	"github.com/lifelink/copilot/internal/fault"
	"github.com/lifelink/copilot/internal/permissions"
	"github.com/lifelink/copilot/internal/tools"
)

// Actor is the user resolving a confirmation.
type Actor struct {
	TenantID string
	UserID   string
	Role     permissions.Role
}

// Resolution is the outcome of resolving a pending action.
type Resolution struct {
	ActionID string        `json:"action_id"`
	ToolName string        `json:"tool_name"`
	Approved bool          `json:"approved"`
	Status   audit.Status  `json:"status"`
	Result   *tools.Result `json:"result,omitempty"`
}

// Manager resolves pending actions against the audit store and tool runner.
type Manager struct {
	audits *audit.Store
	runner *tools.Runner
	log    *zap.Logger
}

// NewManager creates a Manager.
func NewManager(audits *audit.Store, runner *tools.Runner, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{audits: audits, runner: runner, log: log}
}

// Resolve approves or rejects the pending action actionID. The ordering of
// checks is deliberate: existence, then pending state, then ownership, then
// the atomic claim. Under concurrent confirms of the same action exactly one
// caller passes the claim; the rest get a conflict and the tool runs at most
// once.
func (m *Manager) Resolve(ctx context.Context, actor Actor, actionID string, approve bool) (*Resolution, error) {
	rec, err := m.audits.GetByID(ctx, actor.TenantID, actionID)
	if err != nil {
		return nil, err
	}

	if rec.Status != audit.StatusPending {
		return nil, fault.Newf(fault.KindConflict, "action %s is not pending (status: %s)", actionID, rec.Status).
			WithDetails(map[string]any{"action_id": actionID, "status": string(rec.Status)})
	}

	if rec.UserID != actor.UserID {
		return nil, fault.New(fault.KindPermission, "only the user who requested the action can confirm it").
			WithDetails(map[string]any{"action_id": actionID})
	}

	if err := m.audits.ClaimPending(ctx, actor.TenantID, actionID); err != nil {
		return nil, err
	}

	if !approve {
		if err := m.audits.UpdateStatus(ctx, actor.TenantID, actionID, audit.Outcome{
			Status: audit.StatusCancelled,
		}); err != nil {
			return nil, err
		}
		m.log.Info("action rejected",
			zap.String("action_id", actionID),
			zap.String("tool", rec.ToolName),
			zap.String("user_id", actor.UserID),
		)
		return &Resolution{
			ActionID: actionID,
			ToolName: rec.ToolName,
			Status:   audit.StatusCancelled,
		}, nil
	}

	inv := tools.Invocation{
		TenantID:       actor.TenantID,
		UserID:         actor.UserID,
		Role:           actor.Role,
		ConversationID: rec.ConversationID,
		Confirmed:      true,
	}

	result, execErr := m.runner.ExecuteClaimed(ctx, inv, actionID, rec.ToolName, tools.Params(rec.InputParams))
	if execErr != nil {
		// ExecuteClaimed already moved the record to failed.
		return &Resolution{
			ActionID: actionID,
			ToolName: rec.ToolName,
			Approved: true,
			Status:   audit.StatusFailed,
		}, execErr
	}

	m.log.Info("action confirmed and executed",
		zap.String("action_id", actionID),
		zap.String("tool", rec.ToolName),
		zap.String("user_id", actor.UserID),
	)
	return &Resolution{
		ActionID: actionID,
		ToolName: rec.ToolName,
		Approved: true,
		Status:   audit.StatusSuccess,
		Result:   result,
	}, nil
}
