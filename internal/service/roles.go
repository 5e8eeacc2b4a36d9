package service

import (
	"context"
	"time"

	"github.com/card-fund-service/internal/model"
	"github.com/card-fund-service/internal/validation"
)

func (e *Engine) TransferOwnership(ctx context.Context, caller, newOwner string) error {
	if err := validation.Address("new_owner", newOwner); err != nil {
		return NewBadRequest("invalid_request", err.Error())
	}
	return e.run(ctx, "transfer_ownership", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		previous := o.sys.Owner
		o.sys.Owner = newOwner
		o.emit(model.EventOwnershipTransferred, "", map[string]string{"previous": previous, "new": newOwner})
		return nil
	})
}

func (e *Engine) SetSettler(ctx context.Context, caller, settler string) error {
	if err := validation.Address("settler", settler); err != nil {
		return NewBadRequest("invalid_request", err.Error())
	}
	return e.run(ctx, "set_settler", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		previous := o.sys.Settler
		o.sys.Settler = settler
		o.emit(model.EventSettlerChanged, "", map[string]string{"previous": previous, "new": settler})
		return nil
	})
}

func (e *Engine) SetPauser(ctx context.Context, caller, pauser string) error {
	if err := validation.Address("pauser", pauser); err != nil {
		return NewBadRequest("invalid_request", err.Error())
	}
	return e.run(ctx, "set_pauser", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		previous := o.sys.Pauser
		o.sys.Pauser = pauser
		o.emit(model.EventPauserChanged, "", map[string]string{"previous": previous, "new": pauser})
		return nil
	})
}

// Pause blocks debit, refund, settle and withdrawal execution until Unpause.
func (e *Engine) Pause(ctx context.Context, caller string) error {
	return e.setPaused(ctx, "pause", caller, true)
}

func (e *Engine) Unpause(ctx context.Context, caller string) error {
	return e.setPaused(ctx, "unpause", caller, false)
}

func (e *Engine) setPaused(ctx context.Context, name, caller string, paused bool) error {
	return e.run(ctx, name, caller, func(o *op) error {
		if err := o.authorize(nil, RolePauser); err != nil {
			return err
		}
		if o.sys.Paused == paused {
			return nil
		}
		o.sys.Paused = paused
		kind := model.EventUnpaused
		if paused {
			kind = model.EventPaused
		}
		o.emit(kind, "", map[string]string{"pauser": o.caller})
		return nil
	})
}

// SetApprovalKey registers the key approved withdrawals are verified against. An empty key
// falls back to the settler.
func (e *Engine) SetApprovalKey(ctx context.Context, caller, publicKey string) error {
	if publicKey != "" {
		if err := validation.Address("public_key", publicKey); err != nil {
			return NewBadRequest("invalid_request", err.Error())
		}
	}
	return e.run(ctx, "set_approval_key", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		previous := o.sys.ApprovalPublicKey()
		o.sys.ApprovalKey = publicKey
		o.emit(model.EventApprovalKeyChanged, "", map[string]string{"previous": previous, "new": o.sys.ApprovalPublicKey()})
		return nil
	})
}

func (e *Engine) SetWithdrawalWaitTime(ctx context.Context, caller string, wait time.Duration) error {
	if wait < 0 {
		return NewBadRequest("invalid_request", "withdrawal wait time must not be negative")
	}
	return e.run(ctx, "set_withdrawal_wait_time", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		previous := o.sys.WithdrawalWaitTime
		o.sys.WithdrawalWaitTime = wait.Truncate(time.Second)
		o.emit(model.EventWithdrawalWaitTimeChanged, "", map[string]string{
			"previous_seconds": formatDuration(previous),
			"new_seconds":      formatDuration(o.sys.WithdrawalWaitTime),
		})
		return nil
	})
}
