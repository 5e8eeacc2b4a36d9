package service

import (
	"context"
	"strconv"
	"time"

	"github.com/stellar/go-stellar-sdk/amount"

	"github.com/card-fund-service/internal/model"
	"github.com/card-fund-service/internal/validation"
)

// DeployInput initializes the system. Pauser defaults to the owner and Settler to the owner.
type DeployInput struct {
	Owner   string
	Settler string
	Pauser  string
}

// Deploy performs one-time initialization. It fails with AlreadyExists once deployed.
func (e *Engine) Deploy(ctx context.Context, input DeployInput) (*model.System, error) {
	if err := validation.Address("owner", input.Owner); err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}
	if input.Settler == "" {
		input.Settler = input.Owner
	}
	if input.Pauser == "" {
		input.Pauser = input.Owner
	}
	if err := validation.Address("settler", input.Settler); err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}
	if err := validation.Address("pauser", input.Pauser); err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}

	var sys *model.System
	err := e.update(ctx, "deploy", input.Owner, func(o *op) error {
		if o.sys != nil {
			return NewAlreadyExists("already_deployed", "The system has already been deployed")
		}
		o.sys = &model.System{
			Owner:              input.Owner,
			Settler:            input.Settler,
			Pauser:             input.Pauser,
			WithdrawalWaitTime: e.defaultWait,
			Version:            1,
			DeployedAt:         o.now,
		}
		o.emit(model.EventDeployed, "", map[string]string{
			"owner":   input.Owner,
			"settler": input.Settler,
			"pauser":  input.Pauser,
		})
		sys = o.sys
		return nil
	})
	return sys, err
}

// Upgrade records a new code version. It is owner-only.
func (e *Engine) Upgrade(ctx context.Context, caller string) (*model.System, error) {
	var sys *model.System
	err := e.run(ctx, "upgrade", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		o.sys.Version++
		o.emit(model.EventUpgraded, "", map[string]string{"version": strconv.Itoa(o.sys.Version)})
		sys = o.sys
		return nil
	})
	return sys, err
}

// Destroy retires the system once no card funds or channels remain, releasing the holding
// account's native balance above its own reserve to the owner.
func (e *Engine) Destroy(ctx context.Context, caller string) error {
	return e.run(ctx, "destroy", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		if o.sys.ActiveCardFunds > 0 || o.sys.ActiveChannels > 0 {
			return NewInvalidState("active_accounts",
				"Cannot destroy while card funds or partner channels are still open")
		}

		native, err := e.balanceOf(o, e.holding, model.NativeAsset)
		if err != nil {
			return err
		}
		released := native - e.costs.AccountReserve - e.costs.OperationFee
		if released > 0 {
			if err := e.transfer(o, e.holding, o.sys.Owner, model.NativeAsset, released, "release holding balance"); err != nil {
				return err
			}
		} else {
			released = 0
		}

		o.sys.Destroyed = true
		o.emit(model.EventDestroyed, "", map[string]string{
			"owner":    o.sys.Owner,
			"released": amount.StringFromInt64(released),
		})
		return nil
	})
}

func formatDuration(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}
