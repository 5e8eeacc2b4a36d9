package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/card-fund-service/internal/model"
	"github.com/card-fund-service/internal/store"
	"github.com/card-fund-service/internal/validation"
)

// CreateChannel provisions a custodial account for a new partner channel. Owner-only.
func (e *Engine) CreateChannel(ctx context.Context, caller, name string, proof *model.FundingProof) (*model.PartnerChannel, error) {
	if err := validation.ChannelName(name); err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}

	var created *model.PartnerChannel
	err := e.run(ctx, "create_channel", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		if _, err := o.tx.ChannelByName(ctx, name); err == nil {
			return NewAlreadyExists("channel_exists", "A partner channel with this name already exists")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		quote := e.costs.AccountQuote(false)
		if err := e.requireFunding(o, proof, quote); err != nil {
			return err
		}

		address, err := e.provision(o, quote.Provision)
		if err != nil {
			return err
		}

		created = &model.PartnerChannel{Address: address, Name: name, Assets: []string{}, CreatedAt: o.now}
		if err := o.tx.PutChannel(ctx, created); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return NewAlreadyExists("channel_exists", "A partner channel with this name already exists")
			}
			return err
		}
		o.sys.ActiveChannels++
		o.emit(model.EventChannelCreated, "", map[string]string{"channel": address, "name": name})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CloseChannel tears down a drained partner channel and reclaims its reserve to the caller.
func (e *Engine) CloseChannel(ctx context.Context, caller, address string) error {
	return e.run(ctx, "close_channel", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		ch, err := o.loadChannel(address)
		if err != nil {
			return err
		}
		if len(ch.Assets) > 0 {
			return NewInvalidState("channel_not_drained", "Disable every channel asset before closing the channel")
		}
		if err := o.tx.DeleteChannel(ctx, address); err != nil {
			return err
		}
		if err := e.accounts.Teardown(ctx, address, o.caller); err != nil {
			return ledgerError(err, "close channel account")
		}
		o.sys.ActiveChannels--
		o.emit(model.EventChannelClosed, "", map[string]string{"channel": address, "name": ch.Name})
		return nil
	})
}

// EnableChannelAsset opts a partner channel's account into an allowlisted asset. Owner-only.
func (e *Engine) EnableChannelAsset(ctx context.Context, caller, address, asset string, proof *model.FundingProof) error {
	return e.run(ctx, "enable_channel_asset", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		ch, err := o.loadChannel(address)
		if err != nil {
			return err
		}
		if ch.HasAsset(asset) {
			return NewAlreadyExists("asset_enabled", "Asset is already enabled on the channel")
		}
		if err := e.enableAsset(o, address, asset, proof); err != nil {
			return err
		}
		ch.AddAsset(asset)
		if err := o.tx.PutChannel(ctx, ch); err != nil {
			return err
		}
		o.emit(model.EventChannelAssetEnabled, "", map[string]string{"channel": address, "asset": asset})
		return nil
	})
}

// DisableChannelAsset removes a zero-balance opt-in from a channel and reclaims its reserve.
func (e *Engine) DisableChannelAsset(ctx context.Context, caller, address, asset string) error {
	return e.run(ctx, "disable_channel_asset", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		ch, err := o.loadChannel(address)
		if err != nil {
			return err
		}
		if !ch.HasAsset(asset) {
			return NewNotFound("asset_not_enabled", "Asset is not enabled on the channel")
		}
		if err := e.disableAsset(o, address, asset); err != nil {
			return err
		}
		ch.RemoveAsset(asset)
		if err := o.tx.PutChannel(ctx, ch); err != nil {
			return err
		}
		o.emit(model.EventChannelAssetDisabled, "", map[string]string{"channel": address, "asset": asset})
		return nil
	})
}

// provision creates a custodial account and registers its teardown as the compensation.
func (e *Engine) provision(o *op, startingBalance int64) (string, error) {
	address, err := e.accounts.Provision(o.ctx, startingBalance)
	if err != nil {
		return "", ledgerError(err, "provision account")
	}
	o.onRollback(func(ctx context.Context) {
		if err := e.accounts.Teardown(ctx, address, e.holding); err != nil {
			log.Error().Err(err).Str("account", address).Msg("failed to tear down account after rollback")
		}
	})
	return address, nil
}

// enableAsset funds and performs an opt-in for account. The asset must be allowlisted.
func (e *Engine) enableAsset(o *op, account, asset string, proof *model.FundingProof) error {
	if _, err := o.loadAllowlistEntry(asset); err != nil {
		return err
	}
	quote := e.costs.OptInQuote()
	if err := e.requireFunding(o, proof, quote); err != nil {
		return err
	}
	return e.optIn(o, account, asset)
}

func (e *Engine) optIn(o *op, account, asset string) error {
	reserve := e.costs.OptInReserve
	if err := e.transfer(o, e.holding, account, model.NativeAsset, reserve, "fund opt-in reserve"); err != nil {
		return err
	}
	if reserve > 0 {
		o.onRollback(func(ctx context.Context) {
			if err := e.assets.Transfer(ctx, account, e.holding, model.NativeAsset, reserve); err != nil {
				log.Error().Err(err).Str("account", account).Msg("failed to return opt-in reserve after rollback")
			}
		})
	}
	if err := e.assets.OptIn(o.ctx, account, asset); err != nil {
		return ledgerError(err, "opt in to asset")
	}
	o.onRollback(func(ctx context.Context) {
		if err := e.assets.CloseOut(ctx, account, asset, e.holding); err != nil {
			log.Error().Err(err).Str("account", account).Str("asset", asset).Msg("failed to undo opt-in after rollback")
		}
	})
	return nil
}

// disableAsset closes out a zero-balance opt-in and returns its reserve to the caller.
func (e *Engine) disableAsset(o *op, account, asset string) error {
	bal, err := e.balanceOf(o, account, asset)
	if err != nil {
		return err
	}
	if bal != 0 {
		return NewInvalidState("balance_not_zero", "Asset balance must be zero before it can be disabled")
	}
	if err := e.assets.CloseOut(o.ctx, account, asset, e.holding); err != nil {
		return ledgerError(err, "close out asset")
	}
	o.onRollback(func(ctx context.Context) {
		if err := e.assets.OptIn(ctx, account, asset); err != nil {
			log.Error().Err(err).Str("account", account).Str("asset", asset).Msg("failed to restore opt-in after rollback")
		}
	})
	return e.transfer(o, account, o.caller, model.NativeAsset, e.costs.OptInReserve, "reclaim opt-in reserve")
}
