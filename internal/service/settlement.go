package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/stellar/go-stellar-sdk/amount"

	"github.com/card-fund-service/internal/model"
	"github.com/card-fund-service/internal/store"
	"github.com/card-fund-service/internal/validation"
)

// AddToAllowlist opts the holding account into asset and routes its settlements to
// settlementAddress. Owner-only.
func (e *Engine) AddToAllowlist(ctx context.Context, caller, asset, settlementAddress string, proof *model.FundingProof) (*model.AllowlistEntry, error) {
	if err := validation.Asset(asset); err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}
	if asset == model.NativeAsset {
		return nil, NewBadRequest("invalid_request", "The native asset cannot be allowlisted")
	}
	if err := validation.Address("settlement_address", settlementAddress); err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}

	var entry *model.AllowlistEntry
	err := e.run(ctx, "add_to_allowlist", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		if _, err := o.tx.AllowlistEntry(ctx, asset); err == nil {
			return NewAlreadyExists("asset_allowlisted", "Asset is already on the allowlist")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		quote := e.costs.OptInQuote()
		if err := e.requireFunding(o, proof, quote); err != nil {
			return err
		}
		if err := e.assets.OptIn(ctx, e.holding, asset); err != nil {
			return ledgerError(err, "opt holding account in to asset")
		}
		o.onRollback(func(ctx context.Context) {
			if err := e.assets.CloseOut(ctx, e.holding, asset, e.holding); err != nil {
				log.Error().Err(err).Str("asset", asset).Msg("failed to undo holding opt-in after rollback")
			}
		})

		entry = &model.AllowlistEntry{Asset: asset, SettlementAddress: settlementAddress}
		if err := o.tx.PutAllowlistEntry(ctx, entry); err != nil {
			return err
		}
		o.emit(model.EventAllowlistAdded, "", map[string]string{"asset": asset, "settlement_address": settlementAddress})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RemoveFromAllowlist closes the holding account's opt-in for a fully settled asset and
// returns the opt-in reserve to the caller.
func (e *Engine) RemoveFromAllowlist(ctx context.Context, caller, asset string) error {
	return e.run(ctx, "remove_from_allowlist", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		entry, err := o.loadAllowlistEntry(asset)
		if err != nil {
			return err
		}
		bal, err := e.balanceOf(o, e.holding, asset)
		if err != nil {
			return err
		}
		if bal != 0 {
			return NewInvalidState("balance_not_zero", "Holding balance of the asset must be settled before removal")
		}

		if err := o.tx.DeleteAllowlistEntry(ctx, asset); err != nil {
			return err
		}
		if err := e.assets.CloseOut(ctx, e.holding, asset, entry.SettlementAddress); err != nil {
			return ledgerError(err, "close out holding asset")
		}
		if err := e.transfer(o, e.holding, o.caller, model.NativeAsset, e.costs.OptInReserve, "reclaim opt-in reserve"); err != nil {
			return err
		}
		o.emit(model.EventAllowlistRemoved, "", map[string]string{"asset": asset})
		return nil
	})
}

// SetSettlementAddress reroutes settlements of asset. Owner-only.
func (e *Engine) SetSettlementAddress(ctx context.Context, caller, asset, settlementAddress string) error {
	if err := validation.Address("settlement_address", settlementAddress); err != nil {
		return NewBadRequest("invalid_request", err.Error())
	}
	return e.run(ctx, "set_settlement_address", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		entry, err := o.loadAllowlistEntry(asset)
		if err != nil {
			return err
		}
		previous := entry.SettlementAddress

		if err := o.tx.PutAllowlistEntry(ctx, &model.AllowlistEntry{Asset: asset, SettlementAddress: settlementAddress}); err != nil {
			return err
		}
		o.emit(model.EventSettlementAddressChanged, "", map[string]string{
			"asset":    asset,
			"previous": previous,
			"new":      settlementAddress,
		})
		return nil
	})
}

// Settle pushes amount of asset from the holding account to its settlement address. The nonce
// must equal the global settlement nonce.
func (e *Engine) Settle(ctx context.Context, caller, asset string, amt int64, nonce uint64) (uint64, error) {
	if err := positiveAmount(amt); err != nil {
		return 0, err
	}

	var next uint64
	err := e.run(ctx, "settle", caller, func(o *op) error {
		if err := o.requireRunning(); err != nil {
			return err
		}
		if err := o.authorize(nil, RoleSettler); err != nil {
			return err
		}
		if nonce != o.sys.SettlementNonce {
			return NewNonceMismatch(o.sys.SettlementNonce, nonce)
		}
		entry, err := o.loadAllowlistEntry(asset)
		if err != nil {
			return err
		}
		if err := e.transferOnce(o, settlementKey(nonce), e.holding, entry.SettlementAddress, asset, amt, "settle"); err != nil {
			return err
		}
		o.sys.SettlementNonce++
		next = o.sys.SettlementNonce
		o.emit(model.EventSettlement, "", map[string]string{
			"asset":              asset,
			"amount":             amount.StringFromInt64(amt),
			"nonce":              strconv.FormatUint(nonce, 10),
			"settlement_address": entry.SettlementAddress,
		})
		return nil
	})
	return next, err
}
