package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/stellar/go-stellar-sdk/amount"

	"github.com/card-fund-service/internal/model"
	"github.com/card-fund-service/internal/store"
	"github.com/card-fund-service/internal/validation"
)

// CreateCardFundInput describes a new card fund. Cardholder defaults to the caller; only the
// owner may create a fund on behalf of someone else.
type CreateCardFundInput struct {
	Channel    string
	Cardholder string
	Asset      string
	Funding    *model.FundingProof
}

func (e *Engine) CreateCardFund(ctx context.Context, caller string, input CreateCardFundInput) (*model.CardFund, error) {
	if input.Cardholder == "" {
		input.Cardholder = caller
	}
	if err := validation.Address("cardholder", input.Cardholder); err != nil {
		return nil, NewBadRequest("invalid_request", err.Error())
	}
	if input.Asset != "" {
		if err := validation.Asset(input.Asset); err != nil {
			return nil, NewBadRequest("invalid_request", err.Error())
		}
	}

	var created *model.CardFund
	err := e.run(ctx, "create_card_fund", caller, func(o *op) error {
		if input.Cardholder != caller {
			if err := o.authorize(nil, RoleOwner); err != nil {
				return err
			}
		}
		if _, err := o.loadChannel(input.Channel); err != nil {
			return err
		}

		key := model.FundKey(input.Channel, input.Cardholder)
		if _, err := o.tx.FundIndex(ctx, key); err == nil {
			return NewAlreadyExists("card_fund_exists", "The cardholder already has a card fund in this channel")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if input.Asset != "" {
			if _, err := o.loadAllowlistEntry(input.Asset); err != nil {
				return err
			}
		}

		quote := e.costs.AccountQuote(input.Asset != "")
		if err := e.requireFunding(o, input.Funding, quote); err != nil {
			return err
		}

		address, err := e.provision(o, quote.Provision)
		if err != nil {
			return err
		}
		fund := &model.CardFund{
			Address:        address,
			PartnerChannel: input.Channel,
			Owner:          input.Cardholder,
			Assets:         []string{},
			CreatedAt:      o.now,
		}
		if input.Asset != "" {
			if err := e.optIn(o, address, input.Asset); err != nil {
				return err
			}
			fund.AddAsset(input.Asset)
		}

		if err := o.tx.PutCardFund(ctx, fund); err != nil {
			return err
		}
		if err := o.tx.InsertFundIndex(ctx, key, address); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return NewAlreadyExists("card_fund_exists", "The cardholder already has a card fund in this channel")
			}
			return err
		}
		o.sys.ActiveCardFunds++
		o.emit(model.EventCardFundCreated, address, map[string]string{
			"channel": input.Channel,
			"owner":   input.Cardholder,
			"asset":   input.Asset,
		})
		created = fund
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CloseCardFund tears down a drained card fund, reclaiming its reserve to the caller.
func (e *Engine) CloseCardFund(ctx context.Context, caller, address string) error {
	return e.run(ctx, "close_card_fund", caller, func(o *op) error {
		fund, err := o.loadCardFund(address)
		if err != nil {
			return err
		}
		if err := o.authorize(fund, RoleOwner, RoleFundOwner); err != nil {
			return err
		}
		if len(fund.Assets) > 0 {
			return NewInvalidState("card_fund_not_drained", "Disable every card fund asset before closing the fund")
		}

		if err := o.tx.DeleteCardFund(ctx, address); err != nil {
			return err
		}
		if err := o.tx.DeleteFundIndex(ctx, model.FundKey(fund.PartnerChannel, fund.Owner)); err != nil {
			return err
		}
		if p, err := o.tx.PendingWithdrawal(ctx, fund.Owner); err == nil && p.CardFund == address {
			if err := o.tx.DeletePendingWithdrawal(ctx, fund.Owner); err != nil {
				return err
			}
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if err := e.accounts.Teardown(ctx, address, o.caller); err != nil {
			return ledgerError(err, "close card fund account")
		}
		o.sys.ActiveCardFunds--
		o.emit(model.EventCardFundClosed, address, map[string]string{"channel": fund.PartnerChannel, "owner": fund.Owner})
		return nil
	})
}

// RecoverCardFund rebinds a fund to a new cardholder key. Owner-only. The uniqueness index
// moves with the fund and nonces are untouched. A pending request from the old key is dropped.
func (e *Engine) RecoverCardFund(ctx context.Context, caller, address, newOwner string) error {
	if err := validation.Address("new_owner", newOwner); err != nil {
		return NewBadRequest("invalid_request", err.Error())
	}
	return e.run(ctx, "recover_card_fund", caller, func(o *op) error {
		if err := o.authorize(nil, RoleOwner); err != nil {
			return err
		}
		fund, err := o.loadCardFund(address)
		if err != nil {
			return err
		}
		if fund.Owner == newOwner {
			return NewInvalidState("same_owner", "Card fund is already owned by this key")
		}

		newKey := model.FundKey(fund.PartnerChannel, newOwner)
		if _, err := o.tx.FundIndex(ctx, newKey); err == nil {
			return NewAlreadyExists("card_fund_exists", "The new owner already has a card fund in this channel")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := o.tx.DeleteFundIndex(ctx, model.FundKey(fund.PartnerChannel, fund.Owner)); err != nil {
			return err
		}
		if err := o.tx.InsertFundIndex(ctx, newKey, address); err != nil {
			return err
		}

		if p, err := o.tx.PendingWithdrawal(ctx, fund.Owner); err == nil && p.CardFund == address {
			if err := o.tx.DeletePendingWithdrawal(ctx, fund.Owner); err != nil {
				return err
			}
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		previous := fund.Owner
		fund.Owner = newOwner
		if err := o.tx.PutCardFund(ctx, fund); err != nil {
			return err
		}
		o.emit(model.EventCardFundRecovered, address, map[string]string{"previous": previous, "new": newOwner})
		return nil
	})
}

// EnableAsset opts a card fund into an allowlisted asset.
func (e *Engine) EnableAsset(ctx context.Context, caller, address, asset string, proof *model.FundingProof) error {
	if err := validation.Asset(asset); err != nil {
		return NewBadRequest("invalid_request", err.Error())
	}
	return e.run(ctx, "enable_card_fund_asset", caller, func(o *op) error {
		fund, err := o.loadCardFund(address)
		if err != nil {
			return err
		}
		if err := o.authorize(fund, RoleOwner, RoleFundOwner); err != nil {
			return err
		}
		if fund.HasAsset(asset) {
			return NewAlreadyExists("asset_enabled", "Asset is already enabled on the card fund")
		}
		if err := e.enableAsset(o, address, asset, proof); err != nil {
			return err
		}
		fund.AddAsset(asset)
		if err := o.tx.PutCardFund(ctx, fund); err != nil {
			return err
		}
		o.emit(model.EventCardFundAssetEnabled, address, map[string]string{"asset": asset})
		return nil
	})
}

// DisableAsset removes a zero-balance opt-in from a card fund.
func (e *Engine) DisableAsset(ctx context.Context, caller, address, asset string) error {
	return e.run(ctx, "disable_card_fund_asset", caller, func(o *op) error {
		fund, err := o.loadCardFund(address)
		if err != nil {
			return err
		}
		if err := o.authorize(fund, RoleOwner, RoleFundOwner); err != nil {
			return err
		}
		if !fund.HasAsset(asset) {
			return NewNotFound("asset_not_enabled", "Asset is not enabled on the card fund")
		}
		if err := e.disableAsset(o, address, asset); err != nil {
			return err
		}
		fund.RemoveAsset(asset)
		if err := o.tx.PutCardFund(ctx, fund); err != nil {
			return err
		}
		o.emit(model.EventCardFundAssetDisabled, address, map[string]string{"asset": asset})
		return nil
	})
}

// DebitInput moves card spend from a fund to the holding account. Nonce must equal the
// fund's current debit nonce.
type DebitInput struct {
	CardFund  string
	Asset     string
	Amount    int64
	Nonce     uint64
	Reference string
}

// Debit is settler-only and gated by pause.
func (e *Engine) Debit(ctx context.Context, caller string, input DebitInput) (*model.CardFund, error) {
	return e.moveDebit(ctx, "debit", caller, input, true)
}

// Refund reverses a debit, moving funds from the holding account back to the card fund.
// It shares the debit nonce sequence.
func (e *Engine) Refund(ctx context.Context, caller string, input DebitInput) (*model.CardFund, error) {
	return e.moveDebit(ctx, "refund", caller, input, false)
}

func (e *Engine) moveDebit(ctx context.Context, name, caller string, input DebitInput, debit bool) (*model.CardFund, error) {
	if err := positiveAmount(input.Amount); err != nil {
		return nil, err
	}

	var updated *model.CardFund
	err := e.run(ctx, name, caller, func(o *op) error {
		if err := o.requireRunning(); err != nil {
			return err
		}
		if err := o.authorize(nil, RoleSettler); err != nil {
			return err
		}
		fund, err := o.loadCardFund(input.CardFund)
		if err != nil {
			return err
		}
		if !fund.HasAsset(input.Asset) {
			return NewInvalidState("asset_not_enabled", "Asset is not enabled on the card fund")
		}
		if input.Nonce != fund.DebitNonce {
			return NewNonceMismatch(fund.DebitNonce, input.Nonce)
		}

		from, to, kind := fund.Address, e.holding, model.EventDebit
		if !debit {
			from, to, kind = e.holding, fund.Address, model.EventRefund
		}
		if err := e.transferOnce(o, debitKey(fund.Address, input.Nonce), from, to, input.Asset, input.Amount, name); err != nil {
			return err
		}

		fund.DebitNonce++
		if err := o.tx.PutCardFund(ctx, fund); err != nil {
			return err
		}
		o.emit(kind, fund.Address, map[string]string{
			"asset":     input.Asset,
			"amount":    amount.StringFromInt64(input.Amount),
			"nonce":     strconv.FormatUint(input.Nonce, 10),
			"reference": input.Reference,
		})
		updated = fund
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
