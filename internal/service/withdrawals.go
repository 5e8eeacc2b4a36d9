package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/stellar/go-stellar-sdk/amount"

	"github.com/card-fund-service/internal/model"
	"github.com/card-fund-service/internal/store"
)

// RequestWithdrawal opens the caller's single pending withdrawal slot. The request snapshots
// the fund's withdrawal nonce and may be executed once the wait time has elapsed.
func (e *Engine) RequestWithdrawal(ctx context.Context, caller, cardFund, asset string, amt int64) (*model.PendingWithdrawal, error) {
	if err := e.checkAmount(amt); err != nil {
		return nil, err
	}

	var pending *model.PendingWithdrawal
	err := e.run(ctx, "request_withdrawal", caller, func(o *op) error {
		fund, err := o.loadCardFund(cardFund)
		if err != nil {
			return err
		}
		if err := o.authorize(fund, RoleFundOwner); err != nil {
			return err
		}
		if !fund.HasAsset(asset) {
			return NewInvalidState("asset_not_enabled", "Asset is not enabled on the card fund")
		}
		if _, err := o.tx.PendingWithdrawal(ctx, caller); err == nil {
			return NewInvalidState("withdrawal_pending", "A withdrawal request is already pending; cancel it first")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		bal, err := e.balanceOf(o, fund.Address, asset)
		if err != nil {
			return err
		}
		if amt > bal {
			return NewInsufficientFunds("insufficient_balance", "Requested amount exceeds the card fund balance")
		}

		pending = &model.PendingWithdrawal{
			Principal:    caller,
			CardFund:     fund.Address,
			Recipient:    caller,
			Asset:        asset,
			Amount:       amt,
			Nonce:        fund.WithdrawalNonce,
			CreatedAt:    o.now,
			ReleasableAt: ceilSecond(o.now.Add(o.sys.WithdrawalWaitTime)),
		}
		if err := o.tx.InsertPendingWithdrawal(ctx, pending); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return NewInvalidState("withdrawal_pending", "A withdrawal request is already pending; cancel it first")
			}
			return err
		}
		o.emit(model.EventWithdrawalRequest, fund.Address, map[string]string{
			"owner":         caller,
			"asset":         asset,
			"amount":        amount.StringFromInt64(amt),
			"nonce":         strconv.FormatUint(pending.Nonce, 10),
			"releasable_at": pending.ReleasableAt.Format(time.RFC3339),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// CancelWithdrawal clears the caller's pending withdrawal on cardFund.
func (e *Engine) CancelWithdrawal(ctx context.Context, caller, cardFund string) error {
	return e.run(ctx, "cancel_withdrawal", caller, func(o *op) error {
		fund, err := o.loadCardFund(cardFund)
		if err != nil {
			return err
		}
		if err := o.authorize(fund, RoleFundOwner); err != nil {
			return err
		}
		pending, err := o.pendingFor(caller, fund.Address)
		if err != nil {
			return err
		}
		if err := o.tx.DeletePendingWithdrawal(ctx, caller); err != nil {
			return err
		}
		o.emit(model.EventWithdrawalCancelled, fund.Address, map[string]string{
			"owner":  caller,
			"asset":  pending.Asset,
			"amount": amount.StringFromInt64(pending.Amount),
		})
		return nil
	})
}

// ExecutePermissionlessWithdrawal releases up to the pending amount once the wait time has
// elapsed, provided no other withdrawal advanced the fund's nonce in the meantime.
func (e *Engine) ExecutePermissionlessWithdrawal(ctx context.Context, caller, cardFund string, amt int64) (*model.CardFund, error) {
	if err := e.checkAmount(amt); err != nil {
		return nil, err
	}

	var updated *model.CardFund
	err := e.run(ctx, "execute_permissionless_withdrawal", caller, func(o *op) error {
		if err := o.requireRunning(); err != nil {
			return err
		}
		fund, err := o.loadCardFund(cardFund)
		if err != nil {
			return err
		}
		if err := o.authorize(fund, RoleFundOwner); err != nil {
			return err
		}
		pending, err := o.pendingFor(caller, fund.Address)
		if err != nil {
			return err
		}
		if amt > pending.Amount {
			return NewInsufficientFunds("exceeds_request", "Amount exceeds the pending withdrawal request")
		}
		if pending.Nonce != fund.WithdrawalNonce {
			return NewNonceMismatch(fund.WithdrawalNonce, pending.Nonce)
		}
		if o.now.Before(pending.ReleasableAt) {
			return NewTimeNotReached("wait_time_not_elapsed",
				"Withdrawal can be executed from "+pending.ReleasableAt.Format(time.RFC3339))
		}

		key := withdrawalKey(fund.Address, fund.WithdrawalNonce)
		if err := e.transferOnce(o, key, fund.Address, pending.Recipient, pending.Asset, amt, "withdraw"); err != nil {
			return err
		}
		if err := o.tx.DeletePendingWithdrawal(ctx, caller); err != nil {
			return err
		}
		updated, err = e.completeWithdrawal(o, fund, pending.Recipient, pending.Asset, amt, model.WithdrawalPermissionless)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApprovedWithdrawalInput carries operator-signed withdrawal terms. The recipient is always
// the caller.
type ApprovedWithdrawalInput struct {
	CardFund  string
	Asset     string
	Amount    int64
	ExpiresAt time.Time
	Nonce     uint64
	Signature []byte
}

// ExecuteApprovedWithdrawal releases funds immediately against a signature from the approval
// key over the canonical withdrawal digest.
func (e *Engine) ExecuteApprovedWithdrawal(ctx context.Context, caller string, input ApprovedWithdrawalInput) (*model.CardFund, error) {
	if err := e.checkAmount(input.Amount); err != nil {
		return nil, err
	}

	var updated *model.CardFund
	err := e.run(ctx, "execute_approved_withdrawal", caller, func(o *op) error {
		if err := o.requireRunning(); err != nil {
			return err
		}
		fund, err := o.loadCardFund(input.CardFund)
		if err != nil {
			return err
		}
		if err := o.authorize(fund, RoleFundOwner); err != nil {
			return err
		}
		expiresAt := input.ExpiresAt.Truncate(time.Second)
		if !o.now.Before(expiresAt) {
			return NewTimeNotReached("approval_expired", "Withdrawal approval has expired")
		}
		if input.Nonce != fund.WithdrawalNonce {
			return NewNonceMismatch(fund.WithdrawalNonce, input.Nonce)
		}

		approval := model.ApprovedWithdrawal{
			CardFund:        fund.Address,
			Recipient:       caller,
			Asset:           input.Asset,
			Amount:          input.Amount,
			ExpiresAt:       expiresAt,
			Nonce:           input.Nonce,
			DomainSeparator: e.domain,
		}
		digest := approval.Digest()
		if err := e.signatures.Verify(digest[:], input.Signature, o.sys.ApprovalPublicKey()); err != nil {
			return NewSignatureInvalid("Approval signature does not verify against the registered approval key")
		}
		if !fund.HasAsset(input.Asset) {
			return NewInvalidState("asset_not_enabled", "Asset is not enabled on the card fund")
		}

		key := withdrawalKey(fund.Address, fund.WithdrawalNonce)
		if err := e.transferOnce(o, key, fund.Address, caller, input.Asset, input.Amount, "withdraw"); err != nil {
			return err
		}
		updated, err = e.completeWithdrawal(o, fund, caller, input.Asset, input.Amount, model.WithdrawalApproved)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (e *Engine) completeWithdrawal(o *op, fund *model.CardFund, recipient, asset string, amt int64, kind model.WithdrawalType) (*model.CardFund, error) {
	nonce := fund.WithdrawalNonce
	fund.WithdrawalNonce++
	if err := o.tx.PutCardFund(o.ctx, fund); err != nil {
		return nil, err
	}
	o.emit(model.EventWithdrawal, fund.Address, map[string]string{
		"type":      string(kind),
		"recipient": recipient,
		"asset":     asset,
		"amount":    amount.StringFromInt64(amt),
		"nonce":     strconv.FormatUint(nonce, 10),
	})
	return fund, nil
}

// ceilSecond rounds t up to a whole second.
func ceilSecond(t time.Time) time.Time {
	if r := t.Truncate(time.Second); !r.Equal(t) {
		return r.Add(time.Second)
	}
	return t
}

func (o *op) pendingFor(principal, cardFund string) (*model.PendingWithdrawal, error) {
	pending, err := o.tx.PendingWithdrawal(o.ctx, principal)
	if errors.Is(err, store.ErrNotFound) || (err == nil && pending.CardFund != cardFund) {
		return nil, NewNotFound("no_pending_withdrawal", "No pending withdrawal for this card fund")
	}
	return pending, err
}
