// Package ledger provides an in-process ledger that provisions custodial accounts, holds
// asset balances and records funding payments. It backs local mode and the engine tests.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stellar/go-stellar-sdk/keypair"

	"github.com/card-fund-service/internal/model"
)

type account struct {
	// balances holds one entry per opted-in asset. The native entry is always present.
	balances map[string]int64
}

type preparedTransfer struct {
	from, to, asset string
	amount          int64
	applied         bool
}

// Memory is a concurrency-safe in-memory ledger.
type Memory struct {
	mu       sync.RWMutex
	holding  string
	accounts map[string]*account
	payments map[string]model.FundingReceipt
	prepared map[string]*preparedTransfer
}

// NewMemory creates a ledger whose holding account starts with nativeBalance stroops.
func NewMemory(holding string, nativeBalance int64) *Memory {
	l := &Memory{
		holding:  holding,
		accounts: make(map[string]*account),
		payments: make(map[string]model.FundingReceipt),
		prepared: make(map[string]*preparedTransfer),
	}
	l.accounts[holding] = newAccount(nativeBalance)
	return l
}

func newAccount(native int64) *account {
	return &account{balances: map[string]int64{model.NativeAsset: native}}
}

// HoldingAddress returns the account that controls every provisioned account.
func (l *Memory) HoldingAddress() string {
	return l.holding
}

// Provision creates a new account funded with startingBalance native from the holding account.
func (l *Memory) Provision(_ context.Context, startingBalance int64) (string, error) {
	kp, err := keypair.Random()
	if err != nil {
		return "", fmt.Errorf("generate account keypair: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	holding := l.accounts[l.holding]
	if holding.balances[model.NativeAsset] < startingBalance {
		return "", fmt.Errorf("provision account: %w", model.ErrInsufficientBalance)
	}
	holding.balances[model.NativeAsset] -= startingBalance
	l.accounts[kp.Address()] = newAccount(startingBalance)
	return kp.Address(), nil
}

// Teardown merges an account's native balance into closeTo and removes it.
func (l *Memory) Teardown(_ context.Context, address, closeTo string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[address]
	if !ok {
		return fmt.Errorf("teardown %s: %w", address, model.ErrAccountNotFound)
	}
	if len(acc.balances) > 1 {
		return fmt.Errorf("teardown %s: %w", address, model.ErrAccountNotEmpty)
	}
	dest := l.ensureLocked(closeTo)
	dest.balances[model.NativeAsset] += acc.balances[model.NativeAsset]
	delete(l.accounts, address)
	return nil
}

// OptIn adds a zero balance for asset. Unknown addresses are treated as external wallets
// and created on first use.
func (l *Memory) OptIn(_ context.Context, address, asset string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.ensureLocked(address)
	if _, ok := acc.balances[asset]; !ok {
		acc.balances[asset] = 0
	}
	return nil
}

// CloseOut moves any remaining balance of asset to closeTo and removes the opt-in.
func (l *Memory) CloseOut(_ context.Context, address, asset, closeTo string) error {
	if asset == model.NativeAsset {
		return fmt.Errorf("close out native asset: %w", model.ErrNotOptedIn)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[address]
	if !ok {
		return fmt.Errorf("close out %s: %w", address, model.ErrAccountNotFound)
	}
	remaining, ok := acc.balances[asset]
	if !ok {
		return fmt.Errorf("close out %s: %w", asset, model.ErrNotOptedIn)
	}
	if remaining > 0 {
		dest, ok := l.accounts[closeTo]
		if !ok {
			return fmt.Errorf("close out to %s: %w", closeTo, model.ErrAccountNotFound)
		}
		if _, ok := dest.balances[asset]; !ok {
			return fmt.Errorf("close out to %s: %w", closeTo, model.ErrNotOptedIn)
		}
		dest.balances[asset] += remaining
	}
	delete(acc.balances, asset)
	return nil
}

// Transfer moves amount of asset between two accounts. It fails without effect when the
// source is short or either side is not opted in.
func (l *Memory) Transfer(_ context.Context, from, to, asset string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("transfer negative amount %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(from, to, asset, amount)
}

// PrepareTransfer records the terms of a transfer under a new reference without moving funds.
func (l *Memory) PrepareTransfer(_ context.Context, from, to, asset string, amount int64) (model.PreparedTransfer, error) {
	if amount < 0 {
		return model.PreparedTransfer{}, fmt.Errorf("transfer negative amount %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ref := uuid.NewString()
	l.prepared[ref] = &preparedTransfer{from: from, to: to, asset: asset, amount: amount}
	return model.PreparedTransfer{Reference: ref, ValidUntil: time.Now().Add(time.Hour).UTC()}, nil
}

// SubmitTransfer applies a prepared transfer once. Failures wrap model.ErrTransferRejected.
func (l *Memory) SubmitTransfer(_ context.Context, p model.PreparedTransfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pt, ok := l.prepared[p.Reference]
	if !ok {
		return fmt.Errorf("submit %s: unknown reference: %w", p.Reference, model.ErrTransferRejected)
	}
	if pt.applied {
		return nil
	}
	if err := l.transferLocked(pt.from, pt.to, pt.asset, pt.amount); err != nil {
		delete(l.prepared, p.Reference)
		return errors.Join(err, model.ErrTransferRejected)
	}
	pt.applied = true
	return nil
}

// TransferStatus reports whether a prepared transfer was applied. Submission is synchronous,
// so a transfer that has not been applied never will be.
func (l *Memory) TransferStatus(_ context.Context, p model.PreparedTransfer) (model.TransferStatus, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if pt, ok := l.prepared[p.Reference]; ok && pt.applied {
		return model.TransferApplied, nil
	}
	return model.TransferFailed, nil
}

func (l *Memory) transferLocked(from, to, asset string, amount int64) error {
	src, ok := l.accounts[from]
	if !ok {
		return fmt.Errorf("transfer from %s: %w", from, model.ErrAccountNotFound)
	}
	var dst *account
	if asset == model.NativeAsset {
		dst = l.ensureLocked(to)
	} else if dst, ok = l.accounts[to]; !ok {
		return fmt.Errorf("transfer to %s: %w", to, model.ErrNotOptedIn)
	}

	srcBalance, ok := src.balances[asset]
	if !ok {
		return fmt.Errorf("transfer from %s: %w", from, model.ErrNotOptedIn)
	}
	if _, ok := dst.balances[asset]; !ok {
		return fmt.Errorf("transfer to %s: %w", to, model.ErrNotOptedIn)
	}
	if srcBalance < amount {
		return fmt.Errorf("transfer %d of %s: %w", amount, asset, model.ErrInsufficientBalance)
	}

	src.balances[asset] -= amount
	dst.balances[asset] += amount
	return nil
}

func (l *Memory) BalanceOf(_ context.Context, address, asset string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acc, ok := l.accounts[address]
	if !ok {
		return 0, fmt.Errorf("balance of %s: %w", address, model.ErrAccountNotFound)
	}
	balance, ok := acc.balances[asset]
	if !ok {
		return 0, fmt.Errorf("balance of %s in %s: %w", asset, address, model.ErrNotOptedIn)
	}
	return balance, nil
}

// Deposit credits amount of asset to an opted-in account, standing in for an inbound
// payment from outside the ledger.
func (l *Memory) Deposit(address, asset string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[address]
	if !ok {
		return fmt.Errorf("deposit to %s: %w", address, model.ErrAccountNotFound)
	}
	if _, ok := acc.balances[asset]; !ok {
		return fmt.Errorf("deposit to %s: %w", address, model.ErrNotOptedIn)
	}
	acc.balances[asset] += amount
	return nil
}

// Pay records a native payment from payer to the holding account and returns its reference.
func (l *Memory) Pay(payer string, amount int64) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ref := uuid.NewString()
	l.accounts[l.holding].balances[model.NativeAsset] += amount
	l.payments[ref] = model.FundingReceipt{Reference: ref, Payer: payer, Amount: amount}
	return ref
}

// VerifyFunding resolves a payment reference recorded by Pay.
func (l *Memory) VerifyFunding(_ context.Context, proof model.FundingProof, payee string) (model.FundingReceipt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if payee != l.holding {
		return model.FundingReceipt{}, fmt.Errorf("payee %s: %w", payee, model.ErrFundingNotFound)
	}
	receipt, ok := l.payments[proof.Reference]
	if !ok {
		return model.FundingReceipt{}, fmt.Errorf("reference %s: %w", proof.Reference, model.ErrFundingNotFound)
	}
	return receipt, nil
}

func (l *Memory) ensureLocked(address string) *account {
	acc, ok := l.accounts[address]
	if !ok {
		acc = newAccount(0)
		l.accounts[address] = acc
	}
	return acc
}
