package stellar

import (
	"context"
	"fmt"
	"time"

	"github.com/stellar/go-stellar-sdk/clients/horizonclient"
	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/txnbuild"

	"github.com/card-fund-service/internal/model"
)

// Ledger provisions custodial accounts and moves assets on the Stellar network. Every
// transaction is sourced from the holding account, which pays the fees and signs for
// the accounts it controls.
type Ledger struct {
	client            horizonclient.ClientInterface
	holding           *keypair.Full
	networkPassphrase string
}

// NewLedger creates a ledger backed by Horizon.
// The secretKey must be a valid Stellar secret key (S...) of the holding account.
func NewLedger(client horizonclient.ClientInterface, secretKey, networkPassphrase string) (*Ledger, error) {
	kp, err := keypair.ParseFull(secretKey)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	return &Ledger{client: client, holding: kp, networkPassphrase: networkPassphrase}, nil
}

// HoldingAddress returns the public key (G...) of the holding account.
func (l *Ledger) HoldingAddress() string {
	return l.holding.Address()
}

func (l *Ledger) Provision(ctx context.Context, startingBalance int64) (string, error) {
	kp, err := keypair.Random()
	if err != nil {
		return "", fmt.Errorf("generate account keypair: %w", err)
	}
	// The new account signs its own SetOptions before its master weight drops to zero.
	if err := l.submit(ctx, "provision account", provisionOps(l.HoldingAddress(), kp.Address(), startingBalance), kp); err != nil {
		return "", err
	}
	return kp.Address(), nil
}

func (l *Ledger) Teardown(ctx context.Context, account, closeTo string) error {
	return l.submit(ctx, "teardown "+account, teardownOps(account, closeTo))
}

func (l *Ledger) Transfer(ctx context.Context, from, to, asset string, stroops int64) error {
	a, err := ParseAsset(asset)
	if err != nil {
		return err
	}
	return l.submit(ctx, "transfer", []txnbuild.Operation{paymentOp(from, to, a, stroops)})
}

// PrepareTransfer builds and signs a payment without submitting it. The reference is the
// transaction hash, which stays resolvable on Horizon once the transaction is included.
func (l *Ledger) PrepareTransfer(ctx context.Context, from, to, asset string, stroops int64) (model.PreparedTransfer, error) {
	if err := ctx.Err(); err != nil {
		return model.PreparedTransfer{}, err
	}
	a, err := ParseAsset(asset)
	if err != nil {
		return model.PreparedTransfer{}, err
	}
	tx, err := l.sign(ctx, "transfer", []txnbuild.Operation{paymentOp(from, to, a, stroops)})
	if err != nil {
		return model.PreparedTransfer{}, err
	}
	hash, err := tx.HashHex(l.networkPassphrase)
	if err != nil {
		return model.PreparedTransfer{}, fmt.Errorf("hash transfer: %w", err)
	}
	envelope, err := tx.Base64()
	if err != nil {
		return model.PreparedTransfer{}, fmt.Errorf("encode transfer: %w", err)
	}
	return model.PreparedTransfer{
		Reference:  hash,
		Envelope:   envelope,
		ValidUntil: time.Unix(tx.Timebounds().MaxTime, 0).UTC(),
	}, nil
}

// SubmitTransfer submits a prepared envelope. Errors carrying result codes wrap
// model.ErrTransferRejected; anything else leaves the outcome unknown.
func (l *Ledger) SubmitTransfer(ctx context.Context, p model.PreparedTransfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := l.client.SubmitTransactionXDR(p.Envelope); err != nil {
		return fmt.Errorf("transfer %s: %w", p.Reference, submissionError(err))
	}
	return nil
}

// TransferStatus looks the prepared transaction up by hash. A transaction that is not on
// the ledger after its time bounds have passed can no longer be included.
func (l *Ledger) TransferStatus(ctx context.Context, p model.PreparedTransfer) (model.TransferStatus, error) {
	if err := ctx.Err(); err != nil {
		return model.TransferPending, err
	}
	tx, err := l.client.TransactionDetail(p.Reference)
	switch {
	case err == nil && tx.Successful:
		return model.TransferApplied, nil
	case err == nil:
		return model.TransferFailed, nil
	case isNotFound(err):
		if time.Now().After(p.ValidUntil) {
			return model.TransferFailed, nil
		}
		return model.TransferPending, nil
	default:
		return model.TransferPending, fmt.Errorf("horizon transaction detail: %w", err)
	}
}

func (l *Ledger) OptIn(ctx context.Context, account, asset string) error {
	if asset == model.NativeAsset {
		return nil
	}
	a, err := ParseAsset(asset)
	if err != nil {
		return err
	}
	op, err := trustOp(account, a, "")
	if err != nil {
		return err
	}
	return l.submit(ctx, "opt in "+account, []txnbuild.Operation{op})
}

func (l *Ledger) CloseOut(ctx context.Context, account, asset, closeTo string) error {
	if asset == model.NativeAsset {
		return fmt.Errorf("close out native asset: %w", model.ErrNotOptedIn)
	}
	a, err := ParseAsset(asset)
	if err != nil {
		return err
	}
	remaining, err := l.BalanceOf(ctx, account, asset)
	if err != nil {
		return err
	}
	ops, err := closeOutOps(account, closeTo, a, remaining)
	if err != nil {
		return err
	}
	return l.submit(ctx, "close out "+account, ops)
}

// submit builds, signs and submits ops from the holding account. extra signs alongside the
// holding key.
func (l *Ledger) submit(ctx context.Context, what string, ops []txnbuild.Operation, extra ...*keypair.Full) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := l.sign(ctx, what, ops, extra...)
	if err != nil {
		return err
	}
	if _, err := l.client.SubmitTransaction(tx); err != nil {
		return fmt.Errorf("%s: %w", what, submissionError(err))
	}
	return nil
}

func (l *Ledger) sign(_ context.Context, what string, ops []txnbuild.Operation, extra ...*keypair.Full) (*txnbuild.Transaction, error) {
	source, err := l.client.AccountDetail(horizonclient.AccountRequest{AccountID: l.HoldingAddress()})
	if err != nil {
		return nil, fmt.Errorf("load holding account: %w", err)
	}
	tx, err := buildTransaction(&source, ops)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}

	// Sign() returns a new *Transaction
	tx, err = tx.Sign(l.networkPassphrase, append([]*keypair.Full{l.holding}, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", what, err)
	}
	return tx, nil
}

// resultCodeErrors maps Horizon result codes onto the ledger sentinels the engine understands.
var resultCodeErrors = map[string]error{
	"tx_insufficient_balance": model.ErrInsufficientBalance,
	"op_underfunded":          model.ErrInsufficientBalance,
	"op_low_reserve":          model.ErrInsufficientBalance,
	"op_no_trust":             model.ErrNotOptedIn,
	"op_src_no_trust":         model.ErrNotOptedIn,
	"op_not_authorized":       model.ErrNotOptedIn,
	"op_src_not_authorized":   model.ErrNotOptedIn,
	"op_has_sub_entries":      model.ErrAccountNotEmpty,
	"op_invalid_limit":        model.ErrAccountNotEmpty,
	"op_no_destination":       model.ErrAccountNotFound,
	"op_no_account":           model.ErrAccountNotFound,
	"tx_no_source_account":    model.ErrAccountNotFound,
}

func submissionError(err error) error {
	herr := horizonclient.GetError(err)
	if herr == nil {
		return err
	}
	codes, cerr := herr.ResultCodes()
	if cerr != nil || codes == nil {
		return err
	}
	if mapped := resultCodeError(codes.TransactionCode, codes.OperationCodes); mapped != nil {
		return fmt.Errorf("%w: %w", model.ErrTransferRejected, mapped)
	}
	return fmt.Errorf("transaction %s %v: %w: %w", codes.TransactionCode, codes.OperationCodes, model.ErrTransferRejected, err)
}

// resultCodeError returns the first mapped code, operation codes first.
func resultCodeError(txCode string, opCodes []string) error {
	codes := make([]string, 0, len(opCodes)+1)
	codes = append(codes, opCodes...)
	for _, code := range append(codes, txCode) {
		if sentinel, ok := resultCodeErrors[code]; ok {
			return fmt.Errorf("%s: %w", code, sentinel)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return horizonclient.IsNotFoundError(err)
}
