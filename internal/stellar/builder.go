package stellar

import (
	"fmt"

	"github.com/stellar/go-stellar-sdk/amount"
	"github.com/stellar/go-stellar-sdk/txnbuild"
)

// txTimeout bounds how long a built transaction stays valid, in seconds.
const txTimeout = 300

// buildTransaction wraps ops in a transaction sourced from source.
func buildTransaction(source txnbuild.Account, ops []txnbuild.Operation) (*txnbuild.Transaction, error) {
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        source,
		IncrementSequenceNum: true,
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(txTimeout)},
		Operations:           ops,
	})
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	return tx, nil
}

// provisionOps creates account funded with startingBalance from holding, then makes the
// holding key its only signer:
// 1. Create the account from the holding account
// 2. Add the holding key as signer and zero the account's own master weight
func provisionOps(holding, account string, startingBalance int64) []txnbuild.Operation {
	masterWeight := txnbuild.Threshold(0)
	threshold := txnbuild.Threshold(1)

	return []txnbuild.Operation{
		&txnbuild.CreateAccount{
			SourceAccount: holding,
			Destination:   account,
			Amount:        amount.StringFromInt64(startingBalance),
		},
		&txnbuild.SetOptions{
			SourceAccount: account,
			Signer: &txnbuild.Signer{
				Address: holding,
				Weight:  txnbuild.Threshold(1),
			},
			MasterWeight:    &masterWeight,
			LowThreshold:    &threshold,
			MediumThreshold: &threshold,
			HighThreshold:   &threshold,
		},
	}
}

// teardownOps merges account into closeTo. The merge fails while trustlines remain.
func teardownOps(account, closeTo string) []txnbuild.Operation {
	return []txnbuild.Operation{
		&txnbuild.AccountMerge{
			SourceAccount: account,
			Destination:   closeTo,
		},
	}
}

func paymentOp(from, to string, asset txnbuild.Asset, stroops int64) *txnbuild.Payment {
	return &txnbuild.Payment{
		SourceAccount: from,
		Destination:   to,
		Amount:        amount.StringFromInt64(stroops),
		Asset:         asset,
	}
}

// trustOp adds a trustline when limit is empty and removes it when limit is "0".
func trustOp(account string, asset txnbuild.Asset, limit string) (*txnbuild.ChangeTrust, error) {
	line, err := asset.ToChangeTrustAsset()
	if err != nil {
		return nil, fmt.Errorf("change trust asset: %w", err)
	}
	return &txnbuild.ChangeTrust{
		SourceAccount: account,
		Line:          line,
		Limit:         limit,
	}, nil
}

// closeOutOps returns the remaining balance to closeTo and removes the trustline.
func closeOutOps(account, closeTo string, asset txnbuild.Asset, remaining int64) ([]txnbuild.Operation, error) {
	var ops []txnbuild.Operation
	if remaining > 0 {
		ops = append(ops, paymentOp(account, closeTo, asset, remaining))
	}
	remove, err := trustOp(account, asset, "0")
	if err != nil {
		return nil, err
	}
	return append(ops, remove), nil
}
