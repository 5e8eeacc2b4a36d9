package stellar

import (
	"context"
	"fmt"

	"github.com/stellar/go-stellar-sdk/amount"
	"github.com/stellar/go-stellar-sdk/clients/horizonclient"
	"github.com/stellar/go-stellar-sdk/protocols/horizon/operations"

	"github.com/card-fund-service/internal/model"
)

// VerifyFunding resolves a funding proof, the hash of a successful transaction, to the
// native payments it made to payee. Payments from more than one source are rejected.
func (l *Ledger) VerifyFunding(ctx context.Context, proof model.FundingProof, payee string) (model.FundingReceipt, error) {
	if err := ctx.Err(); err != nil {
		return model.FundingReceipt{}, err
	}

	tx, err := l.client.TransactionDetail(proof.Reference)
	if err != nil {
		if isNotFound(err) {
			return model.FundingReceipt{}, fmt.Errorf("transaction %s: %w", proof.Reference, model.ErrFundingNotFound)
		}
		return model.FundingReceipt{}, fmt.Errorf("horizon transaction detail: %w", err)
	}
	if !tx.Successful {
		return model.FundingReceipt{}, fmt.Errorf("transaction %s failed: %w", proof.Reference, model.ErrFundingNotFound)
	}

	page, err := l.client.Payments(horizonclient.OperationRequest{ForTransaction: proof.Reference, Limit: 200})
	if err != nil {
		return model.FundingReceipt{}, fmt.Errorf("horizon payments: %w", err)
	}

	receipt := model.FundingReceipt{Reference: proof.Reference}
	for _, record := range page.Embedded.Records {
		p, ok := record.(operations.Payment)
		if !ok || p.To != payee || p.Asset.Type != "native" {
			continue
		}
		if receipt.Payer != "" && receipt.Payer != p.From {
			return model.FundingReceipt{}, fmt.Errorf("transaction %s pays from more than one account: %w", proof.Reference, model.ErrFundingInvalid)
		}
		stroops, err := amount.ParseInt64(p.Amount)
		if err != nil {
			return model.FundingReceipt{}, fmt.Errorf("parse payment amount: %w", err)
		}
		receipt.Payer = p.From
		receipt.Amount += stroops
	}
	if receipt.Payer == "" {
		return model.FundingReceipt{}, fmt.Errorf("no native payment to %s in %s: %w", payee, proof.Reference, model.ErrFundingNotFound)
	}
	return receipt, nil
}
