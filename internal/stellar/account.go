package stellar

import (
	"context"
	"fmt"

	"github.com/stellar/go-stellar-sdk/amount"
	"github.com/stellar/go-stellar-sdk/clients/horizonclient"

	"github.com/card-fund-service/internal/model"
)

// BaseReserveStroops is the Stellar base reserve in stroops (0.5 XLM).
const BaseReserveStroops int64 = 5_000_000

// BalanceOf returns the total balance of asset held by account, in stroops.
func (l *Ledger) BalanceOf(ctx context.Context, account, asset string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	detail, err := l.client.AccountDetail(horizonclient.AccountRequest{AccountID: account})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("load account %s: %w", account, model.ErrAccountNotFound)
		}
		return 0, fmt.Errorf("load account %s: %w", account, err)
	}

	for _, b := range detail.Balances {
		if AssetString(b.Asset.Type, b.Asset.Code, b.Asset.Issuer) != asset {
			continue
		}
		stroops, err := amount.ParseInt64(b.Balance)
		if err != nil {
			return 0, fmt.Errorf("parse balance: %w", err)
		}
		return stroops, nil
	}
	return 0, fmt.Errorf("balance of %s in %s: %w", asset, account, model.ErrNotOptedIn)
}
