package stellar

import (
	"github.com/stellar/go-stellar-sdk/txnbuild"

	"github.com/card-fund-service/internal/model"
)

// reservesForOperation returns how many base reserves an operation locks in the account
// it applies to. Returns 0 for operations that don't create new ledger entries.
func reservesForOperation(op txnbuild.Operation) int {
	switch o := op.(type) {
	case *txnbuild.CreateAccount:
		// New account requires 2 base reserves
		return 2
	case *txnbuild.ChangeTrust:
		// Adding a trustline locks 1 reserve; removing (limit "0") frees it
		if o.Limit == "0" {
			return 0
		}
		return 1
	case *txnbuild.SetOptions:
		// Adding a signer locks 1 reserve
		if o.Signer != nil {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Costs prices provisioning and opt-ins from the reserves the ledger operations lock.
func Costs(baseReserve int64) model.CostSchedule {
	var provision int
	for _, op := range provisionOps("", "", 0) {
		provision += reservesForOperation(op)
	}
	return model.CostSchedule{
		AccountReserve: int64(provision) * baseReserve,
		OptInReserve:   int64(reservesForOperation(&txnbuild.ChangeTrust{})) * baseReserve,
		OperationFee:   txnbuild.MinBaseFee,
	}
}
