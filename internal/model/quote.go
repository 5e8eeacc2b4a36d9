package model

// CostSchedule prices the native-currency cost of provisioning accounts and asset opt-ins.
// All values are in stroops.
type CostSchedule struct {
	AccountReserve int64 `json:"account_reserve"`
	OptInReserve   int64 `json:"opt_in_reserve"`
	OperationFee   int64 `json:"operation_fee"`
}

// Quote is the funding a caller must provide before an operation is executed.
type Quote struct {
	Provision int64 `json:"provision"`
	OptIn     int64 `json:"opt_in"`
	Fees      int64 `json:"fees"`
	Total     int64 `json:"total"`
}

func newQuote(provision, optIn, fees int64) Quote {
	return Quote{Provision: provision, OptIn: optIn, Fees: fees, Total: provision + optIn + fees}
}

// AccountQuote prices provisioning one custodial account, optionally opted into an asset.
func (c CostSchedule) AccountQuote(withAsset bool) Quote {
	var optIn int64
	fees := c.OperationFee * provisionOps
	if withAsset {
		optIn = c.OptInReserve
		fees += c.OperationFee
	}
	return newQuote(c.AccountReserve, optIn, fees)
}

// OptInQuote prices opting an existing account into one asset.
func (c CostSchedule) OptInQuote() Quote {
	return newQuote(0, c.OptInReserve, c.OperationFee)
}

// provisionOps is the number of ledger operations a provisioning submits.
const provisionOps = 2
