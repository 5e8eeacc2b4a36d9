package model

// AllowlistEntry records that an asset may be held by card funds and where it settles to.
type AllowlistEntry struct {
	Asset             string `json:"asset"`
	SettlementAddress string `json:"settlement_address"`
}
