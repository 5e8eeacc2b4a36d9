package model

// FundingProof references a payment made to the holding account to cover provisioning costs.
type FundingProof struct {
	Reference string `json:"reference"`
}

// FundingReceipt is what a funding proof resolves to.
type FundingReceipt struct {
	Reference string
	Payer     string
	Amount    int64
}
