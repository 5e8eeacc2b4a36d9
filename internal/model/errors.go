package model

import "errors"

// Sentinel errors returned by ledger collaborators. Implementations wrap them with context.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotOptedIn          = errors.New("account not opted in to asset")
	ErrAccountNotEmpty     = errors.New("account still holds assets")
	ErrAccountNotFound     = errors.New("account not found")
	ErrFundingNotFound     = errors.New("funding payment not found")
	ErrFundingInvalid      = errors.New("funding payment is not acceptable")

	// ErrTransferRejected marks a submission the ledger refused. A rejected transfer can
	// never apply later.
	ErrTransferRejected = errors.New("transfer rejected")
)
