package service

import "github.com/card-fund-service/internal/model"

// QuoteCardFund returns the funding createCardFund requires, with or without an initial asset.
func (e *Engine) QuoteCardFund(asset string) model.Quote {
	return e.costs.AccountQuote(asset != "")
}

// QuoteChannel returns the funding createChannel requires.
func (e *Engine) QuoteChannel() model.Quote {
	return e.costs.AccountQuote(false)
}

// QuoteAllowlist returns the funding addToAllowlist and asset enablement require.
func (e *Engine) QuoteAllowlist() model.Quote {
	return e.costs.OptInQuote()
}
