package stellar

import (
	"fmt"
	"strings"

	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/txnbuild"

	"github.com/card-fund-service/internal/model"
)

// ParseAsset parses "native" or "CODE:ISSUER" into a txnbuild asset.
func ParseAsset(s string) (txnbuild.Asset, error) {
	if s == model.NativeAsset {
		return txnbuild.NativeAsset{}, nil
	}
	code, issuer, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("asset %q must be %q or CODE:ISSUER", s, model.NativeAsset)
	}
	if len(code) < 1 || len(code) > 12 {
		return nil, fmt.Errorf("asset code %q must be 1 to 12 characters", code)
	}
	for _, r := range code {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return nil, fmt.Errorf("asset code %q must be alphanumeric", code)
		}
	}
	if _, err := keypair.ParseAddress(issuer); err != nil {
		return nil, fmt.Errorf("asset issuer %q is not a valid Stellar public key", issuer)
	}
	return txnbuild.CreditAsset{Code: code, Issuer: issuer}, nil
}

// AssetString is the inverse of ParseAsset for the asset type and fields Horizon reports.
func AssetString(assetType, code, issuer string) string {
	if assetType == "native" {
		return model.NativeAsset
	}
	return code + ":" + issuer
}
