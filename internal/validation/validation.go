package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/stellar/go-stellar-sdk/keypair"

	"github.com/card-fund-service/internal/stellar"
)

const maxChannelNameLength = 64

// Address validates that s is a Stellar public key.
func Address(field, s string) error {
	if _, err := keypair.ParseAddress(s); err != nil {
		return fmt.Errorf("%s %q is not a valid Stellar public key", field, s)
	}
	return nil
}

// Asset validates an asset identifier of the form "native" or CODE:ISSUER.
func Asset(s string) error {
	_, err := stellar.ParseAsset(s)
	return err
}

// ChannelName validates a partner channel display name.
func ChannelName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxChannelNameLength {
		return fmt.Errorf("name must be at most %d characters", maxChannelNameLength)
	}
	return nil
}
