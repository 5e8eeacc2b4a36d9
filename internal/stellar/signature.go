package stellar

import (
	"crypto/sha256"
	"fmt"

	"github.com/stellar/go-stellar-sdk/keypair"
)

// SignatureVerifier verifies detached ed25519 signatures against Stellar public keys.
type SignatureVerifier struct{}

func (SignatureVerifier) Verify(message, signature []byte, publicKey string) error {
	kp, err := keypair.ParseAddress(publicKey)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	if err := kp.Verify(message, signature); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}

// DomainSeparator binds approval signatures to one network and one holding account.
func DomainSeparator(networkPassphrase, holding string) [32]byte {
	return sha256.Sum256([]byte("cardfund:" + networkPassphrase + ":" + holding))
}
