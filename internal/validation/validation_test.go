package validation

import (
	"strings"
	"testing"

	"github.com/stellar/go-stellar-sdk/keypair"
)

func TestAddress(t *testing.T) {
	kp, err := keypair.Random()
	if err != nil {
		t.Fatalf("random keypair: %v", err)
	}

	t.Run("accepts public key", func(t *testing.T) {
		if err := Address("owner", kp.Address()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("rejects secret key", func(t *testing.T) {
		err := Address("owner", kp.Seed())
		if err == nil || !strings.Contains(err.Error(), "owner") {
			t.Fatalf("expected invalid owner error, got %v", err)
		}
	})
}

func TestAsset(t *testing.T) {
	kp, err := keypair.Random()
	if err != nil {
		t.Fatalf("random keypair: %v", err)
	}

	for _, tc := range []struct {
		asset string
		ok    bool
	}{
		{"native", true},
		{"USDC:" + kp.Address(), true},
		{"USDC", false},
		{"TOOLONGASSETCODE:" + kp.Address(), false},
		{"US-C:" + kp.Address(), false},
		{"USDC:not-an-issuer", false},
	} {
		t.Run(tc.asset, func(t *testing.T) {
			err := Asset(tc.asset)
			if tc.ok && err != nil {
				t.Fatalf("expected %q to be valid, got %v", tc.asset, err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected %q to be rejected", tc.asset)
			}
		})
	}
}

func TestChannelName(t *testing.T) {
	if err := ChannelName("acme-cards"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := ChannelName("   "); err == nil {
		t.Fatal("expected blank name to be rejected")
	}
	if err := ChannelName(strings.Repeat("x", maxChannelNameLength+1)); err == nil {
		t.Fatal("expected long name to be rejected")
	}
}
