package ledgercrypto

import "testing"

func TestNewKeypairProducesDistinctUsableKeys(t *testing.T) {
	pub1, priv1, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	pub2, _, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	if pub1 == pub2 {
		t.Fatalf("expected distinct public keys across two calls")
	}
	if pub1 == "" || priv1 == "" {
		t.Fatalf("expected non-empty PEM text")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	sig, err := Sign(priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify(sig, pub) {
		t.Fatalf("expected signature to verify against matching public key")
	}
}

func TestVerifyRejectsMismatchedKey(t *testing.T) {
	_, priv1, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	pub2, _, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	sig, err := Sign(priv1)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify(sig, pub2) {
		t.Fatalf("expected signature from one keypair to fail against another's public key")
	}
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	if Verify([]byte("not a real signature"), "not pem text") {
		t.Fatalf("expected malformed public key text to fail verification, not error")
	}
}
