package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
)

func TestPrivateKeyDERRoundTrip(t *testing.T) {
	der, err := GeneratePrivateKeyDER()
	if err != nil {
		t.Fatalf("GeneratePrivateKeyDER() error = %v", err)
	}
	key, err := ParsePrivateKeyDER(der)
	if err != nil {
		t.Fatalf("ParsePrivateKeyDER() error = %v", err)
	}
	if key.Curve != elliptic.P256() {
		t.Error("parsed key not on P-256")
	}
}

func TestExtractPublicKeyBytes(t *testing.T) {
	der, _ := GeneratePrivateKeyDER()
	pub, err := ExtractPublicKeyBytes(der)
	if err != nil {
		t.Fatalf("ExtractPublicKeyBytes() error = %v", err)
	}
	if len(pub) != 65 {
		t.Errorf("public key length = %d, want 65", len(pub))
	}
	if pub[0] != 0x04 {
		t.Errorf("public key prefix = %#x, want 0x04 (uncompressed)", pub[0])
	}
}

func TestSignVerify(t *testing.T) {
	der, _ := GeneratePrivateKeyDER()
	key, _ := ParsePrivateKeyDER(der)
	pub, _ := ExtractPublicKeyBytes(der)

	msg := []byte("wrapped-key||encrypted-payload")
	sig, err := Sign(key, msg)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if !Verify(pub, msg, sig) {
		t.Error("valid signature rejected")
	}
	if Verify(pub, []byte("other message"), sig) {
		t.Error("signature verified against wrong message")
	}

	otherDER, _ := GeneratePrivateKeyDER()
	otherPub, _ := ExtractPublicKeyBytes(otherDER)
	if Verify(otherPub, msg, sig) {
		t.Error("signature verified with wrong key")
	}
	if Verify([]byte{0x04, 0x01}, msg, sig) {
		t.Error("malformed public key accepted")
	}
}

func TestPublicEncryptDecrypt(t *testing.T) {
	recipient, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	recipientPub, err := recipient.PublicKey.ECDH()
	if err != nil {
		t.Fatalf("ECDH() error = %v", err)
	}

	secret := GenerateEncryptionKeyBytes()

	t.Run("without idz", func(t *testing.T) {
		blob, err := PublicEncrypt(secret, recipientPub.Bytes(), nil)
		if err != nil {
			t.Fatalf("PublicEncrypt() error = %v", err)
		}
		if blob[0] != 0x04 {
			t.Error("blob does not start with an uncompressed SEC1 point")
		}
		got, err := PublicDecrypt(blob, recipient, nil)
		if err != nil {
			t.Fatalf("PublicDecrypt() error = %v", err)
		}
		if !bytes.Equal(got, secret) {
			t.Error("round trip mismatch")
		}
	})

	t.Run("with idz", func(t *testing.T) {
		idz := []byte("binding-context")
		blob, err := PublicEncrypt(secret, recipientPub.Bytes(), idz)
		if err != nil {
			t.Fatalf("PublicEncrypt() error = %v", err)
		}
		if _, err := PublicDecrypt(blob, recipient, nil); err == nil {
			t.Error("decrypt without idz should fail")
		}
		got, err := PublicDecrypt(blob, recipient, idz)
		if err != nil {
			t.Fatalf("PublicDecrypt() error = %v", err)
		}
		if !bytes.Equal(got, secret) {
			t.Error("round trip mismatch")
		}
	})

	t.Run("garbage recipient key", func(t *testing.T) {
		if _, err := PublicEncrypt(secret, []byte{1, 2, 3}, nil); err == nil {
			t.Error("expected error for invalid recipient key")
		}
	})
}
