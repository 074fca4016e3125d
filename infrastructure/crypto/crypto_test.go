package crypto

import (
	"bytes"
	"testing"
)

func TestAESGCMRoundTrip(t *testing.T) {
	key := GenerateEncryptionKeyBytes()
	plaintext := []byte(`{"title":"My Login","type":"login"}`)

	blob, err := EncryptAESGCM(key, plaintext)
	if err != nil {
		t.Fatalf("EncryptAESGCM() error = %v", err)
	}
	if len(blob) != GCMNonceSize+len(plaintext)+16 {
		t.Errorf("blob length = %d, want nonce+plaintext+tag = %d", len(blob), GCMNonceSize+len(plaintext)+16)
	}

	got, err := DecryptAESGCM(key, blob)
	if err != nil {
		t.Fatalf("DecryptAESGCM() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch: got %q", got)
	}
}

func TestAESGCMRejectsBadInputs(t *testing.T) {
	t.Run("wrong key size", func(t *testing.T) {
		if _, err := EncryptAESGCM(make([]byte, 16), []byte("x")); err == nil {
			t.Error("expected error for 16-byte key")
		}
	})

	t.Run("tampered tag", func(t *testing.T) {
		key := GenerateEncryptionKeyBytes()
		blob, _ := EncryptAESGCM(key, []byte("secret"))
		blob[len(blob)-1] ^= 0x01
		if _, err := DecryptAESGCM(key, blob); err == nil {
			t.Error("expected error for tampered tag")
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		blob, _ := EncryptAESGCM(GenerateEncryptionKeyBytes(), []byte("secret"))
		if _, err := DecryptAESGCM(GenerateEncryptionKeyBytes(), blob); err == nil {
			t.Error("expected error for wrong key")
		}
	})

	t.Run("truncated blob", func(t *testing.T) {
		if _, err := DecryptAESGCM(GenerateEncryptionKeyBytes(), make([]byte, 8)); err == nil {
			t.Error("expected error for blob shorter than nonce")
		}
	})
}

func TestAESGCMWithExplicitNonce(t *testing.T) {
	key := make([]byte, AESKeySize)
	nonce := make([]byte, GCMNonceSize)
	for i := range nonce {
		nonce[i] = byte(i)
	}
	blob, err := EncryptAESGCMWithNonce(key, []byte("fixed"), nonce)
	if err != nil {
		t.Fatalf("EncryptAESGCMWithNonce() error = %v", err)
	}
	if !bytes.Equal(blob[:GCMNonceSize], nonce) {
		t.Error("blob does not start with the supplied nonce")
	}
}

func TestPKCS7Padding(t *testing.T) {
	t.Run("block aligned input gets full pad block", func(t *testing.T) {
		msg := make([]byte, 32)
		padded := PadPKCS7(msg)
		if len(padded) != 48 {
			t.Fatalf("padded length = %d, want 48", len(padded))
		}
		for _, b := range padded[32:] {
			if b != 0x10 {
				t.Fatalf("pad byte = %#x, want 0x10", b)
			}
		}
	})

	t.Run("unpad inverts pad for all lengths", func(t *testing.T) {
		for n := 0; n < 33; n++ {
			msg := GenerateRandomBytes(n)
			got, err := UnpadPKCS7(PadPKCS7(msg))
			if err != nil {
				t.Fatalf("UnpadPKCS7() error = %v for n=%d", err, n)
			}
			if !bytes.Equal(got, msg) {
				t.Fatalf("unpad(pad(m)) != m for n=%d", n)
			}
		}
	})

	t.Run("rejects corrupt padding", func(t *testing.T) {
		padded := PadPKCS7([]byte("hello"))
		padded[len(padded)-2] ^= 0xFF
		if _, err := UnpadPKCS7(padded); err == nil {
			t.Error("expected error for corrupt padding")
		}
	})
}

func TestAESCBCRoundTrip(t *testing.T) {
	key := GenerateEncryptionKeyBytes()
	plaintext := []byte(`{"name":"Shared Folder"}`)

	blob, err := EncryptAESCBC(key, plaintext)
	if err != nil {
		t.Fatalf("EncryptAESCBC() error = %v", err)
	}

	// DecryptAESCBC leaves the padding in place.
	padded, err := DecryptAESCBC(key, blob)
	if err != nil {
		t.Fatalf("DecryptAESCBC() error = %v", err)
	}
	if len(padded)%CBCBlockSize != 0 {
		t.Errorf("decrypted length %d not block aligned", len(padded))
	}
	got, err := UnpadPKCS7(padded)
	if err != nil {
		t.Fatalf("UnpadPKCS7() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch: got %q", got)
	}

	// And the one-step variant agrees.
	got2, err := DecryptAESCBCUnpad(key, blob)
	if err != nil {
		t.Fatalf("DecryptAESCBCUnpad() error = %v", err)
	}
	if !bytes.Equal(got2, plaintext) {
		t.Errorf("DecryptAESCBCUnpad mismatch: got %q", got2)
	}
}

func TestGenerateUIDBytes(t *testing.T) {
	for i := 0; i < 256; i++ {
		uid := GenerateUIDBytes()
		if len(uid) != UIDSize {
			t.Fatalf("uid length = %d, want %d", len(uid), UIDSize)
		}
		if uid[0]&0xF8 == 0xF8 {
			t.Fatalf("uid byte 0 = %#x violates the top-bits invariant", uid[0])
		}
	}
}

func TestGenerateUIDEncoding(t *testing.T) {
	uid := GenerateUID()
	if len(uid) != 22 {
		t.Errorf("encoded uid length = %d, want 22", len(uid))
	}
	raw, err := URLSafeStrToBytes(uid)
	if err != nil {
		t.Fatalf("URLSafeStrToBytes() error = %v", err)
	}
	if len(raw) != UIDSize {
		t.Errorf("decoded uid length = %d, want %d", len(raw), UIDSize)
	}
}

func TestHMACSHA512(t *testing.T) {
	mac := HMACSHA512([]byte("key"), []byte("KEEPER_SECRETS_MANAGER_CLIENT_ID"))
	if len(mac) != 64 {
		t.Errorf("mac length = %d, want 64", len(mac))
	}
	mac2 := HMACSHA512([]byte("key"), []byte("KEEPER_SECRETS_MANAGER_CLIENT_ID"))
	if !HMACEqual(mac, mac2) {
		t.Error("HMAC not deterministic")
	}
	if HMACEqual(mac, HMACSHA512([]byte("other"), []byte("msg"))) {
		t.Error("different keys produced equal MACs")
	}
}

func TestZeroize(t *testing.T) {
	b := GenerateRandomBytes(32)
	Zeroize(b)
	for _, v := range b {
		if v != 0 {
			t.Fatal("buffer not zeroed")
		}
	}
}
