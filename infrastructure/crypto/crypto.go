// Package crypto provides the cryptographic operations used by the Secrets
// Manager protocol: AES-GCM and AES-CBC, ECDH key agreement over P-256, ECDSA
// signing, HMAC-SHA-512 and secure random generation.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
)

const component = "crypto"

const (
	// AESKeySize is the key length for AES-256.
	AESKeySize = 32
	// GCMNonceSize is the nonce length prefixed to GCM ciphertexts.
	GCMNonceSize = 12
	// CBCBlockSize is the AES block and IV length.
	CBCBlockSize = 16
	// UIDSize is the length of record, folder and file identifiers.
	UIDSize = 16
)

// GenerateRandomBytes generates cryptographically secure random bytes.
func GenerateRandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure means the platform RNG is gone; nothing
		// sensible can continue.
		panic(fmt.Sprintf("crypto: rand.Read failed: %v", err))
	}
	return b
}

// GenerateEncryptionKeyBytes returns a fresh 32-byte symmetric key.
func GenerateEncryptionKeyBytes() []byte {
	return GenerateRandomBytes(AESKeySize)
}

// GenerateUIDBytes returns 16 random bytes suitable for a record UID. The top
// five bits of byte 0 must not all be set, so that the base64 form never
// starts with a character the server rejects. Regenerates up to 8 times
// before clearing the bits directly.
func GenerateUIDBytes() []byte {
	var uid []byte
	for i := 0; i < 8; i++ {
		uid = GenerateRandomBytes(UIDSize)
		if uid[0]&0xF8 != 0xF8 {
			return uid
		}
	}
	uid[0] &= 0x7F
	return uid
}

// GenerateUID returns a new UID in its URL-safe base64 form.
func GenerateUID() string {
	return BytesToURLSafeStr(GenerateUIDBytes())
}

// EncryptAESGCM encrypts plaintext with AES-256-GCM under a fresh random
// nonce and returns nonce || ciphertext || tag.
func EncryptAESGCM(key, plaintext []byte) ([]byte, error) {
	return EncryptAESGCMWithNonce(key, plaintext, nil)
}

// EncryptAESGCMWithNonce is EncryptAESGCM with a caller-supplied nonce.
// A nil nonce generates a random one.
func EncryptAESGCMWithNonce(key, plaintext, nonce []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if nonce == nil {
		nonce = GenerateRandomBytes(GCMNonceSize)
	}
	if len(nonce) != GCMNonceSize {
		return nil, errors.Newf(errors.ErrCodeCrypto, component, "invalid nonce size %d", len(nonce))
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// DecryptAESGCM decrypts a nonce || ciphertext || tag blob produced by
// EncryptAESGCM.
func DecryptAESGCM(key, data []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < GCMNonceSize {
		return nil, errors.New(errors.ErrCodeCrypto, component, "data too short to contain nonce")
	}
	plaintext, err := aead.Open(nil, data[:GCMNonceSize], data[GCMNonceSize:], nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "gcm decrypt", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != AESKeySize {
		return nil, errors.Newf(errors.ErrCodeCrypto, component, "invalid key size %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "new cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "new gcm", err)
	}
	return aead, nil
}

// PadPKCS7 pads data to the AES block size. A full block of padding is
// appended when the input is already block-aligned.
func PadPKCS7(data []byte) []byte {
	padLen := CBCBlockSize - len(data)%CBCBlockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

// UnpadPKCS7 strips PKCS#7 padding.
func UnpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%CBCBlockSize != 0 {
		return nil, errors.Newf(errors.ErrCodeCrypto, component, "invalid padded length %d", len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > CBCBlockSize || padLen > len(data) {
		return nil, errors.New(errors.ErrCodeCrypto, component, "invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New(errors.ErrCodeCrypto, component, "invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// EncryptAESCBC encrypts plaintext with AES-256-CBC and PKCS#7 padding under
// a fresh random IV and returns iv || ciphertext.
func EncryptAESCBC(key, plaintext []byte) ([]byte, error) {
	return EncryptAESCBCWithIV(key, plaintext, nil)
}

// EncryptAESCBCWithIV is EncryptAESCBC with a caller-supplied IV. A nil IV
// generates a random one.
func EncryptAESCBCWithIV(key, plaintext, iv []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, errors.Newf(errors.ErrCodeCrypto, component, "invalid key size %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "new cipher", err)
	}
	if iv == nil {
		iv = GenerateRandomBytes(CBCBlockSize)
	}
	if len(iv) != CBCBlockSize {
		return nil, errors.Newf(errors.ErrCodeCrypto, component, "invalid iv size %d", len(iv))
	}
	padded := PadPKCS7(plaintext)
	out := make([]byte, CBCBlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[CBCBlockSize:], padded)
	return out, nil
}

// DecryptAESCBC decrypts an iv || ciphertext blob. Padding is NOT removed:
// some server payloads carry a length-prefixed internal format instead of
// PKCS#7, so the caller decides whether to call UnpadPKCS7.
func DecryptAESCBC(key, data []byte) ([]byte, error) {
	if len(key) != AESKeySize {
		return nil, errors.Newf(errors.ErrCodeCrypto, component, "invalid key size %d", len(key))
	}
	if len(data) < CBCBlockSize || (len(data)-CBCBlockSize)%CBCBlockSize != 0 {
		return nil, errors.Newf(errors.ErrCodeCrypto, component, "invalid ciphertext length %d", len(data))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "new cipher", err)
	}
	out := make([]byte, len(data)-CBCBlockSize)
	cipher.NewCBCDecrypter(block, data[:CBCBlockSize]).CryptBlocks(out, data[CBCBlockSize:])
	return out, nil
}

// DecryptAESCBCUnpad decrypts and strips PKCS#7 padding in one step.
func DecryptAESCBCUnpad(key, data []byte) ([]byte, error) {
	plain, err := DecryptAESCBC(key, data)
	if err != nil {
		return nil, err
	}
	return UnpadPKCS7(plain)
}

// HMACSHA512 computes HMAC-SHA-512 over msg. This is the client identifier
// derivation primitive.
func HMACSHA512(key, msg []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// HMACEqual compares two MACs in constant time.
func HMACEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Zeroize overwrites a key buffer. Best effort; Go gives no guarantee the
// memory was not already copied.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
