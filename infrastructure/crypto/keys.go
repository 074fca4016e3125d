package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"

	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
)

// GeneratePrivateKeyDER generates a new P-256 private key and returns it as
// PKCS#8 DER, the form persisted in configuration.
func GeneratePrivateKeyDER() ([]byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "generate p256 key", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "marshal pkcs8", err)
	}
	return der, nil
}

// ParsePrivateKeyDER parses PKCS#8 DER into an ECDSA P-256 private key.
func ParsePrivateKeyDER(der []byte) (*ecdsa.PrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "parse pkcs8", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New(errors.ErrCodeCrypto, component, "pkcs8 key is not ECDSA")
	}
	if key.Curve != elliptic.P256() {
		return nil, errors.New(errors.ErrCodeCrypto, component, "key is not on P-256")
	}
	return key, nil
}

// ExtractPublicKeyBytes returns the uncompressed SEC1 point (65 bytes,
// leading 0x04) of the public half of a PKCS#8 DER private key.
func ExtractPublicKeyBytes(privateKeyDER []byte) ([]byte, error) {
	key, err := ParsePrivateKeyDER(privateKeyDER)
	if err != nil {
		return nil, err
	}
	ecdhPub, err := key.PublicKey.ECDH()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "convert public key", err)
	}
	return ecdhPub.Bytes(), nil
}

// Sign signs message with ECDSA P-256 over SHA-256 and returns an ASN.1 DER
// signature.
func Sign(key *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	sig, err := ecdsa.SignASN1(rand.Reader, key, SHA256(message))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "ecdsa sign", err)
	}
	return sig, nil
}

// Verify checks an ASN.1 DER signature against an uncompressed SEC1 public
// key.
func Verify(publicKeySEC1, message, signature []byte) bool {
	x, y := elliptic.Unmarshal(elliptic.P256(), publicKeySEC1)
	if x == nil {
		return false
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
	return ecdsa.VerifyASN1(pub, SHA256(message), signature)
}

// PublicEncrypt wraps plaintext to a recipient's SEC1 public key: an
// ephemeral P-256 key agrees a shared secret with the recipient, the AES key
// is SHA-256(shared || idz), and the output is
// ephemeral_public_sec1 || aes_gcm_blob. idz may be nil.
func PublicEncrypt(plaintext, recipientPublicSEC1, idz []byte) ([]byte, error) {
	curve := ecdh.P256()
	recipient, err := curve.NewPublicKey(recipientPublicSEC1)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "invalid recipient public key", err)
	}
	ephemeral, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "generate ephemeral key", err)
	}
	shared, err := ephemeral.ECDH(recipient)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "ecdh", err)
	}
	encKey := SHA256(append(shared, idz...))
	defer Zeroize(shared)

	blob, err := EncryptAESGCM(encKey, plaintext)
	if err != nil {
		return nil, err
	}
	ephPub := ephemeral.PublicKey().Bytes()
	out := make([]byte, 0, len(ephPub)+len(blob))
	out = append(out, ephPub...)
	return append(out, blob...), nil
}

// PublicDecrypt reverses PublicEncrypt given the recipient's private key.
// Used by tests and by server-side tooling; the SDK itself only wraps.
func PublicDecrypt(data []byte, recipient *ecdsa.PrivateKey, idz []byte) ([]byte, error) {
	const sec1Len = 65
	if len(data) < sec1Len+GCMNonceSize {
		return nil, errors.New(errors.ErrCodeCrypto, component, "public-encrypted blob too short")
	}
	curve := ecdh.P256()
	ephPub, err := curve.NewPublicKey(data[:sec1Len])
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "invalid ephemeral public key", err)
	}
	priv, err := recipient.ECDH()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "convert private key", err)
	}
	shared, err := priv.ECDH(ephPub)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, component, "ecdh", err)
	}
	encKey := SHA256(append(shared, idz...))
	defer Zeroize(shared)
	return DecryptAESGCM(encKey, data[sec1Len:])
}
