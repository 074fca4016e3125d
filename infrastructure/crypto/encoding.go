package crypto

import (
	"encoding/base64"
	"strings"

	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
)

// BytesToBase64 encodes bytes as standard padded base64.
func BytesToBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Base64ToBytes decodes standard base64, tolerating URL-safe input and
// missing padding. Server fields are inconsistent about both.
func Base64ToBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	normalized := strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if b, err := base64.StdEncoding.DecodeString(normalized); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(normalized, "="))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, component, "base64 decode", err)
	}
	return b, nil
}

// BytesToURLSafeStr encodes bytes as unpadded URL-safe base64, the form used
// for UIDs and most wire fields.
func BytesToURLSafeStr(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// URLSafeStrToBytes decodes URL-safe base64 in either padding mode, and
// tolerates standard-alphabet input. Tokens are pasted from many sources;
// the decoder is deliberately lenient.
func URLSafeStrToBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	normalized := strings.NewReplacer("+", "-", "/", "_").Replace(s)
	if b, err := base64.URLEncoding.DecodeString(normalized); err == nil {
		return b, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(normalized, "="))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, component, "url-safe base64 decode", err)
	}
	return b, nil
}
