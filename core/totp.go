package core

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
)

const totpComponent = "totp"

// TotpCode is one generated TOTP value with its remaining validity.
type TotpCode struct {
	Code     string
	TimeLeft int64
	Period   int64
}

// GetTotpCode generates the current code for an otpauth://totp URI as found
// in oneTimeCode and otp fields.
func GetTotpCode(otpURL string) (*TotpCode, error) {
	return totpCodeAt(otpURL, time.Now().Unix())
}

func totpCodeAt(otpURL string, unixNow int64) (*TotpCode, error) {
	parsed, err := url.Parse(otpURL)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTOTP, totpComponent, "invalid otp url", err)
	}
	if parsed.Scheme != "otpauth" {
		return nil, errors.New(errors.ErrCodeTOTP, totpComponent, "not an otpauth URI")
	}

	query := parsed.Query()
	secret := strings.ToUpper(strings.TrimSpace(query.Get("secret")))
	if secret == "" {
		return nil, errors.New(errors.ErrCodeTOTP, totpComponent, "TOTP secret not found in URI")
	}

	algorithm := strings.ToUpper(query.Get("algorithm"))
	if algorithm == "" {
		algorithm = "SHA1"
	}
	digits := 6
	if d := query.Get("digits"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 6 || n > 8 {
			return nil, errors.New(errors.ErrCodeTOTP, totpComponent, "TOTP digits may only be 6, 7, or 8")
		}
		digits = n
	}
	period := int64(30)
	if p := query.Get("period"); p != "" {
		if n, err := strconv.ParseInt(p, 10, 64); err == nil && n > 0 {
			period = n
		}
	}
	counter := int64(0)
	if cv := query.Get("counter"); cv != "" {
		if n, err := strconv.ParseInt(cv, 10, 64); err == nil && n > 0 {
			counter = n
		}
	}

	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(secret, "="))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, totpComponent, "invalid TOTP secret", err)
	}

	var newHash func() hash.Hash
	switch algorithm {
	case "SHA1":
		newHash = sha1.New
	case "SHA256":
		newHash = sha256.New
	case "SHA512":
		newHash = sha512.New
	default:
		return nil, errors.Newf(errors.ErrCodeTOTP, totpComponent, "invalid algorithm %q", algorithm)
	}

	base := unixNow
	if counter > 0 {
		base = counter
	}
	tm := base / period

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(tm))
	mac := hmac.New(newHash, key)
	mac.Write(msg[:])
	digest := mac.Sum(nil)

	offset := digest[len(digest)-1] & 0x0F
	truncated := binary.BigEndian.Uint32(digest[offset:offset+4]) & 0x7FFFFFFF
	modulo := uint32(1)
	for i := 0; i < digits; i++ {
		modulo *= 10
	}
	code := fmt.Sprintf("%0*d", digits, truncated%modulo)

	elapsed := base % period
	return &TotpCode{
		Code:     code,
		TimeLeft: period - elapsed,
		Period:   period,
	}, nil
}

// GetTotpURL extracts the otpauth URL from a record's oneTimeCode or otp
// field.
func (r *Record) GetTotpURL() (string, error) {
	for _, fieldType := range []string{"oneTimeCode", "otp"} {
		v := gjson.Get(r.RawJSON, `fields.#(type==`+strconv.Quote(fieldType)+`).value.0`)
		if v.Type == gjson.String && v.Str != "" {
			return v.Str, nil
		}
	}
	return "", errors.Newf(errors.ErrCodeRecordData, totpComponent, "record %s has no oneTimeCode or otp field", r.UID)
}
