package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
)

// RFC 6238 appendix B vectors. The SHA-1 secret is the base32 encoding of
// "12345678901234567890".
const rfcSecretSHA1 = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestTotpRFC6238Vectors(t *testing.T) {
	cases := []struct {
		at   int64
		want string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
	}
	for _, tc := range cases {
		code, err := totpCodeAt("otpauth://totp/Test?secret="+rfcSecretSHA1+"&digits=8&period=30", tc.at)
		require.NoError(t, err)
		assert.Equal(t, tc.want, code.Code, "at %d", tc.at)
	}
}

func TestTotpDefaults(t *testing.T) {
	code, err := totpCodeAt("otpauth://totp/Test?secret="+rfcSecretSHA1, 59)
	require.NoError(t, err)
	assert.Len(t, code.Code, 6)
	assert.Equal(t, int64(30), code.Period)
	assert.Equal(t, int64(1), code.TimeLeft, "one second left in the period at t=59")
}

func TestTotpRejectsBadInput(t *testing.T) {
	cases := []string{
		"https://example.com?secret=" + rfcSecretSHA1, // wrong scheme
		"otpauth://totp/Test",                         // no secret
		"otpauth://totp/Test?secret=%%%%%%",
		"otpauth://totp/Test?secret=" + rfcSecretSHA1 + "&digits=9",
		"otpauth://totp/Test?secret=" + rfcSecretSHA1 + "&algorithm=MD5",
	}
	for _, uri := range cases {
		if _, err := GetTotpCode(uri); err == nil {
			t.Errorf("GetTotpCode(%q) should fail", uri)
		}
	}
}

func TestGetTotpURLFromRecord(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	data := map[string]interface{}{
		"title": "MFA",
		"type":  "login",
		"fields": []interface{}{
			map[string]interface{}{
				"type":  "oneTimeCode",
				"value": []interface{}{"otpauth://totp/Test?secret=" + rfcSecretSHA1},
			},
		},
	}
	record := decodeTestRecord(t, appKey, data)
	url, err := record.GetTotpURL()
	require.NoError(t, err)
	assert.Contains(t, url, "otpauth://totp")

	plain := decodeTestRecord(t, appKey, loginRecordData("NoOTP", "u", "p"))
	_, err = plain.GetTotpURL()
	require.Error(t, err)
}
