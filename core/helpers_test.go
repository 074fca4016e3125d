package core

import (
	"encoding/json"
	"testing"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
	"github.com/keeper-security/secrets-manager-go/infrastructure/storage"
	"github.com/keeper-security/secrets-manager-go/infrastructure/testutil"
)

// newBoundConfig builds an in-memory configuration in the bound state.
func newBoundConfig(t *testing.T, hostname string, appKey []byte, ownerPublicKeyB64 string) storage.KeyValueStorage {
	t.Helper()
	cfg, err := storage.NewMemoryKeyValueStorage()
	if err != nil {
		t.Fatal(err)
	}
	der, err := crypto.GeneratePrivateKeyDER()
	if err != nil {
		t.Fatal(err)
	}
	secret := crypto.GenerateRandomBytes(32)
	clientID := crypto.BytesToBase64(crypto.HMACSHA512(secret, []byte(clientIDHashTag)))

	mustSet := func(k storage.ConfigKey, v string) {
		if err := cfg.Set(k, v); err != nil {
			t.Fatal(err)
		}
	}
	mustSet(storage.KeyClientID, clientID)
	mustSet(storage.KeyPrivateKey, crypto.BytesToBase64(der))
	mustSet(storage.KeyAppKey, crypto.BytesToBase64(appKey))
	mustSet(storage.KeyHostname, hostname)
	mustSet(storage.KeyServerPublicKeyID, "10")
	if ownerPublicKeyB64 != "" {
		mustSet(storage.KeyOwnerPublicKey, ownerPublicKeyB64)
	}
	return cfg
}

// newTestClient wires a SecretsManager to the mock server, trusting its TLS
// certificate and its public key under ids 10 and 11.
func newTestClient(t *testing.T, srv *testutil.MockKeeperServer, cfg storage.KeyValueStorage, opts ClientOptions) *SecretsManager {
	t.Helper()
	opts.Config = cfg
	if opts.HTTPClient == nil {
		opts.HTTPClient = srv.Client()
	}
	sm, err := NewSecretsManager(&opts)
	if err != nil {
		t.Fatalf("NewSecretsManager() error = %v", err)
	}
	sm.serverKeys = map[string]string{
		"10": srv.PublicKeyB64(),
		"11": srv.PublicKeyB64(),
	}
	return sm
}

// makeRecordEnvelope builds an encrypted record envelope. When recordKey is
// nil a fresh one is generated and wrapped under contextKey.
func makeRecordEnvelope(t *testing.T, contextKey, recordKey []byte, uid string, revision int64, data map[string]interface{}) map[string]interface{} {
	t.Helper()
	if recordKey == nil {
		recordKey = crypto.GenerateEncryptionKeyBytes()
	}
	wrapped, err := crypto.EncryptAESGCM(contextKey, recordKey)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	encryptedData, err := crypto.EncryptAESGCM(recordKey, raw)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]interface{}{
		"recordUid":  uid,
		"recordKey":  crypto.BytesToURLSafeStr(wrapped),
		"data":       crypto.BytesToURLSafeStr(encryptedData),
		"revision":   float64(revision),
		"isEditable": true,
	}
}

// loginRecordData is a minimal login record body.
func loginRecordData(title, login, password string) map[string]interface{} {
	return map[string]interface{}{
		"title": title,
		"type":  "login",
		"fields": []interface{}{
			map[string]interface{}{"type": "login", "value": []interface{}{login}},
			map[string]interface{}{"type": "password", "value": []interface{}{password}},
		},
		"custom": []interface{}{},
	}
}

func testUID(seed byte) string {
	raw := make([]byte, 16)
	for i := range raw {
		raw[i] = seed
	}
	raw[0] &= 0x7F
	return crypto.BytesToURLSafeStr(raw)
}
