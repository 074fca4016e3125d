package core

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeper-security/secrets-manager-go/infrastructure/cache"
	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
	"github.com/keeper-security/secrets-manager-go/infrastructure/storage"
	"github.com/keeper-security/secrets-manager-go/infrastructure/testutil"
)

func TestFreshBindEndToEnd(t *testing.T) {
	srv := testutil.NewMockKeeperServer(t)

	secret, secretBytes := freshToken(t)
	appKey := crypto.GenerateRandomBytes(32)
	ownerPub := deriveOwnerPublicKeyB64(t)

	recordUID := testUID(0x21)
	encryptedAppKey, err := crypto.EncryptAESGCM(secretBytes, appKey)
	require.NoError(t, err)

	srv.Handle("get_secret", func(req *testutil.RequestRecord) (int, interface{}) {
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(req.Payload, &payload))
		require.Equal(t, ClientVersion, payload["clientVersion"])

		records := []interface{}{
			makeRecordEnvelope(t, appKey, nil, recordUID, 1, loginRecordData("My Login", "user", "pw")),
		}
		if srv.RequestCount("get_secret") == 1 {
			// Binding round: the client is unbound and must have sent its
			// public key.
			require.NotEmpty(t, payload["publicKey"])
			return http.StatusOK, map[string]interface{}{
				"encryptedAppKey":   crypto.BytesToURLSafeStr(encryptedAppKey),
				"appOwnerPublicKey": ownerPub,
				"records":           records,
			}
		}
		return http.StatusOK, map[string]interface{}{"records": records}
	})

	cfg, _ := storage.NewMemoryKeyValueStorage()
	sm := newTestClient(t, srv, cfg, ClientOptions{
		Token:    secret,
		Hostname: srv.Hostname(),
	})

	records, err := sm.GetSecrets(nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "My Login", records[0].Title)
	assert.Equal(t, "pw", records[0].Password)

	// Binding re-fetches under the fresh app key: exactly two POSTs.
	assert.Equal(t, 2, srv.RequestCount("get_secret"))

	storedAppKey, _ := cfg.Get(storage.KeyAppKey)
	wantAppKey := crypto.BytesToBase64(appKey)
	assert.Equal(t, wantAppKey, storedAppKey)

	clientKey, _ := cfg.Get(storage.KeyClientKey)
	assert.Empty(t, clientKey, "one-time token must be deleted after binding")

	ownerKey, _ := cfg.Get(storage.KeyOwnerPublicKey)
	assert.NotEmpty(t, ownerKey)
}

func TestServerKeyRotationRetriesOnce(t *testing.T) {
	srv := testutil.NewMockKeeperServer(t)
	appKey := crypto.GenerateRandomBytes(32)

	srv.Handle("get_secret", func(req *testutil.RequestRecord) (int, interface{}) {
		if req.PublicKeyID == "10" {
			return http.StatusForbidden, map[string]interface{}{
				"result_code": "key",
				"key_id":      "11",
			}
		}
		return http.StatusOK, map[string]interface{}{"records": []interface{}{}}
	})

	cfg := newBoundConfig(t, "placeholder", appKey, "")
	require.NoError(t, cfg.Set(storage.KeyHostname, srv.Hostname()))
	sm := newTestClient(t, srv, cfg, ClientOptions{})

	_, err := sm.GetSecrets(nil)
	require.NoError(t, err)

	assert.Equal(t, 2, srv.RequestCount("get_secret"), "exactly two POSTs: original and retry")
	keyID, _ := cfg.Get(storage.KeyServerPublicKeyID)
	assert.Equal(t, "11", keyID, "rotated key id must be persisted")
}

func TestServerKeyRotationOnlyRetriesOnce(t *testing.T) {
	srv := testutil.NewMockKeeperServer(t)
	appKey := crypto.GenerateRandomBytes(32)

	srv.Handle("get_secret", func(req *testutil.RequestRecord) (int, interface{}) {
		keyID := "10"
		if req.PublicKeyID == "10" {
			keyID = "11"
		}
		return http.StatusForbidden, map[string]interface{}{
			"result_code": "key",
			"key_id":      keyID,
		}
	})

	cfg := newBoundConfig(t, "placeholder", appKey, "")
	require.NoError(t, cfg.Set(storage.KeyHostname, srv.Hostname()))
	sm := newTestClient(t, srv, cfg, ClientOptions{})

	_, err := sm.GetSecrets(nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeServerKeyRotation))
	assert.Equal(t, 2, srv.RequestCount("get_secret"))
}

func TestNumericKeyIDIsAccepted(t *testing.T) {
	srv := testutil.NewMockKeeperServer(t)
	appKey := crypto.GenerateRandomBytes(32)

	srv.Handle("get_secret", func(req *testutil.RequestRecord) (int, interface{}) {
		if req.PublicKeyID == "10" {
			return http.StatusForbidden, map[string]interface{}{
				"error":  "key",
				"key_id": 11,
			}
		}
		return http.StatusOK, map[string]interface{}{"records": []interface{}{}}
	})

	cfg := newBoundConfig(t, "placeholder", appKey, "")
	require.NoError(t, cfg.Set(storage.KeyHostname, srv.Hostname()))
	sm := newTestClient(t, srv, cfg, ClientOptions{})

	_, err := sm.GetSecrets(nil)
	require.NoError(t, err)
}

func TestInvalidClientVersionError(t *testing.T) {
	srv := testutil.NewMockKeeperServer(t)
	appKey := crypto.GenerateRandomBytes(32)

	srv.Handle("get_secret", func(req *testutil.RequestRecord) (int, interface{}) {
		return http.StatusBadRequest, map[string]interface{}{
			"result_code":     "invalid_client_version",
			"additional_info": "update the SDK",
		}
	})

	cfg := newBoundConfig(t, "placeholder", appKey, "")
	require.NoError(t, cfg.Set(storage.KeyHostname, srv.Hostname()))
	sm := newTestClient(t, srv, cfg, ClientOptions{})

	_, err := sm.GetSecrets(nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidClientVersion))
}

func TestOfflineCacheFallback(t *testing.T) {
	srv := testutil.NewMockKeeperServer(t)
	appKey := crypto.GenerateRandomBytes(32)
	recordUID := testUID(0x33)

	srv.Handle("get_secret", func(req *testutil.RequestRecord) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{
			"records": []interface{}{
				makeRecordEnvelope(t, appKey, nil, recordUID, 3, loginRecordData("Cached", "user", "pw")),
			},
		}
	})

	memCache := cache.NewMemoryCache()
	cfg := newBoundConfig(t, "placeholder", appKey, "")
	require.NoError(t, cfg.Set(storage.KeyHostname, srv.Hostname()))
	sm := newTestClient(t, srv, cfg, ClientOptions{Cache: memCache})

	records, err := sm.GetSecrets(nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Point the client at a dead hostname; the cached response must answer.
	require.NoError(t, cfg.Set(storage.KeyHostname, "127.0.0.1:1"))
	records, err = sm.GetSecrets(nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Cached", records[0].Title)
}

func TestNetworkErrorWithoutCacheSurfaces(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	cfg := newBoundConfig(t, "127.0.0.1:1", appKey, "")
	sm, err := NewSecretsManager(&ClientOptions{Config: cfg})
	require.NoError(t, err)
	sm.serverKeys = map[string]string{"10": deriveOwnerPublicKeyB64(t)}

	_, err = sm.GetSecrets(nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeHTTP))
}

func TestEmptyResponseBodyIsValid(t *testing.T) {
	srv := testutil.NewMockKeeperServer(t)
	appKey := crypto.GenerateRandomBytes(32)

	srv.Handle("update_secret", func(req *testutil.RequestRecord) (int, interface{}) {
		return http.StatusOK, nil
	})

	cfg := newBoundConfig(t, "placeholder", appKey, "")
	require.NoError(t, cfg.Set(storage.KeyHostname, srv.Hostname()))
	sm := newTestClient(t, srv, cfg, ClientOptions{})

	record := &Record{
		UID:            testUID(0x44),
		RecordKeyBytes: crypto.GenerateEncryptionKeyBytes(),
		RawJSON:        `{"title":"x","type":"login","fields":[]}`,
	}
	require.NoError(t, sm.Save(record, TransactionTypeNone))
}

func deriveOwnerPublicKeyB64(t *testing.T) string {
	t.Helper()
	der, err := crypto.GeneratePrivateKeyDER()
	require.NoError(t, err)
	pub, err := crypto.ExtractPublicKeyBytes(der)
	require.NoError(t, err)
	return crypto.BytesToURLSafeStr(pub)
}
