package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
)

func decodeTestRecord(t *testing.T, contextKey []byte, data map[string]interface{}) *Record {
	t.Helper()
	envelope := makeRecordEnvelope(t, contextKey, nil, testUID(0x11), 7, data)
	record, err := newRecordFromResponse(envelope, contextKey, "")
	require.NoError(t, err)
	return record
}

func TestRecordDecode(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	record := decodeTestRecord(t, appKey, loginRecordData("My Login", "alice", "hunter2"))

	assert.Equal(t, "My Login", record.Title)
	assert.Equal(t, "login", record.Type)
	assert.Equal(t, int64(7), record.Revision)
	assert.True(t, record.IsEditable)
	assert.Equal(t, "hunter2", record.Password)
	assert.Len(t, record.RecordKeyBytes, 32)
}

func TestRecordRoundTripEncryption(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	record := decodeTestRecord(t, appKey, loginRecordData("RT", "bob", "pw"))

	// Encrypting the record data under its key and decrypting again yields
	// identical plaintext.
	blob, err := crypto.EncryptAESGCM(record.RecordKeyBytes, []byte(record.RawJSON))
	require.NoError(t, err)
	plain, err := crypto.DecryptAESGCM(record.RecordKeyBytes, blob)
	require.NoError(t, err)
	assert.Equal(t, record.RawJSON, string(plain))
}

func TestRecordWithoutRecordKeyUsesContextKey(t *testing.T) {
	contextKey := crypto.GenerateRandomBytes(32)
	raw, _ := json.Marshal(loginRecordData("Shared", "carol", "pw"))
	encrypted, err := crypto.EncryptAESGCM(contextKey, raw)
	require.NoError(t, err)

	envelope := map[string]interface{}{
		"recordUid": testUID(0x12),
		"data":      crypto.BytesToURLSafeStr(encrypted),
	}
	record, err := newRecordFromResponse(envelope, contextKey, "")
	require.NoError(t, err)
	assert.Equal(t, contextKey, record.RecordKeyBytes)
	assert.Equal(t, "Shared", record.Title)
}

func TestRecordDecodeFailsOnWrongKey(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	envelope := makeRecordEnvelope(t, appKey, nil, testUID(0x13), 1, loginRecordData("X", "u", "p"))
	_, err := newRecordFromResponse(envelope, crypto.GenerateRandomBytes(32), "")
	require.Error(t, err)
}

func TestPasswordOnlyForLoginRecords(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	data := map[string]interface{}{
		"title": "DB",
		"type":  "databaseCredentials",
		"fields": []interface{}{
			map[string]interface{}{"type": "password", "value": []interface{}{"s3cret"}},
		},
	}
	record := decodeTestRecord(t, appKey, data)
	assert.Empty(t, record.Password)
}

func TestFieldAccessors(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	data := map[string]interface{}{
		"title": "Acc",
		"type":  "login",
		"fields": []interface{}{
			map[string]interface{}{"type": "login", "value": []interface{}{"alice"}},
			map[string]interface{}{"type": "url", "label": "Site", "value": []interface{}{"https://example.com"}},
		},
		"custom": []interface{}{
			map[string]interface{}{"type": "text", "label": "Env", "value": []interface{}{"prod"}},
		},
	}
	record := decodeTestRecord(t, appKey, data)

	value, err := record.GetStandardFieldValue("login")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"alice"}, value)

	// Lookup by label.
	value, err = record.GetStandardFieldValue("Site")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", value[0])

	// Type lookup is case-insensitive.
	_, err = record.GetStandardFieldValue("URL")
	require.NoError(t, err)

	value, err = record.GetCustomFieldValue("Env")
	require.NoError(t, err)
	assert.Equal(t, "prod", value[0])

	_, err = record.GetStandardFieldValue("phone")
	require.Error(t, err)
}

func TestSetPasswordUpdatesRawJSON(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	record := decodeTestRecord(t, appKey, loginRecordData("L", "u", "old"))

	require.NoError(t, record.SetPassword("new"))
	assert.Equal(t, "new", record.Password)

	var dict map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(record.RawJSON), &dict))
	fields := dict["fields"].([]interface{})
	for _, f := range fields {
		field := f.(map[string]interface{})
		if field["type"] == "password" {
			assert.Equal(t, "new", field["value"].([]interface{})[0])
		}
	}
}

func TestConsolidateFileRefs(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	data := map[string]interface{}{
		"title": "Legacy",
		"type":  "login",
		"fields": []interface{}{
			map[string]interface{}{"type": "login", "value": []interface{}{"u"}},
			map[string]interface{}{"type": "fileRef", "value": []interface{}{"a"}},
			map[string]interface{}{"type": "password", "value": []interface{}{"p"}},
			map[string]interface{}{"type": "fileRef", "value": []interface{}{"b"}},
		},
	}
	record := decodeTestRecord(t, appKey, data)

	require.NoError(t, record.addFileRef("c"))

	fields := record.fieldsSection("fields")
	require.Len(t, fields, 3, "the two legacy fileRef fields must merge into one")

	// The consolidated field sits where the first one was.
	field := fields[1].(map[string]interface{})
	require.Equal(t, "fileRef", field["type"])
	assert.Equal(t, []interface{}{"a", "b", "c"}, field["value"])

	// And the surviving order of the other fields is unchanged.
	assert.Equal(t, "login", fields[0].(map[string]interface{})["type"])
	assert.Equal(t, "password", fields[2].(map[string]interface{})["type"])
}

func TestAddFileRefCreatesFieldWhenAbsent(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	record := decodeTestRecord(t, appKey, loginRecordData("NF", "u", "p"))

	require.NoError(t, record.addFileRef("xyz"))
	value, err := record.GetStandardFieldValue("fileRef")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"xyz"}, value)
}

func TestZeroizeKeys(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	record := decodeTestRecord(t, appKey, loginRecordData("Z", "u", "p"))
	key := record.RecordKeyBytes
	record.ZeroizeKeys()
	for _, b := range key {
		require.Zero(t, b)
	}
}
