package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
)

// makeFolderEnvelope wraps a folder key for the get_folders response. Roots
// wrap under the app key with GCM; sub-folders wrap under the parent key
// with CBC.
func makeFolderEnvelope(t *testing.T, uid, parent string, folderKey, wrapKey []byte, name string) map[string]interface{} {
	t.Helper()
	var wrapped []byte
	var err error
	if parent == "" {
		wrapped, err = crypto.EncryptAESGCM(wrapKey, folderKey)
	} else {
		wrapped, err = crypto.EncryptAESCBC(wrapKey, folderKey)
	}
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]string{"name": name})
	require.NoError(t, err)
	data, err := crypto.EncryptAESCBC(folderKey, raw)
	require.NoError(t, err)

	envelope := map[string]interface{}{
		"folderUid": uid,
		"folderKey": crypto.BytesToURLSafeStr(wrapped),
		"data":      crypto.BytesToURLSafeStr(data),
	}
	if parent != "" {
		envelope["parent"] = parent
	}
	return envelope
}

func TestFolderTreeDecode(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	keyF1 := crypto.GenerateRandomBytes(32)
	keyF2 := crypto.GenerateRandomBytes(32)
	keyF3 := crypto.GenerateRandomBytes(32)

	// Root wrapped with the app key (GCM); child and grandchild wrapped
	// with their parent's key (CBC). The mode asymmetry is load-bearing.
	folders := []interface{}{
		makeFolderEnvelope(t, "F1uid", "", keyF1, appKey, "Root"),
		makeFolderEnvelope(t, "F2uid", "F1uid", keyF2, keyF1, "Child"),
		makeFolderEnvelope(t, "F3uid", "F2uid", keyF3, keyF2, "Grandchild"),
	}

	decoded := decodeKeeperFolders(folders, appKey)
	require.Len(t, decoded, 3)

	byUID := map[string]*KeeperFolder{}
	for _, f := range decoded {
		byUID[f.FolderUID] = f
	}
	assert.Equal(t, "Root", byUID["F1uid"].Name)
	assert.Equal(t, "Child", byUID["F2uid"].Name)
	assert.Equal(t, "Grandchild", byUID["F3uid"].Name)
	assert.Equal(t, keyF1, byUID["F1uid"].FolderKey)
	assert.Equal(t, keyF2, byUID["F2uid"].FolderKey)
	assert.Equal(t, keyF3, byUID["F3uid"].FolderKey)
	assert.Equal(t, "F1uid", byUID["F2uid"].ParentUID)
}

func TestFolderTreeOutOfOrder(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	keyF1 := crypto.GenerateRandomBytes(32)
	keyF2 := crypto.GenerateRandomBytes(32)

	// The child appears before its parent; resolution must still work.
	folders := []interface{}{
		makeFolderEnvelope(t, "F2uid", "F1uid", keyF2, keyF1, "Child"),
		makeFolderEnvelope(t, "F1uid", "", keyF1, appKey, "Root"),
	}
	decoded := decodeKeeperFolders(folders, appKey)
	require.Len(t, decoded, 2)
}

func TestFolderParentCycleIsSkipped(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	keyA := crypto.GenerateRandomBytes(32)
	keyB := crypto.GenerateRandomBytes(32)

	folders := []interface{}{
		makeFolderEnvelope(t, "A", "B", keyA, keyB, "A"),
		makeFolderEnvelope(t, "B", "A", keyB, keyA, "B"),
	}
	decoded := decodeKeeperFolders(folders, appKey)
	assert.Empty(t, decoded, "cyclic folders cannot be decoded and must be skipped, not looped")
}

func TestSharedFolderRecordsDecryptUnderFolderKey(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	folderKey := crypto.GenerateRandomBytes(32)

	wrappedFolderKey, err := crypto.EncryptAESGCM(appKey, folderKey)
	require.NoError(t, err)

	recordEnvelope := makeRecordEnvelope(t, folderKey, nil, testUID(0x51), 2, loginRecordData("In Folder", "u", "p"))
	envelope := map[string]interface{}{
		"folderUid": "SFuid",
		"folderKey": crypto.BytesToURLSafeStr(wrappedFolderKey),
		"records":   []interface{}{recordEnvelope},
	}

	folder, err := newFolderFromResponse(envelope, appKey)
	require.NoError(t, err)
	assert.Equal(t, folderKey, folder.Key)

	records := folder.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "In Folder", records[0].Title)
	assert.Equal(t, "SFuid", records[0].FolderUID)
	assert.Equal(t, folderKey, records[0].FolderKeyBytes)
}

func TestOneBadRecordDoesNotFailTheFolder(t *testing.T) {
	appKey := crypto.GenerateRandomBytes(32)
	folderKey := crypto.GenerateRandomBytes(32)
	wrappedFolderKey, _ := crypto.EncryptAESGCM(appKey, folderKey)

	good := makeRecordEnvelope(t, folderKey, nil, testUID(0x52), 2, loginRecordData("Good", "u", "p"))
	bad := map[string]interface{}{
		"recordUid": testUID(0x53),
		"data":      "!!!not base64!!!",
	}
	envelope := map[string]interface{}{
		"folderUid": "SFuid",
		"folderKey": crypto.BytesToURLSafeStr(wrappedFolderKey),
		"records":   []interface{}{bad, good},
	}
	folder, err := newFolderFromResponse(envelope, appKey)
	require.NoError(t, err)

	records := folder.Records()
	require.Len(t, records, 1, "the bad record is dropped, the good one survives")
	assert.Equal(t, "Good", records[0].Title)
}
