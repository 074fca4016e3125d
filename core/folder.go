package core

import (
	"encoding/json"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
)

const folderComponent = "folder"

// Folder is a shared folder as returned inside a get_secret response: its
// key is wrapped with the app key using AES-GCM, and the records it lists
// wrap their record keys with the folder key.
type Folder struct {
	UID string
	Key []byte

	folderRecords []map[string]interface{}
}

// newFolderFromResponse decodes a shared-folder envelope with the app key.
func newFolderFromResponse(envelope map[string]interface{}, appKey []byte) (*Folder, error) {
	uid := stringField(envelope, "folderUid")
	if uid == "" {
		return nil, errors.New(errors.ErrCodeRecordData, folderComponent, "folder envelope has no folderUid")
	}
	f := &Folder{UID: uid}

	wrapped := stringField(envelope, "folderKey")
	if wrapped == "" {
		return nil, errors.Newf(errors.ErrCodeRecordData, folderComponent, "folder %s has no folderKey", uid)
	}
	wrappedBytes, err := crypto.URLSafeStrToBytes(wrapped)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, folderComponent, "decode folder key", err)
	}
	key, err := crypto.DecryptAESGCM(appKey, wrappedBytes)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, folderComponent, "unwrap folder key", err)
	}
	f.Key = key

	if records, ok := envelope["records"].([]interface{}); ok {
		for _, rec := range records {
			if recMap, ok := rec.(map[string]interface{}); ok {
				f.folderRecords = append(f.folderRecords, recMap)
			}
		}
	}
	return f, nil
}

// Records decodes the folder's records under the folder key. A record that
// fails to parse is logged and skipped.
func (f *Folder) Records() []*Record {
	var records []*Record
	for _, envelope := range f.folderRecords {
		record, err := newRecordFromResponse(envelope, f.Key, f.UID)
		if err != nil {
			coreLog.Errorf("error parsing record in folder %s: %v", f.UID, err)
			continue
		}
		record.FolderKeyBytes = f.Key
		records = append(records, record)
	}
	return records
}

// KeeperFolder is one entry of the full folder tree from get_folders. Root
// folder keys are wrapped with the app key using AES-GCM; sub-folder keys
// are wrapped with their parent folder key using AES-CBC. The modes are not
// interchangeable.
type KeeperFolder struct {
	FolderUID string
	ParentUID string
	Name      string
	FolderKey []byte
}

// folderKeyResolver decrypts folder keys across a get_folders response,
// memoizing results and refusing parent cycles.
type folderKeyResolver struct {
	envelopes map[string]map[string]interface{}
	keys      map[string][]byte
	appKey    []byte
}

func newFolderKeyResolver(folders []interface{}, appKey []byte) *folderKeyResolver {
	r := &folderKeyResolver{
		envelopes: make(map[string]map[string]interface{}),
		keys:      make(map[string][]byte),
		appKey:    appKey,
	}
	for _, f := range folders {
		if fm, ok := f.(map[string]interface{}); ok {
			if uid := stringField(fm, "folderUid"); uid != "" {
				r.envelopes[uid] = fm
			}
		}
	}
	return r
}

// resolve returns the folder key for uid, walking parent pointers as needed.
func (r *folderKeyResolver) resolve(uid string, visited map[string]bool) ([]byte, error) {
	if key, ok := r.keys[uid]; ok {
		return key, nil
	}
	if visited[uid] {
		return nil, errors.Newf(errors.ErrCodeRecordData, folderComponent, "folder parent cycle at %s", uid)
	}
	visited[uid] = true

	envelope, ok := r.envelopes[uid]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeRecordData, folderComponent, "folder %s not present in response", uid)
	}
	wrapped, err := crypto.URLSafeStrToBytes(stringField(envelope, "folderKey"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, folderComponent, "decode folder key", err)
	}

	var key []byte
	if parent := stringField(envelope, "parent"); parent == "" {
		key, err = crypto.DecryptAESGCM(r.appKey, wrapped)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCrypto, folderComponent, "unwrap shared folder key", err)
		}
	} else {
		parentKey, rerr := r.resolve(parent, visited)
		if rerr != nil {
			return nil, rerr
		}
		key, err = crypto.DecryptAESCBC(parentKey, wrapped)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCrypto, folderComponent, "unwrap sub-folder key", err)
		}
		if len(key) != crypto.AESKeySize {
			key, err = crypto.UnpadPKCS7(key)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeCrypto, folderComponent, "unpad sub-folder key", err)
			}
		}
	}
	r.keys[uid] = key
	return key, nil
}

// decodeKeeperFolders builds the folder list of a get_folders response.
// Folders that fail to decode are logged and skipped.
func decodeKeeperFolders(folders []interface{}, appKey []byte) []*KeeperFolder {
	resolver := newFolderKeyResolver(folders, appKey)
	var out []*KeeperFolder
	for _, f := range folders {
		envelope, ok := f.(map[string]interface{})
		if !ok {
			continue
		}
		uid := stringField(envelope, "folderUid")
		key, err := resolver.resolve(uid, map[string]bool{})
		if err != nil {
			coreLog.Errorf("error decoding folder %s: %v", uid, err)
			continue
		}
		folder := &KeeperFolder{
			FolderUID: uid,
			ParentUID: stringField(envelope, "parent"),
			FolderKey: key,
		}
		if data := stringField(envelope, "data"); data != "" {
			name, err := decryptFolderName(key, data)
			if err != nil {
				coreLog.Errorf("error decoding folder %s name: %v", uid, err)
			} else {
				folder.Name = name
			}
		}
		out = append(out, folder)
	}
	return out
}

// decryptFolderName decrypts the CBC folder data blob and extracts {name}.
func decryptFolderName(folderKey []byte, data string) (string, error) {
	dataBytes, err := crypto.URLSafeStrToBytes(data)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeDecode, folderComponent, "decode folder data", err)
	}
	plain, err := crypto.DecryptAESCBCUnpad(folderKey, dataBytes)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeCrypto, folderComponent, "decrypt folder data", err)
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(plain, &payload); err != nil {
		return "", errors.Wrap(errors.ErrCodeSerialization, folderComponent, "parse folder data", err)
	}
	return payload.Name, nil
}
