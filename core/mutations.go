package core

import (
	"encoding/json"
	"strings"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
	"github.com/keeper-security/secrets-manager-go/infrastructure/storage"
)

const mutationComponent = "mutation"

func (c *SecretsManager) clientID() (string, error) {
	clientID, err := c.config.Get(storage.KeyClientID)
	if err != nil {
		return "", err
	}
	if clientID == "" {
		return "", errors.New(errors.ErrCodeConfig, mutationComponent, "client id not found in configuration")
	}
	return clientID, nil
}

func (c *SecretsManager) ownerPublicKeyBytes() ([]byte, error) {
	ownerKey, err := c.config.Get(storage.KeyOwnerPublicKey)
	if err != nil {
		return nil, err
	}
	if ownerKey == "" {
		return nil, errors.New(errors.ErrCodeConfig, mutationComponent,
			"application owner public key is missing; the application was created with an outdated client")
	}
	return crypto.Base64ToBytes(ownerKey)
}

// Save updates a record in place: the mutated record data is re-encrypted
// under the record's key and sent with its revision for optimistic
// concurrency. transactionType selects immediate apply (none/general) or a
// staged rotation.
func (c *SecretsManager) Save(record *Record, transactionType UpdateTransactionType) error {
	return c.saveWithLinks(record, transactionType, nil)
}

// SaveRemovingLinks is Save plus severing of the named file or record links.
func (c *SecretsManager) SaveRemovingLinks(record *Record, transactionType UpdateTransactionType, links2Remove []string) error {
	return c.saveWithLinks(record, transactionType, links2Remove)
}

func (c *SecretsManager) saveWithLinks(record *Record, transactionType UpdateTransactionType, links2Remove []string) error {
	if record == nil {
		return errors.New(errors.ErrCodeRecordData, mutationComponent, "record is nil")
	}
	c.log.Infof("updating record %s", record.UID)

	payload, err := c.prepareUpdatePayload(record, transactionType, links2Remove)
	if err != nil {
		return err
	}
	_, err = c.PostQuery("update_secret", payload)
	return err
}

func (c *SecretsManager) prepareUpdatePayload(record *Record, transactionType UpdateTransactionType, links2Remove []string) (*updatePayload, error) {
	clientID, err := c.clientID()
	if err != nil {
		return nil, err
	}
	encrypted, err := crypto.EncryptAESGCM(record.RecordKeyBytes, []byte(record.RawJSON))
	if err != nil {
		return nil, err
	}
	payload := &updatePayload{
		ClientVersion: ClientVersion,
		ClientID:      clientID,
		RecordUID:     record.UID,
		Revision:      record.Revision,
		Data:          crypto.BytesToURLSafeStr(encrypted),
		Links2Remove:  links2Remove,
	}
	if transactionType != TransactionTypeNone {
		payload.TransactionType = transactionType
	}
	return payload, nil
}

// CompleteTransaction finishes a rotation update started with
// TransactionTypeRotation: commit the staged data, or discard it when
// rollback is true.
func (c *SecretsManager) CompleteTransaction(recordUID string, rollback bool) error {
	clientID, err := c.clientID()
	if err != nil {
		return err
	}
	path := "finalize_secret_update"
	if rollback {
		path = "rollback_secret_update"
	}
	payload := &completeTransactionPayload{
		ClientVersion: ClientVersion,
		ClientID:      clientID,
		RecordUID:     recordUID,
	}
	_, err = c.PostQuery(path, payload)
	return err
}

// CreateSecret creates a record inside the shared folder identified by
// folderUID and returns the new record UID.
func (c *SecretsManager) CreateSecret(folderUID string, record *RecordCreate) (string, error) {
	return c.CreateSecretWithOptions(CreateOptions{FolderUID: folderUID}, record)
}

// CreateSecretWithOptions creates a record, optionally in a sub-folder of
// the shared folder.
func (c *SecretsManager) CreateSecretWithOptions(options CreateOptions, record *RecordCreate) (string, error) {
	if record == nil {
		return "", errors.New(errors.ErrCodeRecordData, mutationComponent, "record template is nil")
	}
	recordJSON, err := record.ToJSON()
	if err != nil {
		return "", err
	}

	// The folder key comes from the latest fetch; creating into an unknown
	// folder is an error.
	response, err := c.GetSecretsFullResponse(nil)
	if err != nil {
		return "", err
	}
	folderKey := folderKeyFromResponse(response, options.FolderUID)
	if folderKey == nil {
		return "", errors.Newf(errors.ErrCodeRecordData, mutationComponent,
			"folder %s was not retrieved; it must be shared to the application and hold at least one record", options.FolderUID)
	}

	payload, err := c.prepareCreatePayload(options, recordJSON, folderKey)
	if err != nil {
		return "", err
	}
	if _, err := c.PostQuery("create_secret", payload); err != nil {
		return "", err
	}
	return payload.RecordUID, nil
}

func folderKeyFromResponse(response *SecretsManagerResponse, folderUID string) []byte {
	for _, folder := range response.Folders {
		if folder.UID == folderUID {
			return folder.Key
		}
	}
	return nil
}

func (c *SecretsManager) prepareCreatePayload(options CreateOptions, recordJSON string, folderKey []byte) (*createPayload, error) {
	clientID, err := c.clientID()
	if err != nil {
		return nil, err
	}
	ownerPublicKey, err := c.ownerPublicKeyBytes()
	if err != nil {
		return nil, err
	}
	if len(folderKey) == 0 {
		return nil, errors.New(errors.ErrCodeRecordData, mutationComponent, "folder key is missing")
	}

	recordKey := crypto.GenerateEncryptionKeyBytes()
	recordUID := crypto.GenerateUIDBytes()

	encryptedData, err := crypto.EncryptAESGCM(recordKey, []byte(recordJSON))
	if err != nil {
		return nil, err
	}
	wrappedToOwner, err := crypto.PublicEncrypt(recordKey, ownerPublicKey, nil)
	if err != nil {
		return nil, err
	}
	wrappedToFolder, err := crypto.EncryptAESGCM(folderKey, recordKey)
	if err != nil {
		return nil, err
	}

	return &createPayload{
		ClientVersion: ClientVersion,
		ClientID:      clientID,
		RecordUID:     crypto.BytesToURLSafeStr(recordUID),
		RecordKey:     crypto.BytesToBase64(wrappedToOwner),
		FolderUID:     options.FolderUID,
		FolderKey:     crypto.BytesToBase64(wrappedToFolder),
		Data:          crypto.BytesToBase64(encryptedData),
		SubFolderUID:  options.SubFolderUID,
	}, nil
}

// DeleteSecrets deletes records by UID and returns the comma-joined list of
// UIDs the server acknowledged. Failures are logged per record.
func (c *SecretsManager) DeleteSecrets(uids []string) (string, error) {
	clientID, err := c.clientID()
	if err != nil {
		return "", err
	}
	payload := &deletePayload{
		ClientVersion: ClientVersion,
		ClientID:      clientID,
		RecordUIDs:    uids,
	}
	responseBytes, err := c.PostQuery("delete_secret", payload)
	if err != nil {
		return "", err
	}
	var response struct {
		Records []struct {
			RecordUID    string `json:"recordUid"`
			ResponseCode string `json:"responseCode"`
		} `json:"records"`
	}
	if err := json.Unmarshal(responseBytes, &response); err != nil {
		return "", errors.Wrap(errors.ErrCodeSerialization, mutationComponent, "parse delete_secret response", err)
	}
	var deleted []string
	for _, rec := range response.Records {
		if rec.ResponseCode == "ok" {
			deleted = append(deleted, rec.RecordUID)
		} else {
			c.log.Errorf("failed to delete record %s: %s", rec.RecordUID, rec.ResponseCode)
		}
	}
	return strings.Join(deleted, ", "), nil
}

// CreateFolder creates a sub-folder inside the shared folder named by
// options and returns the new folder UID. Folder payloads use AES-CBC; the
// server does not accept GCM for them.
func (c *SecretsManager) CreateFolder(options CreateOptions, name string, folders []*KeeperFolder) (string, error) {
	if len(folders) == 0 {
		var err error
		folders, err = c.GetFolders()
		if err != nil {
			return "", err
		}
	}
	var sharedFolderKey []byte
	for _, folder := range folders {
		if folder.FolderUID == options.FolderUID {
			sharedFolderKey = folder.FolderKey
			break
		}
	}
	if sharedFolderKey == nil {
		return "", errors.Newf(errors.ErrCodeRecordData, mutationComponent,
			"unable to create folder: folder key for %s not found", options.FolderUID)
	}

	clientID, err := c.clientID()
	if err != nil {
		return "", err
	}

	folderUID := crypto.GenerateUID()
	folderKey := crypto.GenerateEncryptionKeyBytes()

	wrappedKey, err := crypto.EncryptAESCBC(sharedFolderKey, folderKey)
	if err != nil {
		return "", err
	}
	data, err := encryptFolderName(folderKey, name)
	if err != nil {
		return "", err
	}

	payload := &createFolderPayload{
		ClientVersion:   ClientVersion,
		ClientID:        clientID,
		FolderUID:       folderUID,
		SharedFolderUID: options.FolderUID,
		SharedFolderKey: crypto.BytesToURLSafeStr(wrappedKey),
		Data:            data,
		ParentUID:       options.SubFolderUID,
	}
	if _, err := c.PostQuery("create_folder", payload); err != nil {
		return "", err
	}
	return folderUID, nil
}

// UpdateFolder renames a folder.
func (c *SecretsManager) UpdateFolder(folderUID, name string, folders []*KeeperFolder) error {
	if len(folders) == 0 {
		var err error
		folders, err = c.GetFolders()
		if err != nil {
			return err
		}
	}
	var folderKey []byte
	for _, folder := range folders {
		if folder.FolderUID == folderUID {
			folderKey = folder.FolderKey
			break
		}
	}
	if folderKey == nil {
		return errors.Newf(errors.ErrCodeRecordData, mutationComponent,
			"unable to update folder: folder key for %s not found", folderUID)
	}

	clientID, err := c.clientID()
	if err != nil {
		return err
	}
	data, err := encryptFolderName(folderKey, name)
	if err != nil {
		return err
	}
	payload := &updateFolderPayload{
		ClientVersion: ClientVersion,
		ClientID:      clientID,
		FolderUID:     folderUID,
		Data:          data,
	}
	_, err = c.PostQuery("update_folder", payload)
	return err
}

// DeleteFolder deletes folders by UID. forceDeletion removes non-empty
// folders. Returns the per-folder server statuses.
func (c *SecretsManager) DeleteFolder(folderUIDs []string, forceDeletion bool) ([]map[string]interface{}, error) {
	clientID, err := c.clientID()
	if err != nil {
		return nil, err
	}
	payload := &deleteFolderPayload{
		ClientVersion: ClientVersion,
		ClientID:      clientID,
		FolderUIDs:    folderUIDs,
		ForceDeletion: forceDeletion,
	}
	responseBytes, err := c.PostQuery("delete_folder", payload)
	if err != nil {
		return nil, err
	}
	var response struct {
		Folders []map[string]interface{} `json:"folders"`
	}
	if err := json.Unmarshal(responseBytes, &response); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, mutationComponent, "parse delete_folder response", err)
	}
	return response.Folders, nil
}

// encryptFolderName wraps {"name": ...} with AES-CBC under the folder key.
func encryptFolderName(folderKey []byte, name string) (string, error) {
	raw, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeSerialization, mutationComponent, "marshal folder name", err)
	}
	encrypted, err := crypto.EncryptAESCBC(folderKey, raw)
	if err != nil {
		return "", err
	}
	return crypto.BytesToURLSafeStr(encrypted), nil
}
