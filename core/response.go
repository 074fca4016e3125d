package core

import (
	"encoding/json"
	"time"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
	"github.com/keeper-security/secrets-manager-go/infrastructure/storage"
)

const responseComponent = "response"

// AppData describes the application the client is bound to.
type AppData struct {
	Title string `json:"title"`
	Type  string `json:"type"`
}

// SecretsManagerResponse is the decoded result of one get_secret call.
type SecretsManagerResponse struct {
	Records   []*Record
	Folders   []*Folder
	AppData   AppData
	ExpiresOn int64
	Warnings  []string

	justBound bool
}

// ExpiresOnTime converts the expiry milliseconds to a time.Time; zero when
// the application does not expire.
func (r *SecretsManagerResponse) ExpiresOnTime() time.Time {
	if r.ExpiresOn == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.ExpiresOn)
}

// fetchAndDecryptSecrets performs one get_secret exchange and materializes
// the record and folder graph.
func (c *SecretsManager) fetchAndDecryptSecrets(options QueryOptions) (*SecretsManagerResponse, error) {
	payload, err := c.prepareGetPayload(options)
	if err != nil {
		return nil, err
	}
	plaintext, err := c.PostQuery("get_secret", payload)
	if err != nil {
		return nil, err
	}

	var dict map[string]interface{}
	if err := json.Unmarshal(plaintext, &dict); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, responseComponent, "parse get_secret response", err)
	}

	response := &SecretsManagerResponse{}

	var secretKey []byte
	if encryptedAppKey := stringField(dict, "encryptedAppKey"); encryptedAppKey != "" {
		response.justBound = true
		secretKey, err = c.bindAppKey(dict)
		if err != nil {
			return nil, err
		}
	} else {
		appKeyB64, err := c.config.Get(storage.KeyAppKey)
		if err != nil {
			return nil, err
		}
		if appKeyB64 == "" {
			return nil, errors.New(errors.ErrCodeConfig, responseComponent, "no app key in configuration and none provided by the server")
		}
		secretKey, err = crypto.Base64ToBytes(appKeyB64)
		if err != nil {
			return nil, err
		}
	}

	if warnings, ok := dict["warnings"].([]interface{}); ok {
		for _, w := range warnings {
			if s, ok := w.(string); ok {
				c.log.Warnf("server warning while fetching secrets: %s", s)
				response.Warnings = append(response.Warnings, s)
			}
		}
	}

	seen := map[string]bool{}
	if records, ok := dict["records"].([]interface{}); ok {
		for _, rec := range records {
			envelope, ok := rec.(map[string]interface{})
			if !ok {
				continue
			}
			record, err := newRecordFromResponse(envelope, secretKey, "")
			if err != nil {
				c.log.Errorf("error parsing record: %v", err)
				continue
			}
			if seen[record.UID] {
				c.log.Errorf("duplicate record uid %s in response, skipping", record.UID)
				continue
			}
			seen[record.UID] = true
			response.Records = append(response.Records, record)
		}
	}

	if folders, ok := dict["folders"].([]interface{}); ok {
		for _, fld := range folders {
			envelope, ok := fld.(map[string]interface{})
			if !ok {
				continue
			}
			folder, err := newFolderFromResponse(envelope, secretKey)
			if err != nil {
				c.log.Errorf("error parsing folder: %v", err)
				continue
			}
			for _, record := range folder.Records() {
				if seen[record.UID] {
					c.log.Errorf("duplicate record uid %s in folder %s, skipping", record.UID, folder.UID)
					continue
				}
				seen[record.UID] = true
				response.Records = append(response.Records, record)
			}
			response.Folders = append(response.Folders, folder)
		}
	}

	if appDataB64 := stringField(dict, "appData"); appDataB64 != "" {
		if err := c.decodeAppData(appDataB64, response); err != nil {
			c.log.Errorf("error parsing app data: %v", err)
		}
	}
	if expires, ok := dict["expiresOn"].(float64); ok {
		response.ExpiresOn = int64(expires)
	}
	return response, nil
}

// bindAppKey completes the binding: decrypt encryptedAppKey with the
// one-time token secret, persist it and the owner public key, and delete the
// spent clientKey.
func (c *SecretsManager) bindAppKey(dict map[string]interface{}) ([]byte, error) {
	clientKey, err := c.config.Get(storage.KeyClientKey)
	if err != nil {
		return nil, err
	}
	if clientKey == "" {
		return nil, errors.New(errors.ErrCodeConfig, responseComponent, "server sent encryptedAppKey but no clientKey is stored")
	}
	clientKeyBytes, err := crypto.URLSafeStrToBytes(clientKey)
	if err != nil {
		return nil, err
	}
	encrypted, err := crypto.URLSafeStrToBytes(stringField(dict, "encryptedAppKey"))
	if err != nil {
		return nil, err
	}
	appKey, err := crypto.DecryptAESGCM(clientKeyBytes, encrypted)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, responseComponent, "decrypt app key", err)
	}
	if err := c.config.Set(storage.KeyAppKey, crypto.BytesToBase64(appKey)); err != nil {
		return nil, err
	}
	if err := c.config.Delete(storage.KeyClientKey); err != nil {
		return nil, err
	}

	if ownerKey := stringField(dict, "appOwnerPublicKey"); ownerKey != "" {
		ownerKeyBytes, err := crypto.URLSafeStrToBytes(ownerKey)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDecode, responseComponent, "decode app owner public key", err)
		}
		if err := c.config.Set(storage.KeyOwnerPublicKey, crypto.BytesToBase64(ownerKeyBytes)); err != nil {
			return nil, err
		}
	}
	c.log.Info("bound to the application; one-time token deleted")
	return appKey, nil
}

// decodeAppData decrypts the appData blob under the app key.
func (c *SecretsManager) decodeAppData(appDataB64 string, response *SecretsManagerResponse) error {
	appKeyB64, err := c.config.Get(storage.KeyAppKey)
	if err != nil {
		return err
	}
	appKey, err := crypto.Base64ToBytes(appKeyB64)
	if err != nil {
		return err
	}
	blob, err := crypto.URLSafeStrToBytes(appDataB64)
	if err != nil {
		return err
	}
	plain, err := crypto.DecryptAESGCM(appKey, blob)
	if err != nil {
		return errors.Wrap(errors.ErrCodeCrypto, responseComponent, "decrypt app data", err)
	}
	if err := json.Unmarshal(plain, &response.AppData); err != nil {
		return errors.Wrap(errors.ErrCodeSerialization, responseComponent, "parse app data", err)
	}
	return nil
}

// prepareGetPayload builds the get_secret request. Unbound clients attach
// their public key so the server can address the binding response.
func (c *SecretsManager) prepareGetPayload(options QueryOptions) (*getPayload, error) {
	clientID, err := c.config.Get(storage.KeyClientID)
	if err != nil {
		return nil, err
	}
	if clientID == "" {
		return nil, errors.New(errors.ErrCodeConfig, clientComponent, "client id not found in configuration")
	}
	payload := &getPayload{
		ClientVersion:    ClientVersion,
		ClientID:         clientID,
		RequestedRecords: options.RecordsFilter,
		RequestedFolders: options.FoldersFilter,
		RequestLinks:     options.RequestLinks,
	}

	appKey, err := c.config.Get(storage.KeyAppKey)
	if err != nil {
		return nil, err
	}
	if appKey == "" {
		privateKeyB64, err := c.config.Get(storage.KeyPrivateKey)
		if err != nil {
			return nil, err
		}
		if privateKeyB64 == "" {
			return nil, errors.New(errors.ErrCodeConfig, clientComponent, "private key not found while preparing binding request")
		}
		der, err := crypto.Base64ToBytes(privateKeyB64)
		if err != nil {
			return nil, err
		}
		publicKey, err := crypto.ExtractPublicKeyBytes(der)
		if err != nil {
			return nil, err
		}
		payload.PublicKey = crypto.BytesToBase64(publicKey)
	}
	return payload, nil
}

// GetSecretsFullResponseWithOptions fetches records plus response metadata.
// When the call happens to complete a binding, the records are re-fetched
// once: the first round's record keys were wrapped before the client was
// bound.
func (c *SecretsManager) GetSecretsFullResponseWithOptions(options QueryOptions) (*SecretsManagerResponse, error) {
	response, err := c.fetchAndDecryptSecrets(options)
	if err != nil {
		return nil, err
	}
	if response.justBound {
		response, err = c.fetchAndDecryptSecrets(options)
		if err != nil {
			return nil, err
		}
	}
	return response, nil
}

// GetSecretsFullResponse fetches the named records (all when uids is empty)
// plus response metadata.
func (c *SecretsManager) GetSecretsFullResponse(uids []string) (*SecretsManagerResponse, error) {
	return c.GetSecretsFullResponseWithOptions(QueryOptions{RecordsFilter: uids})
}

// GetSecretsWithOptions fetches records with filters.
func (c *SecretsManager) GetSecretsWithOptions(options QueryOptions) ([]*Record, error) {
	response, err := c.GetSecretsFullResponseWithOptions(options)
	if err != nil {
		return nil, err
	}
	return response.Records, nil
}

// GetSecrets fetches the named records, or every record the application can
// see when uids is empty.
func (c *SecretsManager) GetSecrets(uids []string) ([]*Record, error) {
	response, err := c.GetSecretsFullResponse(uids)
	if err != nil {
		return nil, err
	}
	return response.Records, nil
}

// GetSecretByUID fetches a single record.
func (c *SecretsManager) GetSecretByUID(uid string) (*Record, error) {
	records, err := c.GetSecrets([]string{uid})
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.UID == uid {
			return r, nil
		}
	}
	return nil, errors.Newf(errors.ErrCodeRecordData, clientComponent, "record %s not found", uid)
}

// GetSecretsByTitle fetches all records with an exact title match.
func (c *SecretsManager) GetSecretsByTitle(title string) ([]*Record, error) {
	records, err := c.GetSecrets(nil)
	if err != nil {
		return nil, err
	}
	var matched []*Record
	for _, r := range records {
		if r.Title == title {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// GetFolders fetches and decrypts the full folder tree.
func (c *SecretsManager) GetFolders() ([]*KeeperFolder, error) {
	payload, err := c.prepareGetPayload(QueryOptions{})
	if err != nil {
		return nil, err
	}
	plaintext, err := c.PostQuery("get_folders", payload)
	if err != nil {
		return nil, err
	}
	var dict map[string]interface{}
	if err := json.Unmarshal(plaintext, &dict); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, responseComponent, "parse get_folders response", err)
	}
	appKeyB64, err := c.config.Get(storage.KeyAppKey)
	if err != nil {
		return nil, err
	}
	if appKeyB64 == "" {
		return nil, errors.New(errors.ErrCodeConfig, responseComponent, "get_folders requires a bound configuration")
	}
	appKey, err := crypto.Base64ToBytes(appKeyB64)
	if err != nil {
		return nil, err
	}
	folders, _ := dict["folders"].([]interface{})
	return decodeKeeperFolders(folders, appKey), nil
}
