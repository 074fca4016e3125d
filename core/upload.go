package core

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
)

const uploadComponent = "upload"

// UploadFile attaches a file to ownerRecord: the encrypted metadata and keys
// go through add_file, the encrypted body goes to the returned object
// storage URL as a multipart form. Returns the new file record UID.
func (c *SecretsManager) UploadFile(ownerRecord *Record, file *KeeperFileUpload) (string, error) {
	if ownerRecord == nil || file == nil {
		return "", errors.New(errors.ErrCodeRecordData, uploadComponent, "owner record and file are required")
	}
	c.log.Infof("uploading file %s to record %s", file.Name, ownerRecord.UID)

	payload, encryptedBody, err := c.prepareFileUploadPayload(ownerRecord, file)
	if err != nil {
		return "", err
	}

	responseBytes, err := c.PostQuery("add_file", payload)
	if err != nil {
		return "", err
	}
	var response struct {
		URL               string          `json:"url"`
		Parameters        json.RawMessage `json:"parameters"`
		SuccessStatusCode int             `json:"successStatusCode"`
	}
	if err := json.Unmarshal(responseBytes, &response); err != nil {
		return "", errors.Wrap(errors.ErrCodeSerialization, uploadComponent, "parse add_file response", err)
	}
	if response.URL == "" {
		return "", errors.New(errors.ErrCodeFile, uploadComponent, "upload url not found in response")
	}

	parameters, err := decodeUploadParameters(response.Parameters)
	if err != nil {
		return "", err
	}
	if err := c.postMultipart(response.URL, parameters, encryptedBody); err != nil {
		return "", err
	}
	return payload.FileRecordUID, nil
}

// decodeUploadParameters accepts the form fields either as a JSON object or
// as a JSON-encoded string holding one.
func decodeUploadParameters(raw json.RawMessage) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, errors.New(errors.ErrCodeFile, uploadComponent, "upload parameters not found in response")
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		raw = []byte(asString)
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, uploadComponent, "parse upload parameters", err)
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

func (c *SecretsManager) prepareFileUploadPayload(ownerRecord *Record, file *KeeperFileUpload) (*fileUploadPayload, []byte, error) {
	clientID, err := c.clientID()
	if err != nil {
		return nil, nil, err
	}
	ownerPublicKey, err := c.ownerPublicKeyBytes()
	if err != nil {
		return nil, nil, err
	}

	fileKey := crypto.GenerateEncryptionKeyBytes()
	fileUID := crypto.GenerateUID()

	meta, err := json.Marshal(map[string]interface{}{
		"name":  file.Name,
		"title": file.Title,
		"type":  file.Type,
		"size":  len(file.Data),
	})
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeSerialization, uploadComponent, "marshal file metadata", err)
	}

	encryptedMeta, err := crypto.EncryptAESGCM(fileKey, meta)
	if err != nil {
		return nil, nil, err
	}
	wrappedToOwner, err := crypto.PublicEncrypt(fileKey, ownerPublicKey, nil)
	if err != nil {
		return nil, nil, err
	}
	// The link key binds the file to its owning record.
	linkKey, err := crypto.EncryptAESGCM(ownerRecord.RecordKeyBytes, fileKey)
	if err != nil {
		return nil, nil, err
	}
	encryptedBody, err := crypto.EncryptAESGCM(fileKey, file.Data)
	if err != nil {
		return nil, nil, err
	}

	if err := ownerRecord.addFileRef(fileUID); err != nil {
		return nil, nil, err
	}
	encryptedOwnerData, err := crypto.EncryptAESGCM(ownerRecord.RecordKeyBytes, []byte(ownerRecord.RawJSON))
	if err != nil {
		return nil, nil, err
	}

	payload := &fileUploadPayload{
		ClientVersion:   ClientVersion,
		ClientID:        clientID,
		FileRecordUID:   fileUID,
		FileRecordKey:   crypto.BytesToBase64(wrappedToOwner),
		FileRecordData:  crypto.BytesToURLSafeStr(encryptedMeta),
		OwnerRecordUID:  ownerRecord.UID,
		OwnerRecordData: crypto.BytesToURLSafeStr(encryptedOwnerData),
		LinkKey:         crypto.BytesToBase64(linkKey),
		FileSize:        len(encryptedBody),
	}
	return payload, encryptedBody, nil
}

// postMultipart sends the storage form: every server-provided field plus the
// encrypted body as the "file" part. Any 2xx status is success.
func (c *SecretsManager) postMultipart(url string, parameters map[string]string, body []byte) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range parameters {
		if err := writer.WriteField(key, value); err != nil {
			return errors.Wrap(errors.ErrCodeFile, uploadComponent, "write form field", err)
		}
	}
	part, err := writer.CreateFormFile("file", "file")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFile, uploadComponent, "create file part", err)
	}
	if _, err := part.Write(body); err != nil {
		return errors.Wrap(errors.ErrCodeFile, uploadComponent, "write file part", err)
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeFile, uploadComponent, "finalize form", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFile, uploadComponent, "create upload request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFile, uploadComponent, "post file to storage", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf(errors.ErrCodeFile, uploadComponent, "file upload failed: http %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
