package core

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
	"github.com/keeper-security/secrets-manager-go/infrastructure/logging"
)

const fileComponent = "file"

var coreLog = logging.NewFromEnv("core")

func logFileError(recordUID string, err error) {
	coreLog.Errorf("error loading file on record %s: %v", recordUID, err)
}

// KeeperFile is one attachment of a record. The encrypted body lives in
// object storage behind URL; it is fetched and decrypted on first access and
// cached for the lifetime of the struct.
type KeeperFile struct {
	UID          string
	Name         string
	Title        string
	Type         string
	Size         int64
	LastModified int64

	// FileKeyBytes decrypts the body and the thumbnail.
	FileKeyBytes []byte

	URL          string
	ThumbnailURL string

	data       []byte
	httpClient *http.Client
}

// newKeeperFileFromResponse decodes one file envelope with the owning
// record's key.
func newKeeperFileFromResponse(envelope map[string]interface{}, recordKey []byte) (*KeeperFile, error) {
	f := &KeeperFile{
		UID:          stringField(envelope, "fileUid"),
		URL:          stringField(envelope, "url"),
		ThumbnailURL: stringField(envelope, "thumbnailUrl"),
	}

	wrapped := stringField(envelope, "fileKey")
	if wrapped == "" {
		return nil, errors.New(errors.ErrCodeRecordData, fileComponent, "file envelope has no fileKey")
	}
	wrappedBytes, err := crypto.URLSafeStrToBytes(wrapped)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, fileComponent, "decode file key", err)
	}
	fileKey, err := crypto.DecryptAESGCM(recordKey, wrappedBytes)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, fileComponent, "unwrap file key", err)
	}
	f.FileKeyBytes = fileKey

	metaB64 := stringField(envelope, "data")
	if metaB64 != "" {
		metaBytes, err := crypto.URLSafeStrToBytes(metaB64)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDecode, fileComponent, "decode file metadata", err)
		}
		metaJSON, err := crypto.DecryptAESGCM(fileKey, metaBytes)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCrypto, fileComponent, "decrypt file metadata", err)
		}
		var meta struct {
			Name         string  `json:"name"`
			Title        string  `json:"title"`
			Type         string  `json:"type"`
			Size         float64 `json:"size"`
			LastModified float64 `json:"lastModified"`
		}
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, errors.Wrap(errors.ErrCodeSerialization, fileComponent, "parse file metadata", err)
		}
		f.Name = meta.Name
		f.Title = meta.Title
		f.Type = meta.Type
		f.Size = int64(meta.Size)
		f.LastModified = int64(meta.LastModified)
	}
	return f, nil
}

// GetFileData downloads (once) and decrypts the file body.
func (f *KeeperFile) GetFileData() ([]byte, error) {
	if f.data != nil {
		return f.data, nil
	}
	if f.URL == "" {
		return nil, errors.New(errors.ErrCodeFile, fileComponent, "file has no download url")
	}
	body, err := f.fetch(f.URL)
	if err != nil {
		return nil, err
	}
	plain, err := crypto.DecryptAESGCM(f.FileKeyBytes, body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, fileComponent, "decrypt file body", err)
	}
	f.data = plain
	return plain, nil
}

// GetThumbnailData downloads and decrypts the thumbnail, when one exists.
func (f *KeeperFile) GetThumbnailData() ([]byte, error) {
	if f.ThumbnailURL == "" {
		return nil, errors.New(errors.ErrCodeFile, fileComponent, "file has no thumbnail url")
	}
	body, err := f.fetch(f.ThumbnailURL)
	if err != nil {
		return nil, err
	}
	plain, err := crypto.DecryptAESGCM(f.FileKeyBytes, body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, fileComponent, "decrypt thumbnail", err)
	}
	return plain, nil
}

func (f *KeeperFile) fetch(url string) ([]byte, error) {
	client := f.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(url)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeHTTP, fileComponent, "download file", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrCodeHTTP, fileComponent, "download file: http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeHTTP, fileComponent, "read file body", err)
	}
	return body, nil
}

// SaveFile writes the decrypted body to path, optionally creating parent
// directories.
func (f *KeeperFile) SaveFile(path string, createFolders bool) error {
	data, err := f.GetFileData()
	if err != nil {
		return err
	}
	if createFolders {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrap(errors.ErrCodeFile, fileComponent, "create directories", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(errors.ErrCodeFile, fileComponent, "write file", err)
	}
	return nil
}

// KeeperFileUpload is the input of UploadFile.
type KeeperFileUpload struct {
	Name  string
	Title string
	Type  string
	Data  []byte
}

// GetFileForUpload reads a file from disk into an upload descriptor. Empty
// name defaults to the base name and empty title to the name; empty mimeType
// defaults to application/octet-stream.
func GetFileForUpload(path, name, title, mimeType string) (*KeeperFileUpload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFile, fileComponent, "read upload file", err)
	}
	if name == "" {
		name = filepath.Base(path)
	}
	if title == "" {
		title = name
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return &KeeperFileUpload{Name: name, Title: title, Type: mimeType, Data: data}, nil
}
