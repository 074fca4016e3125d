package core

import (
	"encoding/json"

	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
)

// UpdateTransactionType selects how update_secret is applied.
type UpdateTransactionType string

const (
	// TransactionTypeNone applies the update immediately.
	TransactionTypeNone UpdateTransactionType = ""
	// TransactionTypeGeneral is equivalent to omitting the field.
	TransactionTypeGeneral UpdateTransactionType = "general"
	// TransactionTypeRotation stages the update until it is finalized or
	// rolled back.
	TransactionTypeRotation UpdateTransactionType = "rotation"
)

// TransmissionKey is the per-request symmetric key plus its wrapping under a
// server public key.
type TransmissionKey struct {
	PublicKeyID  string
	Key          []byte
	EncryptedKey []byte
}

// EncryptedPayload is the signed, transmission-key-encrypted request body.
type EncryptedPayload struct {
	EncryptedPayload []byte
	Signature        []byte
}

// QueryOptions filters a get_secret call.
type QueryOptions struct {
	RecordsFilter []string
	FoldersFilter []string
	RequestLinks  bool
}

// CreateOptions places a new record inside a shared folder, optionally in a
// sub-folder.
type CreateOptions struct {
	FolderUID    string
	SubFolderUID string
}

type getPayload struct {
	ClientVersion    string   `json:"clientVersion"`
	ClientID         string   `json:"clientId"`
	PublicKey        string   `json:"publicKey,omitempty"`
	RequestedRecords []string `json:"requestedRecords,omitempty"`
	RequestedFolders []string `json:"requestedFolders,omitempty"`
	RequestLinks     bool     `json:"requestLinks,omitempty"`
}

type updatePayload struct {
	ClientVersion   string                `json:"clientVersion"`
	ClientID        string                `json:"clientId"`
	RecordUID       string                `json:"recordUid"`
	Revision        int64                 `json:"revision"`
	Data            string                `json:"data"`
	TransactionType UpdateTransactionType `json:"transactionType,omitempty"`
	Links2Remove    []string              `json:"links2Remove,omitempty"`
}

type completeTransactionPayload struct {
	ClientVersion string `json:"clientVersion"`
	ClientID      string `json:"clientId"`
	RecordUID     string `json:"recordUid"`
}

type createPayload struct {
	ClientVersion string `json:"clientVersion"`
	ClientID      string `json:"clientId"`
	RecordUID     string `json:"recordUid"`
	RecordKey     string `json:"recordKey"`
	FolderUID     string `json:"folderUid"`
	FolderKey     string `json:"folderKey"`
	Data          string `json:"data"`
	SubFolderUID  string `json:"subFolderUid,omitempty"`
}

type deletePayload struct {
	ClientVersion string   `json:"clientVersion"`
	ClientID      string   `json:"clientId"`
	RecordUIDs    []string `json:"recordUids"`
}

type createFolderPayload struct {
	ClientVersion   string `json:"clientVersion"`
	ClientID        string `json:"clientId"`
	FolderUID       string `json:"folderUid"`
	SharedFolderUID string `json:"sharedFolderUid"`
	SharedFolderKey string `json:"sharedFolderKey"`
	Data            string `json:"data"`
	ParentUID       string `json:"parentUid,omitempty"`
}

type updateFolderPayload struct {
	ClientVersion string `json:"clientVersion"`
	ClientID      string `json:"clientId"`
	FolderUID     string `json:"folderUid"`
	Data          string `json:"data"`
}

type deleteFolderPayload struct {
	ClientVersion string   `json:"clientVersion"`
	ClientID      string   `json:"clientId"`
	FolderUIDs    []string `json:"folderUids"`
	ForceDeletion bool     `json:"forceDeletion"`
}

type fileUploadPayload struct {
	ClientVersion   string `json:"clientVersion"`
	ClientID        string `json:"clientId"`
	FileRecordUID   string `json:"fileRecordUid"`
	FileRecordKey   string `json:"fileRecordKey"`
	FileRecordData  string `json:"fileRecordData"`
	OwnerRecordUID  string `json:"ownerRecordUid"`
	OwnerRecordData string `json:"ownerRecordData"`
	LinkKey         string `json:"linkKey"`
	FileSize        int    `json:"fileSize"`
}

func marshalPayload(component string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, component, "marshal payload", err)
	}
	return raw, nil
}
