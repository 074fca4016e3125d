package core

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
)

const recordComponent = "record"

// Record is one decrypted secret. It exclusively owns its KeeperFiles. The
// record key stays in memory only as long as the Record does; callers that
// are done with a record may ZeroizeKeys.
type Record struct {
	UID            string
	Title          string
	Type           string
	Revision       int64
	IsEditable     bool
	FolderUID      string
	InnerFolderUID string

	// RecordKeyBytes encrypts the data blob and wraps the file keys.
	RecordKeyBytes []byte
	// FolderKeyBytes is set for records decoded inside a shared folder.
	FolderKeyBytes []byte

	// RawJSON is the decrypted record data; RecordDict is its parsed form
	// with "fields" and "custom" arrays.
	RawJSON    string
	RecordDict map[string]interface{}

	// Password mirrors the first password field value for login records.
	Password string

	Files []*KeeperFile
	Links []map[string]interface{}
}

// newRecordFromResponse decodes one record envelope. contextKey is the app
// key for top-level records and the folder key for folder-scoped records;
// when the envelope carries no recordKey the context key IS the record key
// (single-record share).
func newRecordFromResponse(envelope map[string]interface{}, contextKey []byte, folderUID string) (*Record, error) {
	r := &Record{
		UID:       stringField(envelope, "recordUid"),
		FolderUID: folderUID,
	}

	recordKey := contextKey
	if wrapped := stringField(envelope, "recordKey"); wrapped != "" {
		wrappedBytes, err := crypto.URLSafeStrToBytes(wrapped)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDecode, recordComponent, "decode record key", err)
		}
		recordKey, err = crypto.DecryptAESGCM(contextKey, wrappedBytes)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeCrypto, recordComponent, "unwrap record key", err)
		}
	}
	r.RecordKeyBytes = recordKey

	data := stringField(envelope, "data")
	if data == "" {
		return nil, errors.New(errors.ErrCodeRecordData, recordComponent, "record envelope has no data")
	}
	dataBytes, err := crypto.URLSafeStrToBytes(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDecode, recordComponent, "decode record data", err)
	}
	plaintext, err := crypto.DecryptAESGCM(recordKey, dataBytes)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCrypto, recordComponent, "decrypt record data", err)
	}

	var dict map[string]interface{}
	if err := json.Unmarshal(plaintext, &dict); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSerialization, recordComponent, "record data is not valid JSON", err)
	}
	r.RawJSON = string(plaintext)
	r.RecordDict = dict
	r.Title = stringField(dict, "title")
	r.Type = stringField(dict, "type")

	if rev, ok := envelope["revision"].(float64); ok {
		r.Revision = int64(rev)
	}
	if editable, ok := envelope["isEditable"].(bool); ok {
		r.IsEditable = editable
	}
	r.InnerFolderUID = stringField(envelope, "innerFolderUid")

	if files, ok := envelope["files"].([]interface{}); ok {
		for _, f := range files {
			fileMap, ok := f.(map[string]interface{})
			if !ok {
				continue
			}
			file, err := newKeeperFileFromResponse(fileMap, recordKey)
			if err != nil {
				// One broken file must not lose the record.
				logFileError(r.UID, err)
				continue
			}
			r.Files = append(r.Files, file)
		}
	}

	if links, ok := envelope["links"].([]interface{}); ok {
		for _, l := range links {
			if linkMap, ok := l.(map[string]interface{}); ok {
				r.Links = append(r.Links, linkMap)
			}
		}
	}

	if r.Type == "login" {
		r.Password = gjson.Get(r.RawJSON, `fields.#(type=="password").value.0`).String()
	}
	return r, nil
}

// Notes returns the record-level notes string.
func (r *Record) Notes() string {
	return stringField(r.RecordDict, "notes")
}

// ZeroizeKeys best-effort clears the record and file keys.
func (r *Record) ZeroizeKeys() {
	crypto.Zeroize(r.RecordKeyBytes)
	crypto.Zeroize(r.FolderKeyBytes)
	for _, f := range r.Files {
		crypto.Zeroize(f.FileKeyBytes)
	}
}

// fieldsSection returns the "fields" or "custom" array.
func (r *Record) fieldsSection(section string) []interface{} {
	arr, _ := r.RecordDict[section].([]interface{})
	return arr
}

// findFields returns the entries of section matching param: by exact label
// first, then by type (case-insensitive).
func (r *Record) findFields(section, param string) []map[string]interface{} {
	var byLabel, byType []map[string]interface{}
	for _, entry := range r.fieldsSection(section) {
		field, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if stringField(field, "label") == param {
			byLabel = append(byLabel, field)
		}
		if strings.EqualFold(stringField(field, "type"), param) {
			byType = append(byType, field)
		}
	}
	if len(byLabel) > 0 {
		return byLabel
	}
	return byType
}

// GetStandardField returns the first "fields" entry with the given type or
// label.
func (r *Record) GetStandardField(param string) (map[string]interface{}, error) {
	return r.firstField("fields", param)
}

// GetCustomField returns the first "custom" entry with the given type or
// label.
func (r *Record) GetCustomField(param string) (map[string]interface{}, error) {
	return r.firstField("custom", param)
}

func (r *Record) firstField(section, param string) (map[string]interface{}, error) {
	fields := r.findFields(section, param)
	if len(fields) == 0 {
		return nil, errors.Newf(errors.ErrCodeRecordData, recordComponent,
			"no field matching %q exists on record %s", param, r.UID)
	}
	return fields[0], nil
}

// GetStandardFieldValue returns the value array of the first matching
// standard field.
func (r *Record) GetStandardFieldValue(param string) ([]interface{}, error) {
	field, err := r.GetStandardField(param)
	if err != nil {
		return nil, err
	}
	value, _ := field["value"].([]interface{})
	return value, nil
}

// GetCustomFieldValue returns the value array of the first matching custom
// field.
func (r *Record) GetCustomFieldValue(param string) ([]interface{}, error) {
	field, err := r.GetCustomField(param)
	if err != nil {
		return nil, err
	}
	value, _ := field["value"].([]interface{})
	return value, nil
}

// SetStandardFieldValue replaces the value array of the first matching
// standard field and refreshes RawJSON.
func (r *Record) SetStandardFieldValue(param string, value []interface{}) error {
	field, err := r.GetStandardField(param)
	if err != nil {
		return err
	}
	field["value"] = value
	if strings.EqualFold(stringField(field, "type"), "password") && len(value) > 0 {
		if s, ok := value[0].(string); ok {
			r.Password = s
		}
	}
	return r.syncRawJSON()
}

// SetCustomFieldValue replaces the value array of the first matching custom
// field and refreshes RawJSON.
func (r *Record) SetCustomFieldValue(param string, value []interface{}) error {
	field, err := r.GetCustomField(param)
	if err != nil {
		return err
	}
	field["value"] = value
	return r.syncRawJSON()
}

// SetPassword updates the password field value for login records.
func (r *Record) SetPassword(password string) error {
	return r.SetStandardFieldValue("password", []interface{}{password})
}

// insertField appends a new field object to the given section.
func (r *Record) insertField(section string, field map[string]interface{}) error {
	arr := r.fieldsSection(section)
	r.RecordDict[section] = append(arr, field)
	return r.syncRawJSON()
}

// syncRawJSON reserializes RecordDict after a mutation.
func (r *Record) syncRawJSON() error {
	raw, err := json.Marshal(r.RecordDict)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSerialization, recordComponent, "serialize record data", err)
	}
	r.RawJSON = string(raw)
	return nil
}

// consolidateFileRefs merges every fileRef field in "fields" into a single
// field at the position of the first one, preserving value order. Older
// clients sometimes left more than one behind.
func (r *Record) consolidateFileRefs() error {
	fields := r.fieldsSection("fields")
	var merged []interface{}
	firstIdx := -1
	kept := fields[:0:0]
	for i, entry := range fields {
		field, ok := entry.(map[string]interface{})
		if ok && stringField(field, "type") == "fileRef" {
			if value, ok := field["value"].([]interface{}); ok {
				merged = append(merged, value...)
			}
			if firstIdx == -1 {
				firstIdx = i
				kept = append(kept, entry)
			}
			continue
		}
		kept = append(kept, entry)
	}
	if firstIdx == -1 {
		return nil
	}
	for _, entry := range kept {
		field, ok := entry.(map[string]interface{})
		if ok && stringField(field, "type") == "fileRef" {
			field["value"] = merged
			break
		}
	}
	r.RecordDict["fields"] = kept
	return r.syncRawJSON()
}

// addFileRef appends a file UID to the (single, consolidated) fileRef field,
// creating the field when absent.
func (r *Record) addFileRef(fileUID string) error {
	if err := r.consolidateFileRefs(); err != nil {
		return err
	}
	for _, entry := range r.fieldsSection("fields") {
		field, ok := entry.(map[string]interface{})
		if ok && stringField(field, "type") == "fileRef" {
			value, _ := field["value"].([]interface{})
			field["value"] = append(value, fileUID)
			return r.syncRawJSON()
		}
	}
	return r.insertField("fields", map[string]interface{}{
		"type":  "fileRef",
		"value": []interface{}{fileUID},
	})
}

// FindFileByTitle returns the first attached file with the given title.
func (r *Record) FindFileByTitle(title string) *KeeperFile {
	for _, f := range r.Files {
		if f.Title == title {
			return f
		}
	}
	return nil
}

// FindFileByName returns the first attached file with the given name.
func (r *Record) FindFileByName(name string) *KeeperFile {
	for _, f := range r.Files {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FindFile returns the first file whose uid, name or title equals param.
func (r *Record) FindFile(param string) *KeeperFile {
	for _, f := range r.Files {
		if f.UID == param || f.Name == param || f.Title == param {
			return f
		}
	}
	return nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
