package core

import (
	"strings"

	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
)

const fieldsComponent = "fields"

// ValidRecordFields is the allowlist of field types accepted in create
// templates.
var ValidRecordFields = []string{
	"accountNumber",
	"address",
	"addressRef",
	"appFiller",
	"bankAccount",
	"birthDate",
	"cardRef",
	"checkbox",
	"databaseType",
	"date",
	"directoryType",
	"dropdown",
	"email",
	"expirationDate",
	"fileRef",
	"host",
	"isSSIDHidden",
	"keyPair",
	"licenseNumber",
	"login",
	"multiline",
	"name",
	"note",
	"oneTimeCode",
	"otp",
	"pamHostname",
	"pamRemoteBrowserSettings",
	"pamResources",
	"pamSettings",
	"passkey",
	"password",
	"paymentCard",
	"phone",
	"pinCode",
	"rbiUrl",
	"recordRef",
	"schedule",
	"script",
	"secret",
	"securityQuestion",
	"text",
	"trafficEncryptionSeed",
	"url",
	"wifiEncryption",
}

// IsValidRecordField reports whether fieldType is in the allowlist.
func IsValidRecordField(fieldType string) bool {
	for _, t := range ValidRecordFields {
		if t == fieldType {
			return true
		}
	}
	return false
}

// KeeperField is one field of a record template.
type KeeperField struct {
	Type  string        `json:"type"`
	Label string        `json:"label,omitempty"`
	Value []interface{} `json:"value"`
}

// NewKeeperField builds a field with the given values.
func NewKeeperField(fieldType, label string, values ...interface{}) KeeperField {
	if values == nil {
		values = []interface{}{}
	}
	return KeeperField{Type: fieldType, Label: label, Value: values}
}

// RecordCreate is the template for CreateSecret.
type RecordCreate struct {
	RecordType string
	Title      string
	Notes      string
	Fields     []KeeperField
	Custom     []KeeperField
}

// NewRecordCreate starts a template of the given type.
func NewRecordCreate(recordType, title, notes string) *RecordCreate {
	return &RecordCreate{RecordType: recordType, Title: title, Notes: notes}
}

// AppendStandardField adds a field to the "fields" section.
func (r *RecordCreate) AppendStandardField(field KeeperField) {
	r.Fields = append(r.Fields, field)
}

// AppendCustomField adds a field to the "custom" section.
func (r *RecordCreate) AppendCustomField(field KeeperField) {
	r.Custom = append(r.Custom, field)
}

// Validate checks the template: nonempty title, allowlisted field types, and
// array-shaped values.
func (r *RecordCreate) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New(errors.ErrCodeRecordData, fieldsComponent, "record title must not be empty")
	}
	var badTypes, emptyValues []string
	for _, section := range [][]KeeperField{r.Fields, r.Custom} {
		for _, field := range section {
			if !IsValidRecordField(field.Type) {
				badTypes = append(badTypes, field.Type)
			}
			if field.Value == nil {
				emptyValues = append(emptyValues, field.Type)
			}
		}
	}
	if len(badTypes) > 0 {
		return errors.Newf(errors.ErrCodeRecordData, fieldsComponent,
			"field types not allowed: [%s]; allowed types: [%s]",
			strings.Join(badTypes, ", "), strings.Join(ValidRecordFields, ", "))
	}
	if len(emptyValues) > 0 {
		return errors.Newf(errors.ErrCodeRecordData, fieldsComponent,
			"fields of these types must carry an array value: [%s]", strings.Join(emptyValues, ", "))
	}
	return nil
}

// ToDict validates and renders the template as the record data object.
func (r *RecordCreate) ToDict() (map[string]interface{}, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	dict := map[string]interface{}{
		"type":  r.RecordType,
		"title": r.Title,
	}
	if r.Notes != "" {
		dict["notes"] = r.Notes
	}
	fields := make([]interface{}, 0, len(r.Fields))
	for _, f := range r.Fields {
		fields = append(fields, fieldToDict(f))
	}
	dict["fields"] = fields
	if len(r.Custom) > 0 {
		custom := make([]interface{}, 0, len(r.Custom))
		for _, f := range r.Custom {
			custom = append(custom, fieldToDict(f))
		}
		dict["custom"] = custom
	}
	return dict, nil
}

func fieldToDict(f KeeperField) map[string]interface{} {
	out := map[string]interface{}{
		"type":  f.Type,
		"value": f.Value,
	}
	if f.Label != "" {
		out["label"] = f.Label
	}
	return out
}

// ToJSON validates and serializes the template.
func (r *RecordCreate) ToJSON() (string, error) {
	dict, err := r.ToDict()
	if err != nil {
		return "", err
	}
	raw, err := marshalPayload(fieldsComponent, dict)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
