package core

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
	"github.com/keeper-security/secrets-manager-go/notation"
)

const notationComponent = "notation"

// recordUIDPattern matches a 22-character URL-safe base64 UID.
var recordUIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{22}$`)

// inflateRefTypes maps reference field types to the fields projected from
// the referenced record. cardRef's addressRef entry gives one more level of
// inflation; nothing recurses past that.
var inflateRefTypes = map[string][]string{
	"addressRef": {"address"},
	"cardRef":    {"paymentCard", "text", "pinCode", "addressRef"},
}

func errNotationf(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeNotation, notationComponent, format, args...)
}

// GetNotation resolves a keeper:// URI to a single string value. Legacy
// single-bracket URIs ("/field/name[first]") are accepted.
func (c *SecretsManager) GetNotation(uri string) (string, error) {
	results, err := c.resolveNotation(uri, true)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", errNotationf("notation %q resolved to no value", uri)
	}
	return results[0], nil
}

// GetNotationResults resolves a keeper:// URI strictly and returns every
// matching value entry.
func (c *SecretsManager) GetNotationResults(uri string) ([]string, error) {
	return c.resolveNotation(uri, false)
}

// TryGetNotationResults is GetNotationResults with failures logged and
// swallowed; it always returns a usable (possibly empty) slice.
func (c *SecretsManager) TryGetNotationResults(uri string) []string {
	results, err := c.resolveNotation(uri, false)
	if err != nil {
		c.log.Errorf("notation %q failed: %v", uri, err)
		return []string{}
	}
	return results
}

func (c *SecretsManager) resolveNotation(uri string, legacyMode bool) ([]string, error) {
	parsed, err := notation.Parse(uri, legacyMode)
	if err != nil {
		return nil, err
	}
	recordSection, selectorSection := parsed[1], parsed[2]
	recordToken := recordSection.Text.Token
	selector := strings.ToLower(selectorSection.Text.Token)

	record, err := c.lookupNotationRecord(recordToken)
	if err != nil {
		return nil, err
	}

	var parameter string
	if selectorSection.Parameter != nil {
		parameter = selectorSection.Parameter.Token
	}

	switch selector {
	case "type":
		return []string{record.Type}, nil
	case "title":
		return []string{record.Title}, nil
	case "notes":
		return []string{record.Notes()}, nil
	case "file":
		return c.resolveNotationFile(record, recordToken, parameter)
	case "field", "custom_field":
		section := "custom"
		if selector == "field" {
			section = "fields"
		}
		return c.resolveNotationField(record, section, parameter, selectorSection, legacyMode)
	}
	return nil, errNotationf("invalid notation %q - bad selector %q", uri, selector)
}

// lookupNotationRecord fetches by UID when the token looks like one, and by
// exact title otherwise or when the UID fetch finds nothing. Exactly one
// match is required.
func (c *SecretsManager) lookupNotationRecord(recordToken string) (*Record, error) {
	var records []*Record
	if recordUIDPattern.MatchString(recordToken) {
		found, err := c.GetSecrets([]string{recordToken})
		if err != nil {
			return nil, err
		}
		records = found
	}
	if len(records) == 0 {
		all, err := c.GetSecrets(nil)
		if err != nil {
			return nil, err
		}
		for _, r := range all {
			if r.Title == recordToken {
				records = append(records, r)
			}
		}
	}
	if len(records) > 1 {
		return nil, errNotationf("multiple records matched %q", recordToken)
	}
	if len(records) == 0 {
		return nil, errNotationf("no records matched %q", recordToken)
	}
	return records[0], nil
}

func (c *SecretsManager) resolveNotationFile(record *Record, recordToken, parameter string) ([]string, error) {
	if len(record.Files) == 0 {
		return nil, errNotationf("record %s has no file attachments", recordToken)
	}
	var matched []*KeeperFile
	for _, f := range record.Files {
		if f.Name == parameter || f.Title == parameter || f.UID == parameter {
			matched = append(matched, f)
		}
	}
	if len(matched) > 1 {
		return nil, errNotationf("record %s has multiple files matching %q", recordToken, parameter)
	}
	if len(matched) == 0 {
		return nil, errNotationf("record %s has no files matching %q", recordToken, parameter)
	}
	contents, err := matched[0].GetFileData()
	if err != nil {
		return nil, errNotationf("record %s has corrupted file data for %q", recordToken, parameter)
	}
	return []string{crypto.BytesToURLSafeStr(contents)}, nil
}

func (c *SecretsManager) resolveNotationField(record *Record, section, parameter string, selectorSection *notation.Section, legacyMode bool) ([]string, error) {
	fields := record.findFields(section, parameter)
	if len(fields) > 1 {
		return nil, errNotationf("record %s has multiple fields matching %q", record.UID, parameter)
	}
	if len(fields) == 0 {
		return nil, errNotationf("record %s has no fields matching %q", record.UID, parameter)
	}
	field := fields[0]
	values, _ := field["value"].([]interface{})
	fieldType := stringField(field, "type")

	// Reference fields hold UIDs of other records; project the referenced
	// fields instead of returning the raw UID.
	if replaceFields, isRef := inflateRefTypes[fieldType]; isRef {
		uids := make([]string, 0, len(values))
		for _, v := range values {
			if s, ok := v.(string); ok {
				uids = append(uids, s)
			}
		}
		inflated, err := c.inflateFieldValue(uids, replaceFields)
		if err != nil {
			return nil, err
		}
		if len(inflated) == 0 {
			return nil, errNotationf("reference field %q resolved to no records", parameter)
		}
		raw, err := json.Marshal(inflated[0])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSerialization, notationComponent, "marshal inflated value", err)
		}
		return []string{string(raw)}, nil
	}

	index := -1
	if selectorSection.Index1 != nil && selectorSection.Index1.Token != "" {
		n, err := strconv.Atoi(selectorSection.Index1.Token)
		if err != nil {
			return nil, errNotationf("invalid index %q", selectorSection.Index1.Token)
		}
		index = n
	}
	var dictKey string
	if selectorSection.Index2 != nil {
		dictKey = selectorSection.Index2.Token
	}

	if index >= len(values) {
		return nil, errNotationf("index %d out of range for field %q", index, parameter)
	}

	selected := values
	if index >= 0 {
		selected = values[index : index+1]
	} else if legacyMode && len(values) > 0 {
		// Legacy single-value resolution defaults to the first entry.
		selected = values[:1]
	}

	var results []string
	for _, value := range selected {
		if dictKey != "" {
			obj, ok := value.(map[string]interface{})
			if !ok {
				return nil, errNotationf("cannot extract property %q from a non-object value", dictKey)
			}
			prop, ok := obj[dictKey]
			if !ok {
				return nil, errNotationf("cannot find the dictionary key %q in the value", dictKey)
			}
			results = append(results, renderNotationValue(prop))
			continue
		}
		results = append(results, renderNotationValue(value))
	}
	return results, nil
}

// renderNotationValue renders scalars as plain strings and everything else
// as JSON.
func renderNotationValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// inflateFieldValue fetches the referenced records and flattens the
// projected fields into one dictionary per referencing value. Keys fall back
// from sub-field label to sub-field type. addressRef projections nest one
// more level (cardRef → addressRef → address); nothing recurses deeper.
func (c *SecretsManager) inflateFieldValue(uids, replaceFields []string) ([]map[string]string, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	records, err := c.GetSecrets(uids)
	if err != nil {
		return nil, err
	}
	lookup := make(map[string]*Record, len(records))
	for _, r := range records {
		lookup[r.UID] = r
	}
	if len(lookup) == 0 {
		return nil, errors.Newf(errors.ErrCodeRecordData, notationComponent, "no records found for reference uids %v", uids)
	}

	var out []map[string]string
	for _, uid := range uids {
		record, ok := lookup[uid]
		if !ok {
			continue
		}
		flat := map[string]string{}
		for _, key := range replaceFields {
			field, err := record.GetStandardField(key)
			if err != nil {
				continue
			}
			values, _ := field["value"].([]interface{})
			if len(values) == 0 {
				continue
			}
			label := stringField(field, "label")
			fieldType := stringField(field, "type")

			switch value := values[0].(type) {
			case map[string]interface{}:
				for k, v := range value {
					flat[k] = renderNotationValue(v)
				}
			case string:
				if key == "addressRef" {
					nested, err := c.inflateFieldValue([]string{value}, []string{"address"})
					if err != nil {
						return nil, err
					}
					if len(nested) > 0 {
						for k, v := range nested[0] {
							flat[k] = v
						}
					}
				} else if label != "" {
					flat[label] = value
				} else {
					flat[fieldType] = value
				}
			default:
				flat[fieldType] = renderNotationValue(value)
			}
		}
		out = append(out, flat)
	}
	return out, nil
}
