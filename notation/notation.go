// Package notation parses keeper:// URIs, the query language for addressing
// field values inside records.
//
// Grammar:
//
//	notation   := prefix? record "/" selector ("/" parameter ("[" index1? "]" ("[" index2? "]")? )? )?
//	prefix     := "keeper://"
//	selector   := "type" | "title" | "notes" | "field" | "custom_field" | "file"
//
// Inside the record token and the parameter, the characters / [ ] \ may be
// escaped with a backslash. Index brackets need no escaping.
package notation

import (
	"strings"
	"unicode/utf8"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
)

const component = "notation"

// Prefix is the URI scheme, without the "://".
const Prefix = "keeper"

// Selector classes.
var (
	ShortSelectors = []string{"type", "title", "notes"}
	FullSelectors  = []string{"field", "custom_field", "file"}
)

func isShortSelector(s string) bool { return contains(ShortSelectors, strings.ToLower(s)) }
func isFullSelector(s string) bool  { return contains(FullSelectors, strings.ToLower(s)) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ValuePair keeps both the unescaped token and the raw text of a subsection.
type ValuePair struct {
	Token string // unescaped
	Raw   string // as written, including delimiters and escapes
}

// Section is one of the four parsed sections of a notation URI.
type Section struct {
	Section   string // prefix | record | selector | footer
	IsPresent bool
	StartPos  int
	EndPos    int
	Text      *ValuePair
	Parameter *ValuePair
	Index1    *ValuePair
	Index2    *ValuePair
}

func newSection(name string) *Section {
	return &Section{Section: name, StartPos: -1, EndPos: -1}
}

func errNotation(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeNotation, component, format, args...)
}

// parseSubsection scans text from pos up to a delimiter. delimiters is either
// a single terminator ("/", "[") or a bracket pair ("[]"). escaped enables
// backslash escapes for / [ ] \. Returns nil when pos is past the end.
func parseSubsection(text string, pos int, delimiters string, escaped bool) (*ValuePair, error) {
	const escapeChar = '\\'
	const escapeChars = `/[]\`

	if text == "" || pos >= len(text) {
		return nil, nil
	}
	if len(delimiters) == 0 || len(delimiters) > 2 {
		return nil, errNotation("internal error - incorrect delimiters count: %q", delimiters)
	}

	var token, raw strings.Builder
	for pos < len(text) {
		c := text[pos]
		if escaped && c == escapeChar {
			if pos+1 >= len(text) || !strings.ContainsRune(escapeChars, rune(text[pos+1])) {
				return nil, errNotation("incorrect escape sequence at position %d", pos)
			}
			token.WriteByte(text[pos+1])
			raw.WriteByte(c)
			raw.WriteByte(text[pos+1])
			pos += 2
			continue
		}

		raw.WriteByte(c)
		if len(delimiters) == 1 {
			if c == delimiters[0] {
				break
			}
			token.WriteByte(c)
		} else {
			if raw.Len() == 1 && c != delimiters[0] {
				return nil, errNotation("index sections must start with '['")
			}
			if raw.Len() > 1 && c == delimiters[0] {
				return nil, errNotation("index sections do not allow extra '[' inside")
			}
			if c == delimiters[1] {
				break
			}
			if c != delimiters[0] {
				token.WriteByte(c)
			}
		}
		pos++
	}

	if len(delimiters) == 2 {
		r := raw.String()
		if len(r) < 2 || r[0] != delimiters[0] || r[len(r)-1] != delimiters[1] ||
			(escaped && len(r) >= 2 && r[len(r)-2] == escapeChar) {
			return nil, errNotation("index sections must be enclosed in '[' and ']'")
		}
	}

	return &ValuePair{Token: token.String(), Raw: raw.String()}, nil
}

// parseSection extracts one named section starting at pos.
func parseSection(notation, section string, pos int) (*Section, error) {
	if notation == "" {
		return nil, errNotation("missing notation URI")
	}
	name := strings.ToLower(section)
	result := newSection(name)
	result.StartPos = pos

	switch name {
	case "prefix":
		uriPrefix := Prefix + "://"
		if strings.HasPrefix(strings.ToLower(notation), uriPrefix) {
			result.IsPresent = true
			result.StartPos = 0
			result.EndPos = len(uriPrefix) - 1
			result.Text = &ValuePair{Token: notation[:len(uriPrefix)], Raw: notation[:len(uriPrefix)]}
		}

	case "footer":
		result.IsPresent = pos < len(notation)
		if result.IsPresent {
			result.StartPos = pos
			result.EndPos = len(notation) - 1
			result.Text = &ValuePair{Token: notation[pos:], Raw: notation[pos:]}
		}

	case "record":
		result.IsPresent = pos < len(notation)
		if result.IsPresent {
			parsed, err := parseSubsection(notation, pos, "/", true)
			if err != nil {
				return nil, err
			}
			if parsed != nil {
				result.StartPos = pos
				result.EndPos = pos + len(parsed.Raw) - 1
				result.Text = parsed
			}
		}

	case "selector":
		result.IsPresent = pos < len(notation)
		if result.IsPresent {
			parsed, err := parseSubsection(notation, pos, "/", false)
			if err != nil {
				return nil, err
			}
			if parsed != nil {
				result.StartPos = pos
				result.EndPos = pos + len(parsed.Raw) - 1
				result.Text = parsed

				if isFullSelector(parsed.Token) {
					param, err := parseSubsection(notation, result.EndPos+1, "[", true)
					if err != nil {
						return nil, err
					}
					if param != nil {
						result.Parameter = param
						plen := len(param.Raw)
						if strings.HasSuffix(param.Raw, "[") && !strings.HasSuffix(param.Raw, `\[`) {
							plen--
						}
						result.EndPos += plen

						index1, err := parseSubsection(notation, result.EndPos+1, "[]", true)
						if err != nil {
							return nil, err
						}
						if index1 != nil {
							result.Index1 = index1
							result.EndPos += len(index1.Raw)

							index2, err := parseSubsection(notation, result.EndPos+1, "[]", true)
							if err != nil {
								return nil, err
							}
							if index2 != nil {
								result.Index2 = index2
								result.EndPos += len(index2.Raw)
							}
						}
					}
				}
			}
		}

	default:
		return nil, errNotation("unknown section %q", name)
	}
	return result, nil
}

// Parse splits a notation URI into its four sections and validates the
// selector structure. When the input contains no '/', it is treated as a
// URL-safe base64 encoding of the URI. legacyMode enables the old
// single-bracket form where a non-numeric first index is reinterpreted as
// the dictionary key.
func Parse(notation string, legacyMode bool) ([]*Section, error) {
	if notation == "" {
		return nil, errNotation("keeper notation is missing or invalid")
	}

	if !strings.Contains(notation, "/") {
		decoded, err := crypto.URLSafeStrToBytes(notation)
		if err != nil {
			return nil, errNotation("invalid format - plaintext URI or URL-safe base64 string expected")
		}
		if !utf8.Valid(decoded) {
			return nil, errNotation("decoded base64 is not valid UTF-8")
		}
		notation = string(decoded)
	}

	prefix, err := parseSection(notation, "prefix", 0)
	if err != nil {
		return nil, err
	}
	pos := 0
	if prefix.IsPresent {
		pos = prefix.EndPos + 1
	}

	record, err := parseSection(notation, "record", pos)
	if err != nil {
		return nil, err
	}
	pos = len(notation)
	if record.IsPresent {
		pos = record.EndPos + 1
	}

	selector, err := parseSection(notation, "selector", pos)
	if err != nil {
		return nil, err
	}
	pos = len(notation)
	if selector.IsPresent {
		pos = selector.EndPos + 1
	}

	footer, err := parseSection(notation, "footer", pos)
	if err != nil {
		return nil, err
	}

	if !record.IsPresent || !selector.IsPresent {
		return nil, errNotation("missing UID/title, selector, or field key")
	}
	if footer.IsPresent {
		return nil, errNotation("extra characters after the last section")
	}
	if selector.Text == nil {
		return nil, errNotation("missing selector")
	}

	selName := strings.ToLower(selector.Text.Token)
	if !isShortSelector(selName) && !isFullSelector(selName) {
		return nil, errNotation("bad selector %q, must be one of (type, title, notes, field, custom_field, file)", selector.Text.Token)
	}
	if isShortSelector(selName) && selector.Parameter != nil {
		return nil, errNotation("selectors (type, title, notes) do not have parameters")
	}
	if isFullSelector(selName) {
		if selector.Parameter == nil {
			return nil, errNotation("selectors (field, custom_field, file) require parameters")
		}
		if selName == "file" && (selector.Index1 != nil || selector.Index2 != nil) {
			return nil, errNotation("file selectors don't accept indexes")
		}
		if selName != "file" && selector.Index1 == nil && selector.Index2 != nil {
			return nil, errNotation("two indexes required")
		}
		if selector.Index1 != nil && !isNumericIndex(selector.Index1.Raw) {
			if !legacyMode {
				return nil, errNotation("first index must be numeric: [n] or []")
			}
			if selector.Index2 == nil {
				// Old single-bracket form: [first] means [0][first].
				selector.Index2 = selector.Index1
				selector.Index1 = &ValuePair{Token: "", Raw: "[]"}
			}
		}
	}

	return []*Section{prefix, record, selector, footer}, nil
}

// isNumericIndex reports whether raw is "[]" or "[digits]".
func isNumericIndex(raw string) bool {
	if len(raw) < 2 || raw[0] != '[' || raw[len(raw)-1] != ']' {
		return false
	}
	for _, c := range raw[1 : len(raw)-1] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
