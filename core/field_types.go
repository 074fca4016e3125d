package core

// Typed constructors for the common field kinds, so templates read as
// declarations instead of raw maps. Structured kinds take their wire shape
// as a value object.

// NewLoginFieldValue builds a login field.
func NewLoginFieldValue(login string) KeeperField {
	return NewKeeperField("login", "", login)
}

// NewPasswordFieldValue builds a password field.
func NewPasswordFieldValue(password string) KeeperField {
	return NewKeeperField("password", "", password)
}

// NewURLFieldValue builds a url field.
func NewURLFieldValue(url string) KeeperField {
	return NewKeeperField("url", "", url)
}

// NewTextFieldValue builds a text field.
func NewTextFieldValue(label, text string) KeeperField {
	return NewKeeperField("text", label, text)
}

// NewMultilineFieldValue builds a multiline field.
func NewMultilineFieldValue(label, text string) KeeperField {
	return NewKeeperField("multiline", label, text)
}

// NewSecretFieldValue builds a hidden-value field.
func NewSecretFieldValue(label, secret string) KeeperField {
	return NewKeeperField("secret", label, secret)
}

// NewNoteFieldValue builds a note field.
func NewNoteFieldValue(note string) KeeperField {
	return NewKeeperField("note", "", note)
}

// NewEmailFieldValue builds an email field.
func NewEmailFieldValue(email string) KeeperField {
	return NewKeeperField("email", "", email)
}

// NewOneTimeCodeFieldValue builds a oneTimeCode field from an otpauth URL.
func NewOneTimeCodeFieldValue(otpauthURL string) KeeperField {
	return NewKeeperField("oneTimeCode", "", otpauthURL)
}

// NewCheckboxFieldValue builds a checkbox field.
func NewCheckboxFieldValue(label string, checked bool) KeeperField {
	return NewKeeperField("checkbox", label, checked)
}

// NewDateFieldValue builds a date field from milliseconds UTC.
func NewDateFieldValue(label string, epochMillis int64) KeeperField {
	return NewKeeperField("date", label, epochMillis)
}

// NewExpirationDateFieldValue builds an expirationDate field.
func NewExpirationDateFieldValue(epochMillis int64) KeeperField {
	return NewKeeperField("expirationDate", "", epochMillis)
}

// NewBirthDateFieldValue builds a birthDate field.
func NewBirthDateFieldValue(epochMillis int64) KeeperField {
	return NewKeeperField("birthDate", "", epochMillis)
}

// NewAccountNumberFieldValue builds an accountNumber field.
func NewAccountNumberFieldValue(number string) KeeperField {
	return NewKeeperField("accountNumber", "", number)
}

// NewLicenseNumberFieldValue builds a licenseNumber field.
func NewLicenseNumberFieldValue(number string) KeeperField {
	return NewKeeperField("licenseNumber", "", number)
}

// NewPinCodeFieldValue builds a pinCode field.
func NewPinCodeFieldValue(pin string) KeeperField {
	return NewKeeperField("pinCode", "", pin)
}

// NewFileRefFieldValue builds a fileRef field from file record UIDs.
func NewFileRefFieldValue(fileUIDs ...string) KeeperField {
	values := make([]interface{}, 0, len(fileUIDs))
	for _, uid := range fileUIDs {
		values = append(values, uid)
	}
	return KeeperField{Type: "fileRef", Value: values}
}

// NewAddressRefFieldValue builds an addressRef field pointing at an address
// record.
func NewAddressRefFieldValue(recordUID string) KeeperField {
	return NewKeeperField("addressRef", "", recordUID)
}

// NewCardRefFieldValue builds a cardRef field pointing at a payment card
// record.
func NewCardRefFieldValue(recordUID string) KeeperField {
	return NewKeeperField("cardRef", "", recordUID)
}

// NewRecordRefFieldValue builds a recordRef field.
func NewRecordRefFieldValue(recordUID string) KeeperField {
	return NewKeeperField("recordRef", "", recordUID)
}

// Name is the value shape of a name field.
type Name struct {
	First  string `json:"first,omitempty"`
	Middle string `json:"middle,omitempty"`
	Last   string `json:"last,omitempty"`
}

// NewNameFieldValue builds a name field.
func NewNameFieldValue(name Name) KeeperField {
	return NewKeeperField("name", "", structToValue(map[string]interface{}{
		"first":  name.First,
		"middle": name.Middle,
		"last":   name.Last,
	}))
}

// Phone is the value shape of a phone field entry.
type Phone struct {
	Region string `json:"region,omitempty"`
	Number string `json:"number,omitempty"`
	Ext    string `json:"ext,omitempty"`
	Type   string `json:"type,omitempty"`
}

// NewPhoneFieldValue builds a phone field.
func NewPhoneFieldValue(phones ...Phone) KeeperField {
	values := make([]interface{}, 0, len(phones))
	for _, p := range phones {
		values = append(values, structToValue(map[string]interface{}{
			"region": p.Region,
			"number": p.Number,
			"ext":    p.Ext,
			"type":   p.Type,
		}))
	}
	return KeeperField{Type: "phone", Value: values}
}

// Address is the value shape of an address field.
type Address struct {
	Street1 string `json:"street1,omitempty"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// NewAddressFieldValue builds an address field.
func NewAddressFieldValue(a Address) KeeperField {
	return NewKeeperField("address", "", structToValue(map[string]interface{}{
		"street1": a.Street1,
		"street2": a.Street2,
		"city":    a.City,
		"state":   a.State,
		"zip":     a.Zip,
		"country": a.Country,
	}))
}

// PaymentCard is the value shape of a paymentCard field.
type PaymentCard struct {
	CardNumber         string `json:"cardNumber,omitempty"`
	CardExpirationDate string `json:"cardExpirationDate,omitempty"`
	CardSecurityCode   string `json:"cardSecurityCode,omitempty"`
}

// NewPaymentCardFieldValue builds a paymentCard field.
func NewPaymentCardFieldValue(card PaymentCard) KeeperField {
	return NewKeeperField("paymentCard", "", structToValue(map[string]interface{}{
		"cardNumber":         card.CardNumber,
		"cardExpirationDate": card.CardExpirationDate,
		"cardSecurityCode":   card.CardSecurityCode,
	}))
}

// BankAccount is the value shape of a bankAccount field.
type BankAccount struct {
	AccountType   string `json:"accountType,omitempty"`
	RoutingNumber string `json:"routingNumber,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
}

// NewBankAccountFieldValue builds a bankAccount field.
func NewBankAccountFieldValue(account BankAccount) KeeperField {
	return NewKeeperField("bankAccount", "", structToValue(map[string]interface{}{
		"accountType":   account.AccountType,
		"routingNumber": account.RoutingNumber,
		"accountNumber": account.AccountNumber,
	}))
}

// Host is the value shape of a host field.
type Host struct {
	Hostname string `json:"hostName,omitempty"`
	Port     string `json:"port,omitempty"`
}

// NewHostFieldValue builds a host field.
func NewHostFieldValue(h Host) KeeperField {
	return NewKeeperField("host", "", structToValue(map[string]interface{}{
		"hostName": h.Hostname,
		"port":     h.Port,
	}))
}

// SecurityQuestion is the value shape of a securityQuestion field entry.
type SecurityQuestion struct {
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer,omitempty"`
}

// NewSecurityQuestionFieldValue builds a securityQuestion field.
func NewSecurityQuestionFieldValue(questions ...SecurityQuestion) KeeperField {
	values := make([]interface{}, 0, len(questions))
	for _, q := range questions {
		values = append(values, structToValue(map[string]interface{}{
			"question": q.Question,
			"answer":   q.Answer,
		}))
	}
	return KeeperField{Type: "securityQuestion", Value: values}
}

// KeyPair is the value shape of a keyPair field.
type KeyPair struct {
	PublicKey  string `json:"publicKey,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
}

// NewKeyPairFieldValue builds a keyPair field.
func NewKeyPairFieldValue(pair KeyPair) KeeperField {
	return NewKeeperField("keyPair", "", structToValue(map[string]interface{}{
		"publicKey":  pair.PublicKey,
		"privateKey": pair.PrivateKey,
	}))
}

// structToValue drops empty entries so the wire shape matches what the
// vault writes.
func structToValue(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out[k] = v
	}
	return out
}
