package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedFieldConstructors(t *testing.T) {
	field := NewLoginFieldValue("alice")
	assert.Equal(t, "login", field.Type)
	assert.Equal(t, []interface{}{"alice"}, field.Value)

	field = NewTextFieldValue("Env", "prod")
	assert.Equal(t, "Env", field.Label)

	field = NewCheckboxFieldValue("Enabled", true)
	assert.Equal(t, []interface{}{true}, field.Value)

	field = NewFileRefFieldValue("uidA", "uidB")
	assert.Equal(t, []interface{}{"uidA", "uidB"}, field.Value)
}

func TestStructuredFieldConstructorsDropEmpty(t *testing.T) {
	field := NewNameFieldValue(Name{First: "Ada", Last: "Lovelace"})
	require.Len(t, field.Value, 1)
	obj := field.Value[0].(map[string]interface{})
	assert.Equal(t, "Ada", obj["first"])
	_, hasMiddle := obj["middle"]
	assert.False(t, hasMiddle, "empty sub-fields are omitted")

	field = NewPhoneFieldValue(
		Phone{Number: "555-1111", Region: "US"},
		Phone{Number: "555-2222"},
	)
	require.Len(t, field.Value, 2)
}

func TestTypedFieldsPassTemplateValidation(t *testing.T) {
	template := NewRecordCreate("bankAccount", "Checking", "")
	template.AppendStandardField(NewBankAccountFieldValue(BankAccount{
		AccountType:   "Checking",
		RoutingNumber: "021000021",
		AccountNumber: "1234567890",
	}))
	template.AppendStandardField(NewNameFieldValue(Name{First: "Ada", Last: "Lovelace"}))
	template.AppendCustomField(NewSecurityQuestionFieldValue(SecurityQuestion{
		Question: "First pet?",
		Answer:   "turing",
	}))
	require.NoError(t, template.Validate())
}
