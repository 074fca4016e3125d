package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countAny(s, charset string) int {
	n := 0
	for _, c := range s {
		if strings.ContainsRune(charset, c) {
			n++
		}
	}
	return n
}

func TestGeneratePasswordDefaults(t *testing.T) {
	pw, err := GeneratePassword()
	require.NoError(t, err)
	assert.Len(t, pw, 32)

	other, err := GeneratePassword()
	require.NoError(t, err)
	assert.NotEqual(t, pw, other)
}

func TestGeneratePasswordWithClassMinimums(t *testing.T) {
	options := PasswordOptions{
		Length:            20,
		Lowercase:         4,
		Uppercase:         3,
		Digits:            2,
		SpecialCharacters: 1,
	}
	for i := 0; i < 16; i++ {
		pw, err := GeneratePasswordWithOptions(options)
		require.NoError(t, err)
		require.Len(t, pw, 20)
		assert.GreaterOrEqual(t, countAny(pw, lowercaseChars), 4)
		assert.GreaterOrEqual(t, countAny(pw, uppercaseChars), 3)
		assert.GreaterOrEqual(t, countAny(pw, digitChars), 2)
		assert.GreaterOrEqual(t, countAny(pw, specialChars), 1)
	}
}

func TestGeneratePasswordCustomSpecialCharset(t *testing.T) {
	options := PasswordOptions{
		Length:            12,
		SpecialCharacters: 12,
		SpecialCharset:    "#",
	}
	pw, err := GeneratePasswordWithOptions(options)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("#", 12), pw)
}

func TestGeneratePasswordRejectsImpossibleOptions(t *testing.T) {
	_, err := GeneratePasswordWithOptions(PasswordOptions{Length: 4, Digits: 5})
	require.Error(t, err)

	_, err = GeneratePasswordWithOptions(PasswordOptions{Length: 8, Lowercase: -1})
	require.Error(t, err)
}
