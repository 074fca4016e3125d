package core

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
)

const passwordComponent = "password"

const (
	lowercaseChars = "abcdefghijklmnopqrstuvwxyz"
	uppercaseChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars     = "0123456789"
	specialChars   = `"!@#$%()+;<>=?[]{}^.,`
)

// PasswordOptions shapes generated passwords. Counts are minimums per
// character class; zero leaves the class unconstrained.
type PasswordOptions struct {
	Length            int
	Lowercase         int
	Uppercase         int
	Digits            int
	SpecialCharacters int
	SpecialCharset    string
}

// NewPasswordOptions returns the defaults: 32 characters, no per-class
// minimums.
func NewPasswordOptions() PasswordOptions {
	return PasswordOptions{Length: 32}
}

// GeneratePassword generates a password with the default options.
func GeneratePassword() (string, error) {
	return GeneratePasswordWithOptions(NewPasswordOptions())
}

// GeneratePasswordWithOptions generates a random password satisfying the
// per-class minimums, then shuffles it.
func GeneratePasswordWithOptions(options PasswordOptions) (string, error) {
	if options.Length <= 0 {
		options.Length = 32
	}
	if options.Lowercase < 0 || options.Uppercase < 0 || options.Digits < 0 || options.SpecialCharacters < 0 {
		return "", errors.New(errors.ErrCodeRecordData, passwordComponent, "character counts must not be negative")
	}
	special := options.SpecialCharset
	if special == "" {
		special = specialChars
	}
	required := options.Lowercase + options.Uppercase + options.Digits + options.SpecialCharacters
	if required > options.Length {
		return "", errors.Newf(errors.ErrCodeRecordData, passwordComponent,
			"character counts (%d) exceed the password length (%d)", required, options.Length)
	}

	var b strings.Builder
	if err := sampleInto(&b, lowercaseChars, options.Lowercase); err != nil {
		return "", err
	}
	if err := sampleInto(&b, uppercaseChars, options.Uppercase); err != nil {
		return "", err
	}
	if err := sampleInto(&b, digitChars, options.Digits); err != nil {
		return "", err
	}
	if err := sampleInto(&b, special, options.SpecialCharacters); err != nil {
		return "", err
	}
	all := lowercaseChars + uppercaseChars + digitChars + special
	if err := sampleInto(&b, all, options.Length-required); err != nil {
		return "", err
	}

	password := []byte(b.String())
	if err := shuffle(password); err != nil {
		return "", err
	}
	return string(password), nil
}

func sampleInto(b *strings.Builder, charset string, count int) error {
	for i := 0; i < count; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return errors.Wrap(errors.ErrCodeCrypto, passwordComponent, "random sample", err)
		}
		b.WriteByte(charset[idx.Int64()])
	}
	return nil
}

func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return errors.Wrap(errors.ErrCodeCrypto, passwordComponent, "random shuffle", err)
		}
		b[i], b[int(j.Int64())] = b[int(j.Int64())], b[i]
	}
	return nil
}
