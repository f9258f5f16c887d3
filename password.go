package account

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

var (
	reUpper  = regexp.MustCompile(`[A-Z]`)
	reLower  = regexp.MustCompile(`[a-z]`)
	reDigit  = regexp.MustCompile(`[0-9]`)
	reSymbol = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// PasswordPolicy enforces the minimum strength for every stored password.
type PasswordPolicy struct {
	MinLength int
}

// DefaultPasswordPolicy is the production policy: at least 8 characters
// with upper case, lower case, a digit and a symbol.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 8}
}

func (p PasswordPolicy) normalized() PasswordPolicy {
	if p.MinLength <= 0 {
		p.MinLength = 8
	}
	return p
}

// Validate returns a structured policy error describing the first rule
// the candidate password violates.
func (p PasswordPolicy) Validate(password string) error {
	p = p.normalized()

	err := validation.Validate(password,
		validation.Required.Error("password is required"),
		validation.Length(p.MinLength, 0).Error("password is too short"),
		validation.Match(reUpper).Error("password needs an upper case letter"),
		validation.Match(reLower).Error("password needs a lower case letter"),
		validation.Match(reDigit).Error("password needs a digit"),
		validation.Match(reSymbol).Error("password needs a symbol"),
	)
	if err != nil {
		return NewPasswordPolicyError(err)
	}

	return nil
}
