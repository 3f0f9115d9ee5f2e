package authapi

import (
	"errors"
	"strings"

	"taskman/cmd/security/password"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// validateSignup applies the request-level rules. Enroll re-checks the
// password policy, so a request passing here can still be rejected there.
func validateSignup(req credentialsRequest, cfg Config, policy password.Config) error {
	return validation.ValidateStruct(&req,
		validation.Field(
			&req.Username,
			validation.Required,
			validation.Length(cfg.UsernameMin, cfg.UsernameMax),
			is.PrintableASCII,
			validation.By(noSurroundingSpace),
		),
		validation.Field(
			&req.Password,
			validation.Required,
			validation.By(passwordPolicy(policy)),
		),
	)
}

func validateLogin(req credentialsRequest) error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Username, validation.Required),
		validation.Field(&req.Password, validation.Required),
	)
}

func noSurroundingSpace(value interface{}) error {
	s, _ := value.(string)
	if s != strings.TrimSpace(s) {
		return errors.New("must not start or end with whitespace")
	}
	return nil
}

func passwordPolicy(cfg password.Config) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if err := cfg.Validate(s); err != nil {
			return errors.New(policyMessage(err))
		}
		return nil
	}
}

func policyMessage(err error) string {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return "is too short"
	case errors.Is(err, password.ErrPasswordTooLong):
		return "is too long"
	case errors.Is(err, password.ErrWeakPassword):
		return "is too weak"
	default:
		return "is invalid"
	}
}
