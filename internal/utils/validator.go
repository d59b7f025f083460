package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

// Validator validates request structs using `validate` tags and reports
// human readable messages keyed by the JSON field name.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// NewValidator creates a validator with English messages
func NewValidator() (*Validator, error) {
	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	if err := entranslations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, fmt.Errorf("failed to register validator translations: %w", err)
	}

	return &Validator{validate: v, trans: trans}, nil
}

// Struct validates s and returns a single message describing every violation
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, fieldErr.Translate(v.trans))
	}

	return errors.New(strings.Join(messages, "; "))
}

// SanitizeEmail normalizes an email address for storage and lookup
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
