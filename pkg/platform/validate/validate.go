// Package validate wraps a shared go-playground validator for request structs.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "popai/pkg/domain-errors"
)

// v is initialised once at package load. Custom registrations belong in init.
var v = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// Report JSON field names so messages match what clients sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// Struct validates s using its validate tags. Failures are returned as a
// CodeValidation domain error with one message per failing field.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// Non-struct targets carry no tags.
			return nil
		}
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
	}
	return dErrors.New(dErrors.CodeValidation, strings.Join(msgs, "; "))
}
