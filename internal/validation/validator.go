package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

var crusts = map[string]bool{
	"thin":        true,
	"hand-tossed": true,
	"deep dish":   true,
}

// New returns a validator with the pizza rules registered. Field errors are
// reported under their JSON names.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// oneof splits on spaces, so "deep dish" needs its own rule
	_ = v.RegisterValidation("crust", func(fl validatorv10.FieldLevel) bool {
		return crusts[fl.Field().String()]
	})

	return v
}
