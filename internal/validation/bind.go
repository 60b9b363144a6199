package validation

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds the JSON body into out and validates it.
// On failure it writes a 400 with a {"message"} body and returns the error
// so the handler can stop.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	return bindAndValidate(c, out, v, false)
}

// BindOptionalAndValidate is BindAndValidate for bodies that may be absent.
// An empty body, chunked or not, leaves out at its zero value.
func BindOptionalAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	return bindAndValidate(c, out, v, true)
}

func bindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate, optional bool) error {
	if err := c.ShouldBindJSON(out); err != nil && !(optional && errors.Is(err, io.EOF)) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "The request body is not valid JSON."})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": Describe(err)})
		return err
	}
	return nil
}

// Describe renders validation errors as one human-readable line.
func Describe(err error) string {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, describeField(fe))
	}
	return strings.Join(msgs, "; ")
}

func describeField(fe validatorv10.FieldError) string {
	// drop the root struct name: "ItemsRequest.items[0].size" -> "items[0].size"
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "crust":
		return fmt.Sprintf("%s must be one of: thin, hand-tossed, deep dish", field)
	case "max":
		return fmt.Sprintf("%s exceeds the maximum of %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
