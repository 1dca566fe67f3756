package tools

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tombee/referral-agent/pkg/errors"
)

var validate = newValidator()

// newValidator reports json tag names in field errors so messages match the
// argument names the model sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode converts raw tool inputs into out (a pointer to a struct with json
// tags) and runs its validate tags. Failures are returned as
// *errors.ValidationError naming the offending json field.
func Decode(inputs map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(inputs)
	if err != nil {
		return &errors.ValidationError{Field: "inputs", Message: err.Error()}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &errors.ValidationError{
				Field:   typeErr.Field,
				Message: fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type),
			}
		}
		return &errors.ValidationError{Field: "inputs", Message: err.Error()}
	}
	if err := validate.Struct(out); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &errors.ValidationError{Field: "inputs", Message: err.Error()}
	}
	fe := verrs[0]
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		msg = fmt.Sprintf("%s must be a date in %s format", field, fe.Param())
	case "email":
		msg = fmt.Sprintf("%s must be a valid email address", field)
	case "min", "gte":
		msg = fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		msg = fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		msg = fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
	return &errors.ValidationError{Field: field, Message: msg}
}

// Success builds a successful tool output.
func Success(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["success"] = true
	return out
}

// Failure builds a tool output reporting err to the model. The message is
// errors.UserMessage(err), so upstream and validation errors read cleanly.
func Failure(err error) map[string]interface{} {
	return map[string]interface{}{
		"success": false,
		"error":   errors.UserMessage(err),
	}
}

// Failuref builds a failure output from a format string.
func Failuref(format string, args ...interface{}) map[string]interface{} {
	return map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
	}
}
