// Package validation adapts gin's go-playground validator so that request
// errors name JSON fields and read well in API responses.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// FieldError is one invalid field in a request body or query.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var (
	setupOnce       sync.Once
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)
)

// ValidUsername reports whether s is an acceptable username.
func ValidUsername(s string) bool {
	return usernamePattern.MatchString(s)
}

// Setup makes gin's validator report JSON (or form) names instead of Go
// field names and registers the "username" tag. Safe to call more than once.
func Setup() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(fieldName)
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return ValidUsername(fl.Field().String())
		})
	})
}

func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// Fields converts a binding error into field errors. It reports false for
// errors that are not about the request content.
func Fields(err error) ([]FieldError, bool) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, FieldError{Field: fe.Field(), Message: message(fe)})
		}
		return out, true
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return []FieldError{{Field: typeErr.Field, Message: "must be a " + typeErr.Type.String()}}, true
	}

	var syntaxErr *json.SyntaxError
	// An empty body surfaces as io.EOF from the JSON decoder.
	if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return []FieldError{{Field: "body", Message: "must be valid JSON"}}, true
	}
	return nil, false
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "gtfield":
		return "must be after " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "alphanumunicode", "alphanum":
		return "may only contain letters and digits"
	case "username":
		return "must be 3-64 characters: letters, digits, underscore or hyphen"
	case "isbn":
		return "must be a valid ISBN"
	default:
		return "is invalid"
	}
}

// Reason is the error reason reported for invalid requests.
const Reason = "validation"

// Response is the 400 body returned for invalid requests.
type Response struct {
	Message string       `json:"message"`
	Reason  string       `json:"reason"`
	Errors  []FieldError `json:"errors"`
}

// NewResponse builds the body for the given field errors.
func NewResponse(errs []FieldError) Response {
	return Response{Message: "validation failed", Reason: Reason, Errors: errs}
}
