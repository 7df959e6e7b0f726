package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/watchpoints/points-engine/pkg/enums"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 64 << 10

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// redemption_method accepts any casing of a supported payout method.
	_ = v.RegisterValidation("redemption_method", func(fl validator.FieldLevel) bool {
		return enums.RedemptionMethod(strings.ToLower(strings.TrimSpace(fl.Field().String()))).IsValid()
	})
	return v
}

// DecodeJSONBody decodes a strict JSON body into dest and runs struct
// validation. Unknown fields and trailing documents are rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return bodyError(err, describeDecodeError(err))
	}
	if decoder.More() {
		return bodyError(nil, "unexpected trailing data")
	}

	var fieldErrs validator.ValidationErrors
	switch err := validate.Struct(dest); {
	case err == nil:
		return nil
	case errors.As(err, &fieldErrs):
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Field()] = validationMessage(fe)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
}

func bodyError(cause error, reason string) *pkgerrors.Error {
	details := map[string]any{"error": reason}
	if cause == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid request body").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "invalid request body").WithDetails(details)
}

// describeDecodeError names the offending field where the decoder reports one.
func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.Is(err, io.EOF):
		return "request body is empty"
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type)
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("malformed json at offset %d", syntaxErr.Offset)
	}
	return err.Error()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "uuid", "uuid4":
		return "must be a valid uuid"
	case "redemption_method":
		return "must be a supported redemption method"
	}
	return "is invalid"
}
