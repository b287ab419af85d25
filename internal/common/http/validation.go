package http

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
	})
	return validate
}

// DecodeAndValidate reads a JSON body into v and runs struct validation on it.
// On failure the error envelope is already written and false is returned.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := DecodeJSON(r, v); err != nil {
		WriteErrorEnvelope(w, http.StatusBadRequest, CodeInvalidJSON, "invalid json body", nil, getTraceIDFromContext(r.Context()))
		return false
	}

	if err := Validator().Struct(v); err != nil {
		WriteErrorEnvelope(w, http.StatusBadRequest, CodeValidationFailed, "validation failed", ValidationDetails(err), getTraceIDFromContext(r.Context()))
		return false
	}

	return true
}

func ValidationDetails(err error) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Namespace()] = fe.Tag()
	}
	return details
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}
