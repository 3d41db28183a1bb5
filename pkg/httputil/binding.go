package httputil

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/careflow-api/pkg/errors"
)

var tagMessages = map[string]string{
	"required":         "is required",
	"required_without": "is required",
	"uuid":             "must be a UUID",
	"email":            "must be an e-mail address",
	"iso_date":         "must be a date in YYYY-MM-DD format",
}

func fieldMessage(fe validator.FieldError) string {
	if msg, ok := tagMessages[fe.Tag()]; ok {
		return fe.Field() + " " + msg
	}
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is not a valid %s", fe.Field(), strings.ReplaceAll(fe.Tag(), "_", " "))
}

// BindError turns a gin binding failure into a 400 naming the offending
// fields.
func BindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return apperrors.BadRequest(strings.Join(msgs, "; "), err)
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.PayloadTooLarge(tooLarge.Limit)
	}
	return apperrors.BadRequest("invalid request body", err)
}
