package middleware

import (
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/careflow-api/internal/journey"
	"github.com/jwalitptl/careflow-api/internal/model"
)

func parses[T any](parse func(string) (T, error)) validator.Func {
	return func(fl validator.FieldLevel) bool {
		_, err := parse(fl.Field().String())
		return err == nil
	}
}

// CustomValidators are the binding tags for journey enums.
var CustomValidators = map[string]validator.Func{
	"priority":        parses(model.ParsePriority),
	"order_kind":      parses(journey.ParseOrderKind),
	"sub_status_kind": parses(journey.ParseSubStatusKind),
	"sub_status":      parses(model.ParseSubStatus),
	"iso_date": func(fl validator.FieldLevel) bool {
		_, err := time.Parse(journey.DateLayout, fl.Field().String())
		return err == nil
	},
}

// RegisterValidators installs CustomValidators on gin's validator and makes
// errors report JSON field names.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	for tag, fn := range CustomValidators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return nil
}
