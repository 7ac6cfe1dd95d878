package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// decimals are compared as numbers
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// fieldErrors turns validator output into response details. Field paths use
// the JSON names, e.g. items[0].quantity.
func fieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "body", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out = append(out, FieldError{Field: field, Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return name + " must contain at least " + fe.Param() + " item(s)"
		}
		if fe.Kind() == reflect.String {
			return name + " must be at least " + fe.Param() + " characters"
		}
		return name + " must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return name + " must be at most " + fe.Param() + " characters"
		}
		return name + " must be at most " + fe.Param()
	case "gt":
		return name + " must be greater than " + fe.Param()
	case "gte":
		return name + " must be " + fe.Param() + " or more"
	case "oneof":
		return name + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "url":
		return name + " must be a valid URL"
	}
	return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the 400 response itself and reports whether the caller may go on.
func (h *HTTPHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeValidation(w, []FieldError{{Field: "body", Message: "Invalid JSON body"}})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidation(w, fieldErrors(err))
		return false
	}
	return true
}

// checkID enforces UUID-shaped path ids when enabled.
func (h *HTTPHandler) checkID(w http.ResponseWriter, id, label string) bool {
	if !h.opts.ValidateIDs {
		return true
	}
	if _, err := uuid.Parse(id); err != nil {
		writeValidation(w, []FieldError{{Field: "id", Message: label + " ID must be a valid UUID"}})
		return false
	}
	return true
}
