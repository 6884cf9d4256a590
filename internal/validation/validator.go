// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

// Package validation checks request and config structs with
// go-playground/validator v10.
//
// One validator is shared process-wide. Field names in errors are the
// struct's json names, so API clients see the key they sent.
//
// Custom tags:
//   - provider: a supported provider id
//   - synctype: scheduled, manual, retry or failover
//
// Usage:
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    respondAPIError(w, http.StatusBadRequest, verr.ToAPIError())
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/vitalsync/internal/models"
)

const errorCode = "VALIDATION_ERROR"

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string      // json name, or the Go name when untagged
	Tag     string      // rule that failed, e.g. "required"
	Param   string      // rule parameter, e.g. "16" for max=16
	Value   interface{} // offending value
	Message string
}

// RequestValidationError collects every failed rule for one struct.
type RequestValidationError struct {
	Fields []FieldError
}

func (e *RequestValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// ToAPIError renders the failures as a VALIDATION_ERROR. A single failure
// is reported flat; several are listed under details.fields.
func (e *RequestValidationError) ToAPIError() *models.APIError {
	switch len(e.Fields) {
	case 0:
		return &models.APIError{Code: errorCode, Message: "Validation failed"}
	case 1:
		f := e.Fields[0]
		return &models.APIError{
			Code:    errorCode,
			Message: f.Message,
			Details: map[string]interface{}{"field": f.Field, "tag": f.Tag, "value": f.Value},
		}
	}

	fields := make([]map[string]interface{}, len(e.Fields))
	for i, f := range e.Fields {
		fields[i] = map[string]interface{}{"field": f.Field, "tag": f.Tag, "message": f.Message}
	}
	return &models.APIError{
		Code:    errorCode,
		Message: e.Error(),
		Details: map[string]interface{}{"fields": fields},
	}
}

// GetValidator returns the shared validator.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonName)
		// Registration only fails on an empty tag or nil func.
		_ = v.RegisterValidation("provider", func(fl validator.FieldLevel) bool {
			return models.Provider(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("synctype", func(fl validator.FieldLevel) bool {
			return models.SyncType(fl.Field().String()).Valid()
		})
		validate = v
	})
	return validate
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	default:
		return name
	}
}

// ValidateStruct returns nil when s passes every rule.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	out := make([]FieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Value:   fe.Value(),
			Message: message(fe),
		}
	}
	return &RequestValidationError{Fields: out}
}

var fixedMessages = map[string]string{
	"required":    "is required",
	"required_if": "is required",
	"provider":    "must be a supported provider",
	"synctype":    "must be one of: scheduled, manual, retry, failover",
	"timezone":    "must be a valid IANA timezone",
	"uuid":        "must be a valid UUID",
}

var paramMessages = map[string]string{
	"oneof":    "must be one of: %s",
	"datetime": "must match the format %s",
	"gte":      "must be greater than or equal to %s",
	"lte":      "must be less than or equal to %s",
	"gt":       "must be greater than %s",
	"lt":       "must be less than %s",
}

func message(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	if m, ok := fixedMessages[fe.Tag()]; ok {
		return field + " " + m
	}
	if m, ok := paramMessages[fe.Tag()]; ok {
		return field + " " + fmt.Sprintf(m, param)
	}

	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", field, param, unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", field, param, unit)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
