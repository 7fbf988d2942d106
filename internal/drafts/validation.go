package drafts

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/basecamp/internal/adventures"
	"github.com/go-playground/validator/v10"
)

const (
	tagCalendarDate = "calendar_date"
	tagFinite       = "finite"
)

var fieldLabels = map[string]string{
	"type":                     "Type",
	"date":                     "Date",
	"location.name":            "Location",
	"location.coordinates.lat": "Latitude",
	"location.coordinates.lng": "Longitude",
	"location.elevation":       "Elevation",
	"details.species":          "Species",
	"details.grade":            "Grade",
	"details.style":            "Style",
	"details.size":             "Size",
	"details.length":           "Length",
	"details.weight":           "Weight",
	"details.height":           "Height",
	"details.method":           "Method",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	instance := validator.New(validator.WithRequiredStructEnabled())
	instance.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := instance.RegisterValidation(tagCalendarDate, func(level validator.FieldLevel) bool {
		_, err := adventures.ParseDate(level.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
	if err := instance.RegisterValidation(tagFinite, func(level validator.FieldLevel) bool {
		value := level.Field().Float()
		return !math.IsNaN(value) && !math.IsInf(value, 0)
	}); err != nil {
		panic(err)
	}
	return instance
}

// ValidationError maps form field paths to the message shown next to them.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	paths := make([]string, 0, len(e.Fields))
	for path := range e.Fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	parts := make([]string, 0, len(paths))
	for _, path := range paths {
		parts = append(parts, fmt.Sprintf("%s: %s", path, e.Fields[path]))
	}
	return fmt.Sprintf("%v: %s", ErrInvalidDraft, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidDraft
}

// Message returns the message recorded for path, or "".
func (e *ValidationError) Message(path string) string {
	return e.Fields[path]
}

// Validate checks the draft against the schema of its active variant.
func (d *Draft) Validate() error {
	if _, err := d.Details(); err != nil {
		return &ValidationError{Fields: map[string]string{"type": "Type must be one of fishing hunting climbing"}}
	}
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	result := &ValidationError{Fields: make(map[string]string, len(fieldErrors))}
	for _, fieldError := range fieldErrors {
		path := fieldPath(fieldError.Namespace())
		if _, exists := result.Fields[path]; exists {
			continue
		}
		result.Fields[path] = message(path, fieldError)
	}
	return result
}

func fieldPath(namespace string) string {
	if index := strings.Index(namespace, "."); index >= 0 {
		return namespace[index+1:]
	}
	return namespace
}

func message(path string, fieldError validator.FieldError) string {
	label := labelFor(path)
	switch fieldError.Tag() {
	case "required":
		return label + " is required"
	case "gt":
		return label + " must be positive"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", label, fieldError.Param())
	case "min", "max":
		return label + " is out of range"
	case tagFinite:
		return label + " must be a finite number"
	case tagCalendarDate:
		return label + " must be a date like " + adventures.DateLayout
	default:
		return label + " is invalid"
	}
}

func labelFor(path string) string {
	base := strings.TrimSuffix(path, ".value")
	suffix := ""
	if strings.HasSuffix(base, ".unit") {
		base = strings.TrimSuffix(base, ".unit")
		suffix = " unit"
	}
	base = strings.TrimSuffix(base, ".type")
	if label, ok := fieldLabels[base]; ok {
		return label + suffix
	}
	segments := strings.Split(base, ".")
	last := segments[len(segments)-1]
	if last == "" {
		return "Field"
	}
	return strings.ToUpper(last[:1]) + last[1:] + suffix
}
