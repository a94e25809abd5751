// Package intake validates booking forms before they reach the store.
package intake

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"vsrepair/booking-service/internal/models"

	"github.com/go-playground/validator/v10"
)

var ErrValidationFailed = errors.New("validation failed")

var (
	ApplianceTypes = []string{"AC", "Washing Machine", "Refrigerator", "Electrical", "Other"}
	PreferredTimes = []string{"Morning (9 AM - 12 PM)", "Afternoon (12 PM - 3 PM)", "Evening (3 PM - 6 PM)", "Anytime"}
)

// FieldErrors maps a form field to a user-facing message. Empty means valid.
type FieldErrors map[string]string

// ValidationError carries the per-field messages of a rejected form.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	return ErrValidationFailed.Error()
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

type form struct {
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone" validate:"required,phone10"`
	City          string `json:"city" validate:"required"`
	ApplianceType string `json:"appliance_type" validate:"appliance_type"`
	PreferredTime string `json:"preferred_time" validate:"preferred_time"`
	Message       string `json:"message"`
}

var messages = map[string]string{
	"name.required":                 "Name is required",
	"email.email":                   "Please enter a valid email address",
	"phone.required":                "Phone number is required",
	"phone.phone10":                 "Please enter a valid 10-digit phone number",
	"city.required":                 "City is required",
	"appliance_type.appliance_type": "Please select an appliance type",
	"preferred_time.preferred_time": "Please select a preferred time",
}

var (
	validate   = newValidator()
	tenDigits  = regexp.MustCompile(`^[0-9]{10}$`)
	whitespace = regexp.MustCompile(`\s+`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "phone10", func(fl validator.FieldLevel) bool {
		return tenDigits.MatchString(stripSpaces(fl.Field().String()))
	})
	mustRegister(v, "appliance_type", oneOf(ApplianceTypes))
	mustRegister(v, "preferred_time", oneOf(PreferredTimes))
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn, true); err != nil {
		panic(err)
	}
}

func oneOf(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		for _, candidate := range allowed {
			if value == candidate {
				return true
			}
		}
		return false
	}
}

// Normalize trims text fields and strips whitespace from the phone number.
func Normalize(input models.ServiceRequestInput) models.ServiceRequestInput {
	return models.ServiceRequestInput{
		Name:          strings.TrimSpace(input.Name),
		Email:         strings.TrimSpace(input.Email),
		Phone:         stripSpaces(input.Phone),
		City:          strings.TrimSpace(input.City),
		PostalCode:    strings.TrimSpace(input.PostalCode),
		ApplianceType: strings.TrimSpace(input.ApplianceType),
		Brand:         strings.TrimSpace(input.Brand),
		ApplianceAge:  strings.TrimSpace(input.ApplianceAge),
		PreferredTime: strings.TrimSpace(input.PreferredTime),
		Message:       strings.TrimSpace(input.Message),
	}
}

// Validate checks a form without side effects.
func Validate(input models.ServiceRequestInput) FieldErrors {
	input = Normalize(input)
	errs := FieldErrors{}
	err := validate.Struct(form{
		Name:          input.Name,
		Email:         input.Email,
		Phone:         input.Phone,
		City:          input.City,
		ApplianceType: input.ApplianceType,
		PreferredTime: input.PreferredTime,
		Message:       input.Message,
	})
	if err == nil {
		return errs
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["form"] = err.Error()
		return errs
	}
	for _, fe := range verrs {
		field := fe.Field()
		if _, seen := errs[field]; seen {
			continue
		}
		msg, ok := messages[field+"."+fe.Tag()]
		if !ok {
			msg = "Invalid value"
		}
		errs[field] = msg
	}
	return errs
}

// Check returns a *ValidationError when input is rejected.
func Check(input models.ServiceRequestInput) error {
	if fields := Validate(input); len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func stripSpaces(value string) string {
	return whitespace.ReplaceAllString(value, "")
}
