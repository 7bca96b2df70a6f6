package service

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/jpmendieta/taskflow-api/internal/models"
	appErrors "github.com/jpmendieta/taskflow-api/pkg/errors"
)

// Working-hours window for task times, inclusive on both ends.
const (
	workdayStartMinute = 6 * 60
	workdayEndMinute   = 18 * 60
)

var phonePattern = regexp.MustCompile(`^\+?\d{0,2}\s?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}$`)
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NewValidator builds the request validator with the domain rules
// registered. Field names in reported errors follow the json tags.
func NewValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	must(v.RegisterValidation("alpha_space", func(fl validator.FieldLevel) bool {
		return isAlphaSpace(fl.Field().String())
	}))
	must(v.RegisterValidation("email_shape", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	}))
	must(v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	}))
	must(v.RegisterValidation("task_time", func(fl validator.FieldLevel) bool {
		return withinWorkday(fl.Field().String())
	}))
	must(v.RegisterValidation("task_status", func(fl validator.FieldLevel) bool {
		return models.TaskStatus(fl.Field().String()).Assignable()
	}))

	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// isAlphaSpace accepts one or more whitespace-separated words made of
// letters only. The check applies after trimming, so surrounding spaces
// never fail a name on their own.
func isAlphaSpace(s string) bool {
	words := strings.Fields(strings.TrimSpace(s))
	if len(words) == 0 {
		return false
	}
	for _, word := range words {
		for _, r := range word {
			if !unicode.IsLetter(r) {
				return false
			}
		}
	}
	return true
}

// titleCase trims the value and capitalizes each word, lowering the
// rest. Idempotent: applying it twice yields the same result.
func titleCase(s string) string {
	words := strings.Fields(strings.TrimSpace(s))
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// withinWorkday parses an HH:MM value and checks the 06:00-18:00 window,
// boundaries included.
func withinWorkday(raw string) bool {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= workdayStartMinute && minutes <= workdayEndMinute
}

// ruleMessages maps validation tags to the human-readable reason reported
// next to the offending field.
var ruleMessages = map[string]string{
	"required":    "is required",
	"alpha_space": "may only contain letters and spaces",
	"email_shape": "is not a valid email address",
	"phone":       "is not a valid phone number",
	"task_time":   "must be between 06:00 and 18:00",
	"task_status": "is not a recognized status",
	"eq":          "must be true to keep the record assignable",
}

// validationError converts validator output into the field-scoped error
// shape, reporting every violation at once.
func validationError(err error) *appErrors.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	fields := make([]appErrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		message, ok := ruleMessages[fe.Tag()]
		if !ok {
			message = "is invalid"
		}
		fields = append(fields, appErrors.FieldError{Field: fe.Field(), Message: message})
	}
	return appErrors.Validation(fields...)
}

func fieldError(field, message string) *appErrors.Error {
	return appErrors.Validation(appErrors.FieldError{Field: field, Message: message})
}
