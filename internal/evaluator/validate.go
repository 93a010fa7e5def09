package evaluator

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/essayeval/internal/model"
)

// ValidationError names the first constraint a submission violates.
type ValidationError struct {
	Field      string
	Constraint string
	Param      string
	Message    string
}

func (e *ValidationError) Error() string {
	return "invalid submission: " + e.Message
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("utf8", func(fl validator.FieldLevel) bool {
			return utf8.ValidString(fl.Field().String())
		})
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate normalizes a submission and checks it against the input bounds.
// It has no side effects and never calls a backend.
func Validate(sub model.Submission) (model.EvaluationInput, error) {
	in := model.EvaluationInput{
		Content:      normalizeText(sub.Content),
		QuestionText: normalizeText(sub.QuestionText),
		ExamType:     strings.TrimSpace(sub.ExamType),
		Subject:      strings.TrimSpace(sub.Subject),
	}
	if sub.TimeSpent != nil {
		t := *sub.TimeSpent
		in.TimeSpent = &t
	}
	if sub.Metadata != nil {
		m := *sub.Metadata
		m.Pauses = slices.Clone(sub.Metadata.Pauses)
		m.Source = model.Source(strings.ToLower(strings.TrimSpace(string(m.Source))))
		in.Metadata = &m
	}

	if err := validatorInstance().Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return model.EvaluationInput{}, toValidationError(verrs[0])
		}
		return model.EvaluationInput{}, fmt.Errorf("validate submission: %w", err)
	}
	return in, nil
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

func toValidationError(fe validator.FieldError) *ValidationError {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	ve := &ValidationError{Field: field, Constraint: fe.Tag(), Param: fe.Param()}

	switch fe.Tag() {
	case "required":
		ve.Message = field + " is required"
	case "min":
		if fe.Kind() == reflect.String {
			ve.Message = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		} else {
			ve.Message = fmt.Sprintf("%s must be at least %s", field, fe.Param())
		}
	case "max":
		if fe.Kind() == reflect.String {
			ve.Message = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		} else {
			ve.Message = fmt.Sprintf("%s must be at most %s", field, fe.Param())
		}
	case "oneof":
		ve.Message = fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "utf8":
		ve.Message = field + " must be valid UTF-8 text"
	case "gte":
		ve.Message = fmt.Sprintf("%s must not be less than %s", field, fe.Param())
	default:
		ve.Message = fmt.Sprintf("%s failed the %q constraint", field, fe.Tag())
	}
	return ve
}

// ValidateMetadata checks standalone telemetry. The returned value owns its pauses.
func ValidateMetadata(meta model.Metadata) (model.Metadata, error) {
	meta.Pauses = slices.Clone(meta.Pauses)
	meta.Source = model.Source(strings.ToLower(strings.TrimSpace(string(meta.Source))))
	if err := validatorInstance().Struct(meta); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return model.Metadata{}, toValidationError(verrs[0])
		}
		return model.Metadata{}, fmt.Errorf("validate metadata: %w", err)
	}
	return meta, nil
}
