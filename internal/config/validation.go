package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"feedsnap/internal/domain"
	"feedsnap/internal/parser"
)

// ValidationError is one problem found in the settings or the source list.
type ValidationError struct {
	ItemName  string // source name or "#index" when the name is missing
	FieldPath string
	Message   string
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		if err.ItemName != "" {
			sb.WriteString(fmt.Sprintf("  %d. [%s] %s: %s\n", i+1, err.ItemName, err.FieldPath, err.Message))
		} else {
			sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.FieldPath, err.Message))
		}
	}
	return sb.String()
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("http_url", validateHTTPURL); err != nil {
		panic(err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "field is required"
	case "min":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", e.Param())
	case "http_url":
		return "must be a valid http or https URL"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

func validateHTTPURL(fl validator.FieldLevel) bool {
	return isHTTPURL(fl.Field().String())
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidateConfig checks the settings structure.
func ValidateConfig(cfg Config) error {
	errs := convertValidatorErrors(validate.Struct(cfg), "", "")
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateSources checks every source descriptor: required fields, URL
// syntax, unique names, and that the extraction pattern compiles.
func ValidateSources(sources []domain.Source) error {
	var errs ValidationErrors
	seen := make(map[string]int, len(sources))

	for i, src := range sources {
		item := src.Name
		if item == "" {
			item = fmt.Sprintf("#%d", i)
		}

		errs = append(errs, convertValidatorErrors(validate.Struct(src), "", item)...)

		if src.Name != "" {
			if first, dup := seen[src.Name]; dup {
				errs = append(errs, ValidationError{
					ItemName:  item,
					FieldPath: "name",
					Message:   fmt.Sprintf("duplicate name (first defined at #%d)", first),
				})
			} else {
				seen[src.Name] = i
			}
		}

		if src.Regex != "" {
			if _, err := parser.Compile(src.Regex, 0); err != nil {
				errs = append(errs, ValidationError{ItemName: item, FieldPath: "regex", Message: err.Error()})
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func convertValidatorErrors(err error, fieldPrefix string, itemName string) ValidationErrors {
	var validationErrors ValidationErrors

	var validatorErrs validator.ValidationErrors
	if errors.As(err, &validatorErrs) {
		for _, e := range validatorErrs {
			// Namespace is "<Type>.<json path>"; drop the type name.
			fieldPath := e.Namespace()
			if i := strings.IndexByte(fieldPath, '.'); i >= 0 {
				fieldPath = fieldPath[i+1:]
			}
			if fieldPrefix != "" {
				fieldPath = fieldPrefix + "." + fieldPath
			}

			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPath,
				Message:   getValidationMessage(e),
			})
		}
	}

	return validationErrors
}
