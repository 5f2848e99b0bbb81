// Package validation checks request shapes before they reach the service.
//
// Every failure is a *service.Error of kind service.ErrValidation, so callers
// handle validation and business-rule failures the same way.
package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jacentio/favorites/favorite"
	"github.com/jacentio/favorites/service"
)

var (
	ulidPattern   = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)
	localePattern = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)
)

// Rules applied to patch values, identical to the CreateInput tags.
var patchRules = map[string]string{
	favorite.FieldTitle:     "min=1,max=200",
	favorite.FieldYear:      "min=1888,max=2100",
	favorite.FieldGenres:    "max=10,unique,dive,min=1,max=50",
	favorite.FieldPosterURL: "uri",
	favorite.FieldNotes:     "max=1000",
	favorite.FieldRating:    "min=0,max=10",
}

// Fields that accept an explicit null.
var nullable = map[string]bool{
	favorite.FieldNotes:  true,
	favorite.FieldRating: true,
}

// Recommendation request bounds.
const (
	DefaultLocale              = "en"
	DefaultRecommendationLimit = 5
)

// RecommendationsRequest is the request shape of the recommendations lookup.
type RecommendationsRequest struct {
	MovieID string `json:"movie_id" validate:"required,min=1"`
	Locale  string `json:"locale" validate:"omitempty,locale"`
	Limit   int    `json:"limit" validate:"omitempty,min=1,max=5"`
}

// Validator validates favorites requests.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator with the custom rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	must(v.RegisterValidation("locale", func(fl validator.FieldLevel) bool {
		return localePattern.MatchString(fl.Field().String())
	}))
	must(v.RegisterValidation("favid", func(fl validator.FieldLevel) bool {
		return isFavoriteID(fl.Field().String())
	}))
	return &Validator{validate: v}
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("validation: register rule: %v", err))
	}
}

// ValidateCreate checks a create request body.
func (v *Validator) ValidateCreate(in favorite.CreateInput) error {
	return toServiceError(v.validate.Struct(in))
}

// ValidatePatch checks an update body: at least one field, only known
// fields, never movieId.
func (v *Validator) ValidatePatch(patch favorite.Patch) error {
	if len(patch) == 0 {
		return service.Validation("at least one field is required")
	}
	if patch.Has(favorite.FieldMovieID) {
		return service.Validation("movieId cannot be updated")
	}

	fields := make([]string, 0, len(patch))
	for field := range patch {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var problems []string
	for _, field := range fields {
		if msg := v.checkPatchValue(field, patch[field]); msg != "" {
			problems = append(problems, msg)
		}
	}
	if len(problems) > 0 {
		return service.Validation(strings.Join(problems, "; "))
	}
	return nil
}

func (v *Validator) checkPatchValue(field string, value any) string {
	rule, known := patchRules[field]
	if !known {
		return field + " is not allowed"
	}
	if value == nil {
		if nullable[field] {
			return ""
		}
		return field + " must not be null"
	}

	var normalized any
	switch field {
	case favorite.FieldTitle, favorite.FieldPosterURL, favorite.FieldNotes:
		s, ok := value.(string)
		if !ok {
			return field + " must be a string"
		}
		normalized = s
	case favorite.FieldYear:
		n, ok := toNumber(value)
		if !ok || n != math.Trunc(n) {
			return field + " must be an integer"
		}
		normalized = int(n)
	case favorite.FieldRating:
		n, ok := toNumber(value)
		if !ok {
			return field + " must be a number"
		}
		normalized = n
	case favorite.FieldGenres:
		list, ok := toStrings(value)
		if !ok {
			return field + " must be a list of strings"
		}
		normalized = list
	}

	if err := v.validate.Var(normalized, rule); err != nil {
		return describe(field, err)
	}
	return ""
}

// ValidateListOptions checks listing parameters. A zero limit or an empty
// order selects the default.
func (v *Validator) ValidateListOptions(opts favorite.ListOptions) error {
	var problems []string
	if err := v.validate.Var(opts.Limit, "min=0,max=100"); err != nil {
		problems = append(problems, describe("limit", err))
	}
	if err := v.validate.Var(string(opts.Order), "omitempty,oneof=asc desc"); err != nil {
		problems = append(problems, describe("order", err))
	}
	if len(problems) > 0 {
		return service.Validation(strings.Join(problems, "; "))
	}
	return nil
}

// ValidateID checks that a path identifier is a UUID v4 or a ULID.
func (v *Validator) ValidateID(id string) error {
	if err := v.validate.Var(id, "required,favid"); err != nil {
		return service.Validation(describe("id", err))
	}
	return nil
}

// ValidateRecommendationsRequest checks req and fills in the default locale
// and limit.
func (v *Validator) ValidateRecommendationsRequest(req *RecommendationsRequest) error {
	if err := toServiceError(v.validate.Struct(req)); err != nil {
		return err
	}
	if req.Locale == "" {
		req.Locale = DefaultLocale
	}
	if req.Limit == 0 {
		req.Limit = DefaultRecommendationLimit
	}
	return nil
}

func isFavoriteID(id string) bool {
	if ulidPattern.MatchString(id) {
		return true
	}
	if len(id) != 36 {
		return false
	}
	u, err := uuid.Parse(id)
	return err == nil && u.Version() == 4 && u.Variant() == uuid.RFC4122
}

func toNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// toStrings accepts []string and the []any produced by encoding/json.
func toStrings(value any) ([]string, bool) {
	switch list := value.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func toServiceError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return service.Validation(err.Error())
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, message(fe.Field(), fe))
	}
	return service.Validation(strings.Join(problems, "; "))
}

func describe(field string, err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return message(field, fieldErrs[0])
	}
	return field + " is invalid"
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "unique":
		return field + " must not contain duplicates"
	case "uri":
		return field + " must be a valid URI"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "locale":
		return field + " must look like en or en-US"
	case "favid":
		return field + " must be a UUID v4 or a ULID"
	}
	return field + " is invalid"
}
