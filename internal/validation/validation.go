// Package validation checks attendee details before they enter a draft.
//
// Rules are declared as validator struct tags on the attendee schema and
// every field is evaluated; the result maps each failing field to one
// user-facing message. Validation has no side effects.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kirinyoku/tix-wizard/internal/domain"
)

const (
	FieldFullName     = "fullName"
	FieldEmail        = "email"
	FieldProfilePhoto = "profilePhoto"
	FieldMessage      = "message"
)

var personNamePattern = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)

type attendeeSchema struct {
	FullName     string `json:"fullName" validate:"required,min=2,max=100,personname"`
	Email        string `json:"email" validate:"required,email"`
	ProfilePhoto string `json:"profilePhoto" validate:"required,remoteurl"`
	Message      string `json:"message" validate:"max=500"`
}

// messages is keyed by "<field>.<tag>".
var messages = map[string]string{
	"fullName.required":      "Full name is required",
	"fullName.min":           "Full name must be at least 2 characters",
	"fullName.max":           "Full name must not exceed 100 characters",
	"fullName.personname":    "Full name can only contain letters, spaces, hyphens and apostrophes",
	"email.required":         "Email is required",
	"email.email":            "Please enter a valid email address",
	"profilePhoto.required":  "Profile photo is required",
	"profilePhoto.remoteurl": "Profile photo must be a valid URL",
	"message.max":            "Message must not exceed 500 characters",
}

var validate = newValidator()

// mustRegister adds a custom rule and panics if validator rejects it.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %q: %v", tag, err))
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "personname", func(fl validator.FieldLevel) bool {
		return personNamePattern.MatchString(fl.Field().String())
	})

	mustRegister(v, "remoteurl", func(fl validator.FieldLevel) bool {
		return IsRemoteURL(fl.Field().String())
	})

	return v
}

// Errors maps a field name to its validation message.
type Errors map[string]string

func (e Errors) Empty() bool {
	return len(e) == 0
}

// Fields returns the failing field names in stable order.
func (e Errors) Fields() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Normalize applies the storage transforms: names and requests are
// trimmed, emails trimmed and lower-cased.
func Normalize(d domain.AttendeeDetails) domain.AttendeeDetails {
	return domain.AttendeeDetails{
		FullName:        strings.TrimSpace(d.FullName),
		Email:           strings.ToLower(strings.TrimSpace(d.Email)),
		ProfilePhotoURL: strings.TrimSpace(d.ProfilePhotoURL),
		SpecialRequest:  strings.TrimSpace(d.SpecialRequest),
	}
}

// Validate checks the normalised form of d and reports every failing field.
func Validate(d domain.AttendeeDetails) Errors {
	n := Normalize(d)

	err := validate.Struct(attendeeSchema{
		FullName:     n.FullName,
		Email:        n.Email,
		ProfilePhoto: n.ProfilePhotoURL,
		Message:      n.SpecialRequest,
	})
	if err == nil {
		return Errors{}
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// only reachable on schema misconfiguration
		return Errors{"_": err.Error()}
	}

	out := make(Errors, len(verrs))
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		msg, ok := messages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = "Invalid value"
		}
		out[fe.Field()] = msg
	}

	return out
}

// IsRemoteURL reports whether s is an absolute http(s) URL with a host.
// Local previews such as data: or blob: URLs are rejected.
func IsRemoteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
