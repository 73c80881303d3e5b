package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	modeLogin  = "login"
	modeSignup = "signup"

	msgPasswordMismatch = "Passwords do not match."
	msgCheckEmail       = "Check your email to confirm your account."
	msgFallback         = "Something went wrong"
)

type loginForm struct {
	Mode     string `validate:"oneof=login signup"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=72"`
	Confirm  string `validate:"required_if=Mode signup"`
}

func parseLoginForm(r *http.Request) (loginForm, error) {
	if err := r.ParseForm(); err != nil {
		return loginForm{}, err
	}
	return loginForm{
		Mode:     normalizeMode(r.PostForm.Get("mode")),
		Email:    strings.TrimSpace(r.PostForm.Get("email")),
		Password: r.PostForm.Get("password"),
		Confirm:  r.PostForm.Get("confirm"),
	}, nil
}

func normalizeMode(mode string) string {
	if strings.EqualFold(strings.TrimSpace(mode), modeSignup) {
		return modeSignup
	}
	return modeLogin
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func formValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// check validates f and returns the message to show next to the form, or
// "" when the form is acceptable.
func (f loginForm) check() string {
	if err := formValidator().Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldMessage(verrs[0])
		}
		return msgFallback
	}
	if f.Mode == modeSignup && f.Password != f.Confirm {
		return msgPasswordMismatch
	}
	return ""
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "Email":
		if fe.Tag() == "required" {
			return "Email is required."
		}
		return "Enter a valid email address."
	case "Password":
		if fe.Tag() == "max" {
			return "Password is too long."
		}
		return "Password is required."
	case "Confirm":
		return "Confirm your password."
	default:
		return msgFallback
	}
}
