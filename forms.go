package recalc

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

	lowercaseRegex = regexp.MustCompile(`[a-z]`)
	uppercaseRegex = regexp.MustCompile(`[A-Z]`)
	numberRegex    = regexp.MustCompile(`[0-9]`)
	specialRegex   = regexp.MustCompile(`[!@#$%^&*(){}\[\]_\-+=]`)
)

// ValidatePasswordStrength enforces the signup password rules: at least
// 8 characters with lower, upper, digit and special characters.
func ValidatePasswordStrength(value any) error {
	password, ok := value.(string)
	if !ok {
		return fmt.Errorf("password must be a string")
	}
	if len(password) < 8 {
		return fmt.Errorf("password too short")
	}
	if !lowercaseRegex.MatchString(password) {
		return fmt.Errorf("password must contain at least one lowercase character")
	}
	if !uppercaseRegex.MatchString(password) {
		return fmt.Errorf("password must contain at least one uppercase character")
	}
	if !numberRegex.MatchString(password) {
		return fmt.Errorf("password must contain at least one number")
	}
	if !specialRegex.MatchString(password) {
		return fmt.Errorf("password must contain at least one special character")
	}
	return nil
}

// SignupForm is the registration payload
type SignupForm struct {
	Mail     string `json:"mail"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (f SignupForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Mail, validation.Required, is.Email),
		validation.Field(&f.Username, validation.Required, validation.Match(usernameRegex)),
		validation.Field(&f.Password, validation.Required, validation.By(ValidatePasswordStrength)),
	)
}

// LoginForm is the login payload
type LoginForm struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (f LoginForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Username, validation.Required),
		validation.Field(&f.Password, validation.Required),
	)
}

// ItemForm is a single claim line in a creation request
type ItemForm struct {
	CategoryID string  `json:"categoryId"`
	Cost       float64 `json:"cost"`
}

// Validate rejects non-positive costs and missing category references
func (f ItemForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.CategoryID, validation.Required, is.UUID),
		validation.Field(&f.Cost, validation.Required, validation.Min(0.0).Exclusive()),
	)
}

// ClaimForm is the claim creation payload. One invalid item rejects the
// whole request; there are no partial claims.
type ClaimForm struct {
	Items []ItemForm `json:"items"`
}

// Validate will run validation rules. Items are Validatable, so ozzo
// validates every element and reports failures keyed by index.
func (f ClaimForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Items, validation.Required, validation.Length(1, 0)),
	)
}

// EstimateForm is the standalone cost-preview payload
type EstimateForm struct {
	CategoryID string  `json:"categoryId"`
	Cost       float64 `json:"cost"`
}

// Validate will run validation rules
func (f EstimateForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.CategoryID, validation.Required, is.UUID),
		validation.Field(&f.Cost, validation.Min(0.0)),
	)
}

// CategoryForm is the category creation payload
type CategoryForm struct {
	Name             string  `json:"name"`
	Percentage       float64 `json:"reimbursementPercentage"`
	MaxReimbursement float64 `json:"maxReimbursement"`
}

// Validate will run validation rules
func (f CategoryForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&f.Percentage, validation.Min(0.0), validation.Max(100.0)),
		validation.Field(&f.MaxReimbursement, validation.Min(0.0)),
	)
}

// CategoryUpdateForm is the partial category update payload; nil fields
// keep their prior value.
type CategoryUpdateForm struct {
	Name             *string  `json:"name"`
	Percentage       *float64 `json:"reimbursementPercentage"`
	MaxReimbursement *float64 `json:"maxReimbursement"`
}

// Validate will run validation rules
func (f CategoryUpdateForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Length(1, 200)),
		validation.Field(&f.Percentage, validation.Min(0.0), validation.Max(100.0)),
		validation.Field(&f.MaxReimbursement, validation.Min(0.0)),
	)
}

// ProcessForm carries the approval decision. The core contract only
// requires a boolean; it travels in the request body.
type ProcessForm struct {
	Accept *bool `json:"accept"`
}

// Validate will run validation rules
func (f ProcessForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Accept, validation.NotNil),
	)
}
