package recalc

import "github.com/goliatone/go-errors"

const (
	TextCodeUnauthenticated  = "unauthenticated"
	TextCodeForbidden        = "forbidden"
	TextCodeInvalidCreds     = "invalid_credentials"
	TextCodeNotVerified      = "account_not_verified"
	TextCodeAlreadyTaken     = "identifier_already_taken"
	TextCodeAlreadyProcessed = "claim_already_processed"
	TextCodeAlreadyElevated  = "user_already_elevated"
	TextCodeValidationFailed = "validation_failed"
	TextCodeStorageFailure   = "storage_unavailable"
)

// ErrUnauthenticated covers every identity failure on protected routes:
// missing token, malformed or expired token, and a valid token whose
// principal no longer exists. Callers cannot tell these apart.
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden means identity is known but the role is insufficient.
// Distinct from ErrUnauthenticated; callers must not conflate the two.
var ErrForbidden = errors.New("insufficient role", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrInvalidCredentials is the single undifferentiated login failure for
// both unknown usernames and wrong passwords.
var ErrInvalidCredentials = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrNotVerified is returned when credentials match but the account has
// not confirmed its verification code yet. Reported distinctly so the
// client can prompt verification.
var ErrNotVerified = errors.New("account is not verified", errors.CategoryAuth).
	WithTextCode(TextCodeNotVerified).
	WithCode(errors.CodeForbidden)

// ErrIdentifierTaken is returned when a registration collides with an
// existing mail or username.
var ErrIdentifierTaken = errors.New("mail or username already taken", errors.CategoryConflict).
	WithTextCode(TextCodeAlreadyTaken).
	WithCode(errors.CodeConflict)

// ErrClaimAlreadyProcessed is returned on any transition attempt from a
// terminal claim status. A conflict, not a retryable failure.
var ErrClaimAlreadyProcessed = errors.New("claim already processed", errors.CategoryConflict).
	WithTextCode(TextCodeAlreadyProcessed).
	WithCode(errors.CodeConflict)

// ErrAlreadyElevated is returned when the elevation target already holds
// manager rank or above.
var ErrAlreadyElevated = errors.New("user already has manager role or above", errors.CategoryConflict).
	WithTextCode(TextCodeAlreadyElevated).
	WithCode(errors.CodeConflict)

// ValidationError wraps a form validation failure. Detected and rejected
// before any transaction opens.
func ValidationError(err error) *errors.Error {
	return errors.Wrap(err, errors.CategoryValidation, "validation failed").
		WithTextCode(TextCodeValidationFailed).
		WithCode(errors.CodeBadRequest)
}

// StorageError wraps a transient persistence failure. Surfaced
// generically, never retried by the core.
func StorageError(err error, msg string) *errors.Error {
	return errors.Wrap(err, errors.CategoryInternal, msg).
		WithTextCode(TextCodeStorageFailure).
		WithCode(errors.CodeInternal)
}

// NotFoundError builds a not-found failure for a named entity
func NotFoundError(entity string, id string) *errors.Error {
	return errors.New(entity+" not found", errors.CategoryNotFound).
		WithCode(errors.CodeNotFound).
		WithMetadata(map[string]any{"id": id})
}
