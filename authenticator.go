package recalc

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const verificationCodeLength = 10

const verificationCodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Auther handles account lifecycle: registration, login, and email
// verification.
type Auther struct {
	repo   RepositoryManager
	tokens TokenService
	logger Logger
}

// NewAuthenticator creates a new Auther instance
func NewAuthenticator(repo RepositoryManager, tokens TokenService, logger Logger) *Auther {
	if logger == nil {
		logger = defLogger{}
	}
	return &Auther{
		repo:   repo,
		tokens: tokens,
		logger: logger,
	}
}

// Login verifies credentials and issues a session token. Unknown
// usernames and wrong passwords collapse into the same failure; an
// unverified account is reported distinctly, and no token is issued on
// any failure path.
func (a *Auther) Login(ctx context.Context, form LoginForm) (*User, string, error) {
	if err := form.Validate(); err != nil {
		return nil, "", ValidationError(err)
	}

	user, err := a.repo.Users().GetByUsername(ctx, form.Username)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", StorageError(err, "login lookup failed")
	}

	if !user.Verified {
		return nil, "", ErrNotVerified
	}

	if err := ComparePasswordAndHash(form.Password, user.PasswordHash); err != nil {
		return nil, "", err
	}

	token, err := a.tokens.Generate(user.ID.String())
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// Register creates an unverified account. The user row and its
// verification outbox row commit in one transaction, so a registered
// account always has a pending notification on the way.
func (a *Auther) Register(ctx context.Context, form SignupForm) (*User, error) {
	if err := form.Validate(); err != nil {
		return nil, ValidationError(err)
	}

	mail := strings.ToLower(strings.TrimSpace(form.Mail))

	hash, err := HashPassword(form.Password)
	if err != nil {
		return nil, err
	}

	code, err := generateVerificationCode()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate verification code")
	}

	uid, err := hashid.NewUUID(mail)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate user id")
	}

	user := &User{
		ID:               uid,
		Mail:             mail,
		Username:         form.Username,
		PasswordHash:     hash,
		Role:             RoleUser,
		Verified:         false,
		VerificationCode: code,
	}

	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := a.repo.Users().ExistsByMailOrUsernameTx(ctx, tx, mail, form.Username)
		if err != nil {
			return StorageError(err, "registration lookup failed")
		}

		if taken {
			return ErrIdentifierTaken
		}

		created, err := a.repo.Users().CreateTx(ctx, tx, user)
		if err != nil {
			return StorageError(err, "failed to create user")
		}
		user = created

		notification := &Notification{
			UserID:    user.ID,
			Kind:      NotificationKindVerification,
			Recipient: user.Mail,
			Code:      code,
			Status:    NotificationPending,
		}

		if _, err := a.repo.Notifications().CreateTx(ctx, tx, notification); err != nil {
			return StorageError(err, "failed to enqueue verification notification")
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	a.logger.Info("registered user %s", user.Username)

	return user, nil
}

// VerifyEmail consumes a verification code. The code is single use: the
// flip clears it, so a second attempt with the same code is a not-found.
func (a *Auther) VerifyEmail(ctx context.Context, code string) error {
	if code == "" {
		return ValidationError(errors.New("verification code is required", errors.CategoryValidation))
	}

	return a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := a.repo.Users().MarkVerifiedTx(ctx, tx, code); err != nil {
			if repository.IsRecordNotFound(err) {
				return NotFoundError("verification code", code)
			}
			return StorageError(err, "failed to verify account")
		}
		return nil
	})
}

// MakeManager elevates a user to manager. Only admins may elevate, and
// a target already at manager rank or above is a conflict rather than a
// silent no-op.
func (a *Auther) MakeManager(ctx context.Context, actor *User, targetID uuid.UUID) (*User, error) {
	if !actor.Role.IsAtLeast(RoleAdmin) {
		return nil, ErrForbidden
	}

	var target *User

	err := a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := a.repo.Users().GetByIDTx(ctx, tx, targetID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return NotFoundError("user", targetID.String())
			}
			return StorageError(err, "elevation lookup failed")
		}

		if current.Role.IsAtLeast(RoleManager) {
			return ErrAlreadyElevated
		}

		if _, err := a.repo.Users().SetRoleTx(ctx, tx, targetID, RoleManager); err != nil {
			return StorageError(err, "failed to update role")
		}

		target = current
		target.Role = RoleManager

		return nil
	})

	if err != nil {
		return nil, err
	}

	a.logger.Info("user %s elevated to manager by %s", target.Username, actor.Username)

	return target, nil
}

func generateVerificationCode() (string, error) {
	max := big.NewInt(int64(len(verificationCodeAlphabet)))
	out := make([]byte, verificationCodeLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = verificationCodeAlphabet[n.Int64()]
	}
	return string(out), nil
}
