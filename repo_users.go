package recalc

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Users interface {
	repository.Repository[*User]

	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	ExistsByMailOrUsernameTx(ctx context.Context, tx bun.IDB, mail, username string) (bool, error)
	CountAll(ctx context.Context) (int, error)
	ListByPrefix(ctx context.Context, prefix string, limit int) ([]*User, error)
	MarkVerifiedTx(ctx context.Context, tx bun.IDB, code string) error
	SetRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role Role) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.GetByUsernameTx(ctx, a.db, username)
}

func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.username = ?", strings.TrimSpace(username)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"username": username})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) ExistsByMailOrUsernameTx(ctx context.Context, tx bun.IDB, mail, username string) (bool, error) {
	return tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.mail = ?", strings.ToLower(mail)).
		WhereOr("?TableAlias.username = ?", username).
		Exists(ctx)
}

func (a *users) CountAll(ctx context.Context) (int, error) {
	return a.db.NewSelect().Model((*User)(nil)).Count(ctx)
}

func (a *users) ListByPrefix(ctx context.Context, prefix string, limit int) ([]*User, error) {
	records := []*User{}
	q := a.db.NewSelect().
		Model(&records).
		Order("username ASC")

	if prefix != "" {
		q = q.Where("?TableAlias.username LIKE ?", prefix+"%")
	}

	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return records, nil
}

// MarkVerifiedTx flips the verified flag for the principal holding the
// given verification code and clears the code, so the flip happens
// exactly once. An unknown or already consumed code is a not-found.
func (a *users) MarkVerifiedTx(ctx context.Context, tx bun.IDB, code string) error {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("verified = ?", true).
		Set("verification_code = NULL").
		Where("verification_code = ?", code).
		Where("verified = ?", false).
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"verification_code": code})
	}

	return nil
}

func (a *users) SetRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role Role) (*User, error) {
	record := &User{
		ID:   id,
		Role: role,
	}

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}
