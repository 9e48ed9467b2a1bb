package recalc

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Categories interface {
	repository.Repository[*Category]

	ListAll(ctx context.Context) ([]*Category, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Category, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Category, error)
	UpdatePartialTx(ctx context.Context, tx bun.IDB, id uuid.UUID, form CategoryUpdateForm) (*Category, error)
	RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type categories struct {
	repository.Repository[*Category]
	db *bun.DB
}

var _ Categories = (*categories)(nil)

func NewCategoriesRepository(db *bun.DB) Categories {
	repo := repository.NewRepository[*Category](db, repository.ModelHandlers[*Category]{
		NewRecord: func() *Category { return &Category{} },
		GetID: func(c *Category) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Category, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &categories{
		Repository: repo,
		db:         db,
	}
}

func (a *categories) ListAll(ctx context.Context) ([]*Category, error) {
	records := []*Category{}
	err := a.db.NewSelect().
		Model(&records).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *categories) FindByID(ctx context.Context, id uuid.UUID) (*Category, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *categories) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Category, error) {
	record := &Category{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

// UpdatePartialTx updates only the fields the caller provided;
// unspecified fields keep their prior value. Concurrent updates are
// last-writer-wins, with no optimistic-concurrency check.
func (a *categories) UpdatePartialTx(ctx context.Context, tx bun.IDB, id uuid.UUID, form CategoryUpdateForm) (*Category, error) {
	if form.Name == nil && form.Percentage == nil && form.MaxReimbursement == nil {
		return a.FindByIDTx(ctx, tx, id)
	}

	q := tx.NewUpdate().
		Model((*Category)(nil)).
		Where("id = ?", id)

	if form.Name != nil {
		q = q.Set("name = ?", *form.Name)
	}
	if form.Percentage != nil {
		q = q.Set("reimbursement_percentage = ?", *form.Percentage)
	}
	if form.MaxReimbursement != nil {
		q = q.Set("max_reimbursement = ?", *form.MaxReimbursement)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return a.FindByIDTx(ctx, tx, id)
}

func (a *categories) RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().
		Model((*Category)(nil)).
		Where("id = ?", id).
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
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}
