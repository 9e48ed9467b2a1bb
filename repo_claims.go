package recalc

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Claims interface {
	repository.Repository[*Claim]

	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Claim, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Claim, error)
	ListByStatus(ctx context.Context, status ClaimStatus) ([]*Claim, error)
	InsertItemTx(ctx context.Context, tx bun.IDB, item *Item) error
	UpdateTotalsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, totalCost, totalReimbursement float64) error
	MarkProcessedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, target ClaimStatus) (bool, error)
}

type claims struct {
	repository.Repository[*Claim]
	db *bun.DB
}

var _ Claims = (*claims)(nil)

func NewClaimsRepository(db *bun.DB) Claims {
	repo := repository.NewRepository[*Claim](db, repository.ModelHandlers[*Claim]{
		NewRecord: func() *Claim { return &Claim{} },
		GetID: func(c *Claim) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Claim, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	})

	return &claims{
		Repository: repo,
		db:         db,
	}
}

func (a *claims) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Claim, error) {
	record := &Claim{}
	err := tx.NewSelect().
		Model(record).
		Relation("Items").
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

	if _, err := ParseClaimStatus(string(record.Status)); err != nil {
		return nil, err
	}

	return record, nil
}

func (a *claims) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Claim, error) {
	records := []*Claim{}
	err := a.db.NewSelect().
		Model(&records).
		Relation("Items").
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *claims) ListByStatus(ctx context.Context, status ClaimStatus) ([]*Claim, error) {
	records := []*Claim{}
	err := a.db.NewSelect().
		Model(&records).
		Relation("Items").
		Where("?TableAlias.status = ?", status).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *claims) InsertItemTx(ctx context.Context, tx bun.IDB, item *Item) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	_, err := tx.NewInsert().Model(item).Exec(ctx)
	return err
}

func (a *claims) UpdateTotalsTx(ctx context.Context, tx bun.IDB, id uuid.UUID, totalCost, totalReimbursement float64) error {
	_, err := tx.NewUpdate().
		Model((*Claim)(nil)).
		Set("total_cost = ?", totalCost).
		Set("total_reimbursement = ?", totalReimbursement).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// MarkProcessedTx performs the single allowed status transition as one
// conditional write: the update only matches while the claim is still
// pending, so two concurrent approvals resolve to exactly one winner.
func (a *claims) MarkProcessedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, target ClaimStatus) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*Claim)(nil)).
		Set("status = ?", target).
		Where("id = ?", id).
		Where("status = ?", ClaimPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}
