package recalc

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Notifications interface {
	repository.Repository[*Notification]

	ListPending(ctx context.Context, limit int) ([]*Notification, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkAttempted(ctx context.Context, id uuid.UUID, attempts int, lastError string, exhausted bool) error
}

type notifications struct {
	repository.Repository[*Notification]
	db *bun.DB
}

var _ Notifications = (*notifications)(nil)

func NewNotificationsRepository(db *bun.DB) Notifications {
	repo := repository.NewRepository[*Notification](db, repository.ModelHandlers[*Notification]{
		NewRecord: func() *Notification { return &Notification{} },
		GetID: func(n *Notification) uuid.UUID {
			if n == nil {
				return uuid.Nil
			}
			return n.ID
		},
		SetID: func(n *Notification, id uuid.UUID) {
			if n != nil {
				n.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	})

	return &notifications{
		Repository: repo,
		db:         db,
	}
}

func (a *notifications) Create(ctx context.Context, record *Notification, criteria ...repository.InsertCriteria) (*Notification, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *notifications) CreateTx(ctx context.Context, tx bun.IDB, record *Notification, criteria ...repository.InsertCriteria) (*Notification, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record != nil && record.Status == "" {
		record.Status = NotificationPending
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *notifications) ListPending(ctx context.Context, limit int) ([]*Notification, error) {
	records := []*Notification{}
	q := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", NotificationPending).
		Order("created_at ASC")

	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return records, nil
}

func (a *notifications) MarkSent(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	_, err := a.db.NewUpdate().
		Model((*Notification)(nil)).
		Set("status = ?", NotificationSent).
		Set("sent_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// MarkAttempted records a failed delivery attempt. Once attempts are
// exhausted the row moves to failed and the worker stops retrying it.
func (a *notifications) MarkAttempted(ctx context.Context, id uuid.UUID, attempts int, lastError string, exhausted bool) error {
	status := NotificationPending
	if exhausted {
		status = NotificationFailed
	}

	_, err := a.db.NewUpdate().
		Model((*Notification)(nil)).
		Set("status = ?", status).
		Set("attempts = ?", attempts).
		Set("last_error = ?", lastError).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
