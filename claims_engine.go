package recalc

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ClaimService runs the claim lifecycle: estimate, create, list, and
// the single pending-to-terminal transition.
type ClaimService struct {
	repo   RepositoryManager
	logger Logger
}

// NewClaimService creates a new ClaimService instance
func NewClaimService(repo RepositoryManager, logger Logger) *ClaimService {
	if logger == nil {
		logger = defLogger{}
	}
	return &ClaimService{
		repo:   repo,
		logger: logger,
	}
}

// EstimateItem previews the reimbursement for a single item without
// persisting anything. Uses the same arithmetic as claim creation, so
// preview and stored values always agree.
func (s *ClaimService) EstimateItem(ctx context.Context, form EstimateForm) (float64, error) {
	if err := form.Validate(); err != nil {
		return 0, ValidationError(err)
	}

	categoryID, err := uuid.Parse(form.CategoryID)
	if err != nil {
		return 0, ValidationError(err)
	}

	category, err := s.repo.Categories().FindByID(ctx, categoryID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return 0, NotFoundError("category", form.CategoryID)
		}
		return 0, StorageError(err, "estimate lookup failed")
	}

	return Estimate(category, form.Cost), nil
}

// CreateClaim persists a claim and all its items in one transaction.
// Reimbursements and totals are computed from the category rules as
// they exist right now; a missing category aborts the whole claim.
func (s *ClaimService) CreateClaim(ctx context.Context, owner *User, form ClaimForm) (*Claim, error) {
	if err := form.Validate(); err != nil {
		return nil, ValidationError(err)
	}

	var claim *Claim

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &Claim{
			ID:     uuid.New(),
			UserID: owner.ID,
			Status: ClaimPending,
		}

		created, err := s.repo.Claims().CreateTx(ctx, tx, record)
		if err != nil {
			return StorageError(err, "failed to create claim")
		}

		var totalCost, totalReimbursement float64

		for _, itemForm := range form.Items {
			categoryID, err := uuid.Parse(itemForm.CategoryID)
			if err != nil {
				return ValidationError(err)
			}

			category, err := s.repo.Categories().FindByIDTx(ctx, tx, categoryID)
			if err != nil {
				if repository.IsRecordNotFound(err) {
					return NotFoundError("category", itemForm.CategoryID)
				}
				return StorageError(err, "claim category lookup failed")
			}

			item := &Item{
				ClaimID:       created.ID,
				CategoryID:    category.ID,
				Cost:          itemForm.Cost,
				Reimbursement: Estimate(category, itemForm.Cost),
			}

			if err := s.repo.Claims().InsertItemTx(ctx, tx, item); err != nil {
				return StorageError(err, "failed to create claim item")
			}

			totalCost += item.Cost
			totalReimbursement += item.Reimbursement
		}

		if err := s.repo.Claims().UpdateTotalsTx(ctx, tx, created.ID, totalCost, totalReimbursement); err != nil {
			return StorageError(err, "failed to store claim totals")
		}

		claim, err = s.repo.Claims().FindByIDTx(ctx, tx, created.ID)
		if err != nil {
			return StorageError(err, "failed to load created claim")
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	s.logger.Info("created claim %s for user %s", claim.ID, owner.Username)

	return claim, nil
}

// ListMine returns the owner's claims, newest first
func (s *ClaimService) ListMine(ctx context.Context, owner *User) ([]*Claim, error) {
	records, err := s.repo.Claims().ListByUser(ctx, owner.ID)
	if err != nil {
		return nil, StorageError(err, "failed to list claims")
	}
	return records, nil
}

// ListPending returns all claims awaiting a decision, oldest first
func (s *ClaimService) ListPending(ctx context.Context) ([]*Claim, error) {
	records, err := s.repo.Claims().ListByStatus(ctx, ClaimPending)
	if err != nil {
		return nil, StorageError(err, "failed to list pending claims")
	}
	return records, nil
}

// ProcessClaim moves a pending claim to accepted or rejected. The
// transition is guarded by a conditional write, so when two decisions
// race exactly one wins and the loser gets a conflict.
func (s *ClaimService) ProcessClaim(ctx context.Context, actor *User, claimID uuid.UUID, accept bool) (*Claim, error) {
	if !actor.Role.IsAtLeast(RoleManager) {
		return nil, ErrForbidden
	}

	target := ClaimRejected
	if accept {
		target = ClaimAccepted
	}

	var claim *Claim

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := s.repo.Claims().FindByIDTx(ctx, tx, claimID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return NotFoundError("claim", claimID.String())
			}
			return StorageError(err, "claim lookup failed")
		}

		if current.Status.IsTerminal() {
			return errors.New("claim already processed", errors.CategoryConflict).
				WithTextCode(TextCodeAlreadyProcessed).
				WithCode(errors.CodeConflict).
				WithMetadata(map[string]any{
					"id":     claimID.String(),
					"status": string(current.Status),
				})
		}

		won, err := s.repo.Claims().MarkProcessedTx(ctx, tx, claimID, target)
		if err != nil {
			return StorageError(err, "failed to update claim status")
		}

		if !won {
			return ErrClaimAlreadyProcessed
		}

		claim, err = s.repo.Claims().FindByIDTx(ctx, tx, claimID)
		if err != nil {
			return StorageError(err, "failed to load processed claim")
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	s.logger.Info("claim %s marked %s by %s", claimID, target, actor.Username)

	return claim, nil
}
