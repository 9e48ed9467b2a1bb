package recalc

import (
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is the user's role. Roles form a total order: user < manager < admin.
type Role string

const (
	// RoleUser can submit claims
	RoleUser Role = "user"
	// RoleManager can additionally process claims
	RoleManager Role = "manager"
	// RoleAdmin can additionally manage categories and elevate users
	RoleAdmin Role = "admin"
)

// ParseRole decodes a persisted role value. Unrecognized values fail
// loudly: silently defaulting a corrupted role to the lowest privilege
// would mask data corruption.
func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.IsValid() {
		return "", errors.New("unrecognized role value", errors.CategoryInternal).
			WithMetadata(map[string]any{"role": value})
	}
	return role, nil
}

// User is the principal model
type User struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Mail             string     `bun:"mail,notnull,unique" json:"mail,omitempty"`
	Username         string     `bun:"username,notnull,unique" json:"username,omitempty"`
	PasswordHash     string     `bun:"password_hash,notnull" json:"-"`
	Role             Role       `bun:"role,notnull" json:"role,omitempty"`
	Verified         bool       `bun:"verified" json:"verified"`
	VerificationCode string     `bun:"verification_code,nullzero" json:"-"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
}

// ClaimStatus is the claim lifecycle state. Pending is the sole initial
// state; Accepted and Rejected are terminal.
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimAccepted ClaimStatus = "accepted"
	ClaimRejected ClaimStatus = "rejected"
)

// IsValid checks the status is one of the known lifecycle states
func (s ClaimStatus) IsValid() bool {
	switch s {
	case ClaimPending, ClaimAccepted, ClaimRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed
func (s ClaimStatus) IsTerminal() bool {
	return s == ClaimAccepted || s == ClaimRejected
}

// ParseClaimStatus decodes a persisted status value, failing loudly on
// anything it does not recognize.
func ParseClaimStatus(value string) (ClaimStatus, error) {
	status := ClaimStatus(value)
	if !status.IsValid() {
		return "", errors.New("unrecognized claim status value", errors.CategoryInternal).
			WithMetadata(map[string]any{"status": value})
	}
	return status, nil
}

// Category is a reimbursement rule: a percentage of an item's cost is
// reimbursed, capped at a maximum amount.
type Category struct {
	bun.BaseModel    `bun:"table:categories,alias:cat"`
	ID               uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name             string    `bun:"name,notnull,unique" json:"name,omitempty"`
	Percentage       float64   `bun:"reimbursement_percentage,notnull" json:"reimbursementPercentage"`
	MaxReimbursement float64   `bun:"max_reimbursement,notnull" json:"maxReimbursement"`
}

// Item is a single claim line. Reimbursement is computed once, at claim
// creation, and never recomputed.
type Item struct {
	bun.BaseModel `bun:"table:items,alias:itm"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ClaimID       uuid.UUID `bun:"claim_id,notnull,type:uuid" json:"claimId,omitempty"`
	CategoryID    uuid.UUID `bun:"category_id,notnull,type:uuid" json:"categoryId,omitempty"`
	Cost          float64   `bun:"cost,notnull" json:"cost"`
	Reimbursement float64   `bun:"reimbursement,notnull" json:"reimbursement"`
}

// Claim is a reimbursement request owned by the principal that created it.
// Totals are the sums over its items, fixed at creation time.
type Claim struct {
	bun.BaseModel      `bun:"table:claims,alias:clm"`
	ID                 uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID             uuid.UUID   `bun:"user_id,notnull,type:uuid" json:"userId,omitempty"`
	TotalCost          float64     `bun:"total_cost,notnull" json:"totalCost"`
	TotalReimbursement float64     `bun:"total_reimbursement,notnull" json:"totalReimbursement"`
	Status             ClaimStatus `bun:"status,notnull" json:"status,omitempty"`
	CreatedAt          *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
	Items              []*Item     `bun:"rel:has-many,join:id=claim_id" json:"items,omitempty"`
}

// NotificationStatus is the delivery state of an outbox row
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// NotificationKindVerification is the account verification email
const NotificationKindVerification = "verification"

// Notification is an outbox row. Registration writes it in the same
// transaction as the user row; a background worker delivers and retries.
type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:ntf"`
	ID            uuid.UUID          `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID          `bun:"user_id,notnull,type:uuid" json:"userId,omitempty"`
	Kind          string             `bun:"kind,notnull" json:"kind,omitempty"`
	Recipient     string             `bun:"recipient,notnull" json:"recipient,omitempty"`
	Code          string             `bun:"code,nullzero" json:"-"`
	Status        NotificationStatus `bun:"status,notnull" json:"status,omitempty"`
	Attempts      int                `bun:"attempts" json:"attempts"`
	LastError     string             `bun:"last_error,nullzero" json:"-"`
	CreatedAt     *time.Time         `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
	SentAt        *time.Time         `bun:"sent_at,nullzero" json:"sentAt,omitempty"`
}
