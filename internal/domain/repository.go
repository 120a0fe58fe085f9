package domain

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiptRepository defines persistence for deposit receipts.
type ReceiptRepository interface {
	// Create persists a new receipt.
	Create(ctx context.Context, receipt *DepositReceipt) error

	// GetByID retrieves a receipt by its ID; ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*DepositReceipt, error)

	// Update persists receipt mutations (the single Withdrawn flip).
	Update(ctx context.Context, receipt *DepositReceipt) error

	// ListByOwner retrieves all receipts of an owner.
	ListByOwner(ctx context.Context, owner string) ([]*DepositReceipt, error)

	// TotalPrincipal sums principal over non-withdrawn receipts of an asset.
	TotalPrincipal(ctx context.Context, asset string) (decimal.Decimal, error)
}

// CreditRepository defines persistence for profit credits. Credits of one
// owner form an append-only list addressed by index.
type CreditRepository interface {
	// Append persists a new credit at the end of the owner's list.
	Append(ctx context.Context, credit *ProfitCredit) error

	// GetByOwnerIndex retrieves the owner's credit at the given list index;
	// ErrNotFound if the index is out of range.
	GetByOwnerIndex(ctx context.Context, owner string, index int) (*ProfitCredit, error)

	// ListByOwner retrieves all credits of an owner in append order.
	ListByOwner(ctx context.Context, owner string) ([]*ProfitCredit, error)

	// Update persists credit mutations (the single Claimed flip).
	Update(ctx context.Context, credit *ProfitCredit) error
}

// BatchRepository defines persistence for batches and their members.
// Batch IDs are a monotonic sequence owned by the repository.
type BatchRepository interface {
	// Create persists a new batch and assigns the next monotonic ID.
	Create(ctx context.Context, batch *Batch) (int64, error)

	// GetByID retrieves a batch; ErrNotFound if absent.
	GetByID(ctx context.Context, id int64) (*Batch, error)

	// GetPending retrieves the single batch in Pending status;
	// ErrNotFound if none exists.
	GetPending(ctx context.Context) (*Batch, error)

	// Update persists batch mutations.
	Update(ctx context.Context, batch *Batch) error

	// AddMember records a batch member at registration.
	AddMember(ctx context.Context, member *BatchMember) error

	// GetMember retrieves one member; ErrNotFound if absent.
	GetMember(ctx context.Context, batchID int64, receiptID uuid.UUID) (*BatchMember, error)

	// ListMembers retrieves all members of a batch in registration order.
	ListMembers(ctx context.Context, batchID int64) ([]*BatchMember, error)

	// MarkMemberDistributed flips a member's distributed bit.
	MarkMemberDistributed(ctx context.Context, batchID int64, receiptID uuid.UUID) error

	// CountUndistributed counts members not yet credited for a batch.
	CountUndistributed(ctx context.Context, batchID int64) (int, error)
}

// PoolRepository defines persistence for collateral pool balances.
type PoolRepository interface {
	// Get retrieves a pool by name; ErrNotFound if absent.
	Get(ctx context.Context, name string) (*CollateralPool, error)

	// SetBalance persists a pool balance, creating the pool if needed.
	SetBalance(ctx context.Context, name string, balance decimal.Decimal) error
}

// CollateralizationRepository defines persistence for per-receipt
// collateralization outcomes.
type CollateralizationRepository interface {
	// Get retrieves the record for a receipt; ErrNotFound if absent.
	Get(ctx context.Context, receiptID uuid.UUID) (*CollateralizationRecord, error)

	// Put creates or replaces the record for a receipt.
	Put(ctx context.Context, record *CollateralizationRecord) error

	// ListShortfalls retrieves all records still in shortfall.
	ListShortfalls(ctx context.Context) ([]*CollateralizationRecord, error)
}

// AuditRepository defines persistence for audit records.
type AuditRepository interface {
	// Append persists a new audit record.
	Append(ctx context.Context, record *AuditRecord) error

	// ListByBatch retrieves audit records for a batch in append order.
	ListByBatch(ctx context.Context, batchID int64) ([]*AuditRecord, error)
}
