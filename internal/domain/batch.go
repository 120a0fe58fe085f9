package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchStatus is the lifecycle state of an investment batch.
// The machine is strictly forward: Pending -> Running -> Invested -> Closed
// -> Distributed. No other transition is legal.
type BatchStatus string

const (
	BatchPending     BatchStatus = "PENDING"
	BatchRunning     BatchStatus = "RUNNING"
	BatchInvested    BatchStatus = "INVESTED"
	BatchClosed      BatchStatus = "CLOSED"
	BatchDistributed BatchStatus = "DISTRIBUTED"
)

// next holds the single legal successor of each status.
var next = map[BatchStatus]BatchStatus{
	BatchPending:  BatchRunning,
	BatchRunning:  BatchInvested,
	BatchInvested: BatchClosed,
	BatchClosed:   BatchDistributed,
}

// CanTransition reports whether from -> to is a legal (adjacent, forward)
// batch transition.
func CanTransition(from, to BatchStatus) bool {
	return next[from] == to
}

// Batch is a cohort of deposits collected, invested, and settled together.
// Batches are append-only; none are ever deleted. Exactly one batch holds
// status Pending at any time.
type Batch struct {
	ID                  int64 // monotonic, assigned by the repository
	Status              BatchStatus
	StartTime           time.Time
	EndTime             time.Time
	TotalCollateralUSD6 decimal.Decimal
	TotalShares         decimal.Decimal
	FinalNavPerShare    decimal.Decimal // 1e18 scale, NavUnchanged until settlement
	UserProfitUSD6      decimal.Decimal // booked at close; distribution pays from this figure
	DistributionCursor  int             // members credited so far, persisted between calls
	FundsDeployed       bool            // escrow balance burned to represent deployed capital
	Distributed         bool
}

// AdvanceTo moves the batch to the given status if it is the legal successor
// of the current one. Any non-adjacent transition fails with ErrWrongState
// and leaves the batch unchanged.
func (b *Batch) AdvanceTo(to BatchStatus) error {
	if !CanTransition(b.Status, to) {
		return ErrWrongState
	}
	b.Status = to
	return nil
}

// Validate ensures batch totals are internally consistent.
func (b *Batch) Validate() error {
	if b.TotalCollateralUSD6.IsNegative() || b.TotalShares.IsNegative() {
		return ErrZeroAmount
	}
	if b.FinalNavPerShare.LessThanOrEqual(decimal.Zero) {
		return ErrZeroAmount
	}
	return nil
}

// BatchMember links a deposit receipt to the batch it was collected into.
// Recorded at registration; drives pro-rata settlement.
type BatchMember struct {
	BatchID     int64
	ReceiptID   uuid.UUID
	ShareAmount decimal.Decimal
	Distributed bool
}
