package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Well-known collateral pool names. The treasury and escrow pools hold
// stable value denominated directly in USD6; the reserve pool holds
// hard-asset units valued through the reserve oracle.
const (
	PoolTreasury = "treasury"
	PoolEscrow   = "escrow"
)

// CollateralPool is a named balance backing the protocol. A rebalance
// transfers value between pools without changing their sum.
type CollateralPool struct {
	Name    string
	Balance decimal.Decimal
}

// CollateralizationStatus is the outcome of converting a deposit into
// stable collateral.
type CollateralizationStatus string

const (
	CollateralizationDone      CollateralizationStatus = "COLLATERALIZED"
	CollateralizationShortfall CollateralizationStatus = "SHORTFALL"
)

// CollateralizationRecord tracks the stable-conversion outcome for one
// receipt. A shortfall never blocks the deposit; it is retried later, and
// the record makes collateralizeForReceipt idempotent. Registered marks
// whether the receipt has joined a batch yet: a registration that fails on
// the first attempt is completed by the retry path.
type CollateralizationRecord struct {
	ReceiptID  uuid.UUID
	Status     CollateralizationStatus
	AmountUSD6 decimal.Decimal
	Registered bool
	Attempts   int
	UpdatedAt  time.Time
}

// AuditRecord is an explicit trace of a privileged or value-moving
// operation: admin recovery paths, rebalances, batch funding and results.
type AuditRecord struct {
	ID        uuid.UUID
	Operation string
	BatchID   int64
	Actor     string
	Detail    string
	At        time.Time
}
