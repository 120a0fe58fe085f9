package escrow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfi/vaultcore-backend/internal/domain"
	"github.com/meridianfi/vaultcore-backend/internal/usecase/prorata"
)

// TreasuryGateway is the treasury surface the escrow needs: funding a batch
// ahead of Running and booking its result on close.
type TreasuryGateway interface {
	FundEscrowBatch(ctx context.Context, caller string, batchID int64, amountUSD6 decimal.Decimal) error
	ReportBatchResult(ctx context.Context, caller string, batchID int64, principalUSD6, userProfitUSD6, feeUSD6, navPerShare decimal.Decimal) error
}

// CreditIssuer issues profit credits to depositors. Implemented by the
// vault service.
type CreditIssuer interface {
	IssueCredit(ctx context.Context, caller, user string, amountUSD6 decimal.Decimal, unlockAt time.Time) error
}

// Config holds the escrow's static wiring.
type Config struct {
	Principal         string // identity used when calling treasury and vault
	AdminPrincipal    string
	KeeperPrincipal   string
	VaultPrincipal    string // allowed deposit registrar
	TreasuryPrincipal string // allowed deposit registrar

	FeeBps            int64
	CreditUnlockDelay time.Duration

	// AbsorbLosses floors negative batch profit at zero so the treasury
	// absorbs losses instead of reducing depositor principal.
	AbsorbLosses bool
}

// Service is the InvestmentEscrow: it owns the batch lifecycle. It collects,
// activates, invests, closes and distributes batches. The state machine is
// strictly forward with exactly one Pending batch live at any time.
type Service struct {
	Batches  domain.BatchRepository
	Pools    domain.PoolRepository
	Receipts domain.ReceiptRepository
	Audit    domain.AuditRepository

	Treasury TreasuryGateway
	Credits  CreditIssuer

	cfg Config
	mu  sync.Mutex
}

// NewService creates a new escrow Service instance.
func NewService(
	batches domain.BatchRepository,
	pools domain.PoolRepository,
	receipts domain.ReceiptRepository,
	audit domain.AuditRepository,
	treasury TreasuryGateway,
	credits CreditIssuer,
	cfg Config,
) *Service {
	return &Service{
		Batches:  batches,
		Pools:    pools,
		Receipts: receipts,
		Audit:    audit,
		Treasury: treasury,
		Credits:  credits,
		cfg:      cfg,
	}
}

// PendingBatch returns the single live collection batch.
func (s *Service) PendingBatch(ctx context.Context) (*domain.Batch, error) {
	return s.Batches.GetPending(ctx)
}

// Batch returns a batch by ID.
func (s *Service) Batch(ctx context.Context, id int64) (*domain.Batch, error) {
	return s.Batches.GetByID(ctx, id)
}

// CreatePendingBatch opens the collection window when none is live. While a
// Pending batch already exists it refuses: EmptyBatch when that batch is
// still empty (bounding batch churn), WrongState when it should be rolled
// instead.
func (s *Service) CreatePendingBatch(ctx context.Context, caller string) (int64, error) {
	if err := s.requireOperator(caller); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Batches.GetPending(ctx)
	switch {
	case err == nil:
		if current.TotalShares.IsZero() {
			return 0, domain.ErrEmptyBatch
		}
		return 0, domain.ErrWrongState
	case errors.Is(err, domain.ErrNotFound):
		// No live window; open one.
	default:
		return 0, err
	}

	id, err := s.newPendingBatch(ctx)
	if err != nil {
		return 0, err
	}
	log.Printf("[INFO] escrow: pending batch created id=%d by=%s", id, caller)
	return id, nil
}

// RegisterDeposit appends a batch member and bumps the batch totals.
// Restricted to the vault and treasury; fails unless the explicitly
// targeted batch is the live Pending batch. Repeating a registration for
// the same receipt is a no-op.
func (s *Service) RegisterDeposit(ctx context.Context, caller string, batchID int64, receiptID uuid.UUID, amountUSD6, shares decimal.Decimal) error {
	if caller != s.cfg.VaultPrincipal && caller != s.cfg.TreasuryPrincipal {
		return domain.ErrUnauthorized
	}
	if amountUSD6.LessThanOrEqual(decimal.Zero) || shares.LessThanOrEqual(decimal.Zero) {
		return domain.ErrZeroAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := s.Batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status != domain.BatchPending {
		return domain.ErrBatchNotPending
	}

	if _, err := s.Batches.GetMember(ctx, batchID, receiptID); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	if err := s.Batches.AddMember(ctx, &domain.BatchMember{
		BatchID:     batchID,
		ReceiptID:   receiptID,
		ShareAmount: shares,
	}); err != nil {
		return fmt.Errorf("add batch member: %w", err)
	}

	batch.TotalCollateralUSD6 = batch.TotalCollateralUSD6.Add(amountUSD6)
	batch.TotalShares = batch.TotalShares.Add(shares)
	if err := s.Batches.Update(ctx, batch); err != nil {
		return fmt.Errorf("update batch totals: %w", err)
	}

	log.Printf("[INFO] escrow: registered receipt=%s batch=%d usd6=%s shares=%s",
		receiptID, batchID, amountUSD6, shares)
	return nil
}

// RollBatch transitions the named Pending batch to Running, funds it from
// the treasury, and atomically opens a fresh Pending batch.
func (s *Service) RollBatch(ctx context.Context, caller string, batchID int64) error {
	if err := s.requireOperator(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.rollLocked(ctx, caller, batchID)
	return err
}

// RollToNewBatch rolls the current Pending batch and returns the ID of the
// fresh Pending batch it opened.
func (s *Service) RollToNewBatch(ctx context.Context, caller string) (int64, error) {
	if err := s.requireOperator(caller); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Batches.GetPending(ctx)
	if err != nil {
		return 0, err
	}
	return s.rollLocked(ctx, caller, current.ID)
}

func (s *Service) rollLocked(ctx context.Context, caller string, batchID int64) (int64, error) {
	batch, err := s.Batches.GetByID(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if batch.Status != domain.BatchPending {
		return 0, domain.ErrWrongState
	}
	if batch.TotalShares.IsZero() {
		return 0, domain.ErrEmptyBatch
	}

	if err := s.Treasury.FundEscrowBatch(ctx, s.cfg.Principal, batchID, batch.TotalCollateralUSD6); err != nil {
		return 0, fmt.Errorf("%w: batch %d: %v", domain.ErrFundingFailed, batchID, err)
	}

	batch.EndTime = time.Now()
	if err := batch.AdvanceTo(domain.BatchRunning); err != nil {
		return 0, err
	}
	if err := s.Batches.Update(ctx, batch); err != nil {
		return 0, fmt.Errorf("update rolled batch: %w", err)
	}

	nextID, err := s.newPendingBatch(ctx)
	if err != nil {
		return 0, fmt.Errorf("open successor batch: %w", err)
	}

	s.audit(ctx, &domain.AuditRecord{
		Operation: "roll_batch",
		BatchID:   batchID,
		Actor:     caller,
		Detail:    fmt.Sprintf("fundedUsd6=%s successor=%d", batch.TotalCollateralUSD6, nextID),
	})
	log.Printf("[INFO] escrow: batch=%d rolled to running, successor=%d", batchID, nextID)
	return nextID, nil
}

// InvestBatch marks a Running batch Invested and irrevocably custodies the
// matching escrow balance to represent capital deployed externally.
// Idempotent once Invested; fails on insufficient balance, and the recovery
// operations below are the only way around that.
func (s *Service) InvestBatch(ctx context.Context, caller string, batchID int64) error {
	if err := s.requireOperator(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := s.Batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status == domain.BatchInvested {
		return nil
	}
	if batch.Status != domain.BatchRunning {
		return domain.ErrWrongState
	}

	pool, err := s.Pools.Get(ctx, domain.PoolEscrow)
	if err != nil {
		return err
	}
	if pool.Balance.LessThan(batch.TotalCollateralUSD6) {
		return domain.ErrInsufficientBalance
	}
	if err := s.Pools.SetBalance(ctx, domain.PoolEscrow, pool.Balance.Sub(batch.TotalCollateralUSD6)); err != nil {
		return err
	}

	batch.FundsDeployed = true
	if err := batch.AdvanceTo(domain.BatchInvested); err != nil {
		return err
	}
	if err := s.Batches.Update(ctx, batch); err != nil {
		if rerr := s.Pools.SetBalance(ctx, domain.PoolEscrow, pool.Balance); rerr != nil {
			log.Printf("[WARN] escrow: invest compensation failed: %v", rerr)
		}
		return fmt.Errorf("update invested batch: %w", err)
	}

	s.audit(ctx, &domain.AuditRecord{
		Operation: "invest_batch",
		BatchID:   batchID,
		Actor:     caller,
		Detail:    fmt.Sprintf("deployedUsd6=%s", batch.TotalCollateralUSD6),
	})
	log.Printf("[INFO] escrow: batch=%d invested, deployedUsd6=%s", batchID, batch.TotalCollateralUSD6)
	return nil
}

// DistributeBatchBurn is the historical name of InvestBatch.
func (s *Service) DistributeBatchBurn(ctx context.Context, caller string, batchID int64) error {
	return s.InvestBatch(ctx, caller, batchID)
}

// DepositReturnForBatch settles a Running or Invested batch at the given
// final NAV per share (1e18 scale): the final value is pulled into escrow,
// the principal and protocol fee are booked back to the treasury, and the
// batch closes. One-shot: a second call fails AlreadyClosed.
func (s *Service) DepositReturnForBatch(ctx context.Context, caller string, batchID int64, finalNavPerShare decimal.Decimal) error {
	if err := s.requireOperator(caller); err != nil {
		return err
	}
	if finalNavPerShare.LessThanOrEqual(decimal.Zero) {
		return domain.ErrZeroAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := s.Batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	switch batch.Status {
	case domain.BatchClosed, domain.BatchDistributed:
		return domain.ErrAlreadyClosed
	case domain.BatchRunning, domain.BatchInvested:
	default:
		return domain.ErrWrongState
	}

	principal := batch.TotalCollateralUSD6
	settle, err := prorata.Settle(principal, finalNavPerShare, s.cfg.FeeBps, s.cfg.AbsorbLosses)
	if err != nil {
		return err
	}

	pool, err := s.Pools.Get(ctx, domain.PoolEscrow)
	if err != nil {
		return err
	}
	newBalance := pool.Balance
	if !batch.FundsDeployed {
		// The capital never left escrow; retire it before booking the return
		// so the pool is not double counted.
		if newBalance.LessThan(principal) {
			return domain.ErrInsufficientBalance
		}
		newBalance = newBalance.Sub(principal)
	}
	newBalance = newBalance.Add(settle.FinalValueUSD6)

	// The treasury takes back whatever the return covers of the funded
	// principal plus the fee; on a loss the shortfall stays with the
	// treasury as the absorbed loss.
	recycled := principal
	if settle.FinalValueUSD6.LessThan(recycled) {
		recycled = settle.FinalValueUSD6
	}

	if err := s.Pools.SetBalance(ctx, domain.PoolEscrow, newBalance); err != nil {
		return err
	}
	if err := s.Treasury.ReportBatchResult(ctx, s.cfg.Principal, batchID,
		recycled, settle.UserProfitUSD6, settle.FeeUSD6, finalNavPerShare); err != nil {
		if rerr := s.Pools.SetBalance(ctx, domain.PoolEscrow, pool.Balance); rerr != nil {
			log.Printf("[WARN] escrow: return compensation failed: %v", rerr)
		}
		return fmt.Errorf("report batch result: %w", err)
	}

	batch.FundsDeployed = true
	batch.FinalNavPerShare = finalNavPerShare
	batch.UserProfitUSD6 = settle.UserProfitUSD6
	if batch.Status == domain.BatchRunning {
		if err := batch.AdvanceTo(domain.BatchInvested); err != nil {
			return err
		}
	}
	if err := batch.AdvanceTo(domain.BatchClosed); err != nil {
		return err
	}
	if err := s.Batches.Update(ctx, batch); err != nil {
		return fmt.Errorf("update closed batch: %w", err)
	}

	s.audit(ctx, &domain.AuditRecord{
		Operation: "deposit_return",
		BatchID:   batchID,
		Actor:     caller,
		Detail: fmt.Sprintf("nav=%s finalValueUsd6=%s profitUsd6=%s feeUsd6=%s",
			finalNavPerShare, settle.FinalValueUSD6, settle.ProfitUSD6, settle.FeeUSD6),
	})
	log.Printf("[INFO] escrow: batch=%d closed finalValueUsd6=%s userProfitUsd6=%s",
		batchID, settle.FinalValueUSD6, settle.UserProfitUSD6)
	return nil
}

// DistributeBatch credits the listed members of a Closed batch pro-rata by
// shares, advancing the persisted cursor. Callable across multiple
// invocations with partial lists; once every member is processed the batch
// flips to Distributed. Members already credited are skipped, never
// double-credited.
func (s *Service) DistributeBatch(ctx context.Context, caller string, batchID int64, receiptIDs []uuid.UUID) error {
	if err := s.requireOperator(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := s.Batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status == domain.BatchDistributed {
		return domain.ErrAlreadyDistributed
	}
	if batch.Status != domain.BatchClosed {
		return domain.ErrWrongState
	}

	// Pay from the figure booked at close, not the current fee policy: what
	// the treasury left in escrow was computed then.
	userProfit := batch.UserProfitUSD6
	if userProfit.IsNegative() {
		userProfit = decimal.Zero
	}

	pool, err := s.Pools.Get(ctx, domain.PoolEscrow)
	if err != nil {
		return err
	}

	credited := decimal.Zero
	unlockAt := time.Now().Add(s.cfg.CreditUnlockDelay)
	for _, receiptID := range receiptIDs {
		member, err := s.Batches.GetMember(ctx, batchID, receiptID)
		if err != nil {
			return err
		}
		if member.Distributed {
			continue
		}

		amount, err := prorata.Share(userProfit, member.ShareAmount, batch.TotalShares)
		if err != nil {
			return err
		}
		if amount.IsPositive() {
			receipt, err := s.Receipts.GetByID(ctx, receiptID)
			if err != nil {
				return err
			}
			if err := s.Credits.IssueCredit(ctx, s.cfg.Principal, receipt.Owner, amount, unlockAt); err != nil {
				return fmt.Errorf("issue credit for receipt %s: %w", receiptID, err)
			}
			credited = credited.Add(amount)
		}

		if err := s.Batches.MarkMemberDistributed(ctx, batchID, receiptID); err != nil {
			return err
		}
		batch.DistributionCursor++
	}

	if credited.IsPositive() {
		if err := s.Pools.SetBalance(ctx, domain.PoolEscrow, pool.Balance.Sub(credited)); err != nil {
			return err
		}
	}

	remaining, err := s.Batches.CountUndistributed(ctx, batchID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		if err := batch.AdvanceTo(domain.BatchDistributed); err != nil {
			return err
		}
		batch.Distributed = true
	}
	if err := s.Batches.Update(ctx, batch); err != nil {
		return fmt.Errorf("update distribution cursor: %w", err)
	}

	if remaining == 0 {
		s.audit(ctx, &domain.AuditRecord{
			Operation: "distribute_batch",
			BatchID:   batchID,
			Actor:     caller,
			Detail:    fmt.Sprintf("creditedUsd6=%s members=%d", credited, batch.DistributionCursor),
		})
	}
	log.Printf("[INFO] escrow: batch=%d distribution pass creditedUsd6=%s remaining=%d",
		batchID, credited, remaining)
	return nil
}

// ForceSetBatchInvested is an audited recovery path: it moves a Running
// batch to Invested, burning whatever escrow balance is available up to the
// batch total. Safe to repeat; once Invested it is a no-op.
func (s *Service) ForceSetBatchInvested(ctx context.Context, caller string, batchID int64) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := s.Batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status == domain.BatchInvested {
		return nil
	}
	if batch.Status != domain.BatchRunning {
		return domain.ErrWrongState
	}

	pool, err := s.Pools.Get(ctx, domain.PoolEscrow)
	if err != nil {
		return err
	}
	burn := batch.TotalCollateralUSD6
	if pool.Balance.LessThan(burn) {
		burn = pool.Balance
	}
	if burn.IsPositive() {
		if err := s.Pools.SetBalance(ctx, domain.PoolEscrow, pool.Balance.Sub(burn)); err != nil {
			return err
		}
	}

	batch.FundsDeployed = true
	if err := batch.AdvanceTo(domain.BatchInvested); err != nil {
		return err
	}
	if err := s.Batches.Update(ctx, batch); err != nil {
		return fmt.Errorf("update forced batch: %w", err)
	}

	s.audit(ctx, &domain.AuditRecord{
		Operation: "force_set_invested",
		BatchID:   batchID,
		Actor:     caller,
		Detail:    fmt.Sprintf("burnedUsd6=%s of %s", burn, batch.TotalCollateralUSD6),
	})
	log.Printf("[WARN] escrow: batch=%d force-set invested by %s, burnedUsd6=%s", batchID, caller, burn)
	return nil
}

// MarkBatchInvestedWithoutTransfer is an audited recovery path: it moves a
// Running batch to Invested without touching the escrow balance. The burn
// is completed later by AdminBurnBatch or PublicBurnBatch. Safe to repeat.
func (s *Service) MarkBatchInvestedWithoutTransfer(ctx context.Context, caller string, batchID int64) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := s.Batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status == domain.BatchInvested {
		return nil
	}
	if batch.Status != domain.BatchRunning {
		return domain.ErrWrongState
	}

	if err := batch.AdvanceTo(domain.BatchInvested); err != nil {
		return err
	}
	if err := s.Batches.Update(ctx, batch); err != nil {
		return fmt.Errorf("update marked batch: %w", err)
	}

	s.audit(ctx, &domain.AuditRecord{
		Operation: "mark_invested_without_transfer",
		BatchID:   batchID,
		Actor:     caller,
	})
	log.Printf("[WARN] escrow: batch=%d marked invested without transfer by %s", batchID, caller)
	return nil
}

// AdminBurnBatch completes the deferred burn of an Invested batch whose
// funds were never deployed. No-op once the burn is done.
func (s *Service) AdminBurnBatch(ctx context.Context, caller string, batchID int64) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	return s.burnBatch(ctx, caller, batchID, "admin_burn_batch")
}

// PublicBurnBatch is the permissionless variant of AdminBurnBatch: anyone
// may complete the deferred burn, under the same narrow precondition.
func (s *Service) PublicBurnBatch(ctx context.Context, caller string, batchID int64) error {
	return s.burnBatch(ctx, caller, batchID, "public_burn_batch")
}

func (s *Service) burnBatch(ctx context.Context, caller string, batchID int64, operation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, err := s.Batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status != domain.BatchInvested {
		return domain.ErrWrongState
	}
	if batch.FundsDeployed {
		return nil
	}

	pool, err := s.Pools.Get(ctx, domain.PoolEscrow)
	if err != nil {
		return err
	}
	if pool.Balance.LessThan(batch.TotalCollateralUSD6) {
		return domain.ErrInsufficientBalance
	}
	if err := s.Pools.SetBalance(ctx, domain.PoolEscrow, pool.Balance.Sub(batch.TotalCollateralUSD6)); err != nil {
		return err
	}

	batch.FundsDeployed = true
	if err := s.Batches.Update(ctx, batch); err != nil {
		if rerr := s.Pools.SetBalance(ctx, domain.PoolEscrow, pool.Balance); rerr != nil {
			log.Printf("[WARN] escrow: burn compensation failed: %v", rerr)
		}
		return fmt.Errorf("update burned batch: %w", err)
	}

	s.audit(ctx, &domain.AuditRecord{
		Operation: operation,
		BatchID:   batchID,
		Actor:     caller,
		Detail:    fmt.Sprintf("burnedUsd6=%s", batch.TotalCollateralUSD6),
	})
	log.Printf("[WARN] escrow: batch=%d burned via %s by %s", batchID, operation, caller)
	return nil
}

func (s *Service) newPendingBatch(ctx context.Context) (int64, error) {
	batch := &domain.Batch{
		Status:              domain.BatchPending,
		StartTime:           time.Now(),
		TotalCollateralUSD6: decimal.Zero,
		TotalShares:         decimal.Zero,
		FinalNavPerShare:    domain.NavUnchanged,
		UserProfitUSD6:      decimal.Zero,
	}
	return s.Batches.Create(ctx, batch)
}

func (s *Service) requireAdmin(caller string) error {
	if caller != s.cfg.AdminPrincipal {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *Service) requireOperator(caller string) error {
	if caller != s.cfg.AdminPrincipal && caller != s.cfg.KeeperPrincipal {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *Service) audit(ctx context.Context, record *domain.AuditRecord) {
	record.ID = uuid.New()
	record.At = time.Now()
	if err := s.Audit.Append(ctx, record); err != nil {
		log.Printf("[WARN] escrow: audit append failed for %s: %v", record.Operation, err)
	}
}
