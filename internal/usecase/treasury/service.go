package treasury

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
)

// BatchRegistrar is the escrow surface the treasury needs: resolving the
// live pending batch and registering a deposit into it.
type BatchRegistrar interface {
	PendingBatch(ctx context.Context) (*domain.Batch, error)
	RegisterDeposit(ctx context.Context, caller string, batchID int64, receiptID uuid.UUID, amountUSD6, shares decimal.Decimal) error
}

// Config holds the treasury's static wiring.
type Config struct {
	Principal       string // identity used when calling the escrow
	VaultPrincipal  string // allowed caller for CollateralizeForReceipt
	EscrowPrincipal string // allowed caller for funding and result booking

	AlphaNum int64 // target reserve/treasury ratio numerator
	AlphaDen int64 // target reserve/treasury ratio denominator

	SlippageBps     int64 // acceptable swap output shortfall in basis points
	YieldDecimals   int32 // native decimals of the yield asset
	ReserveDecimals int32 // native decimals of the hard reserve asset
}

// Service is the Treasury: it values and rebalances the two backing pools,
// converts deposits into stable collateral, funds batches, and books their
// results.
type Service struct {
	Pools      domain.PoolRepository
	Collateral domain.CollateralizationRepository
	Audit      domain.AuditRepository

	YieldOracle   domain.PriceOracle
	ReserveOracle domain.PriceOracle
	Swap          domain.SwapPool
	Reserve       domain.ReserveController
	Registrar     BatchRegistrar

	cfg Config
	mu  sync.Mutex
}

// NewService creates a new treasury Service instance.
func NewService(
	pools domain.PoolRepository,
	collateral domain.CollateralizationRepository,
	audit domain.AuditRepository,
	yieldOracle, reserveOracle domain.PriceOracle,
	swap domain.SwapPool,
	reserve domain.ReserveController,
	registrar BatchRegistrar,
	cfg Config,
) *Service {
	return &Service{
		Pools:         pools,
		Collateral:    collateral,
		Audit:         audit,
		YieldOracle:   yieldOracle,
		ReserveOracle: reserveOracle,
		Swap:          swap,
		Reserve:       reserve,
		Registrar:     registrar,
		cfg:           cfg,
	}
}

// TreasuryValue returns the current USD6 value of the stable treasury pool.
func (s *Service) TreasuryValue(ctx context.Context) (decimal.Decimal, error) {
	pool, err := s.Pools.Get(ctx, domain.PoolTreasury)
	if err != nil {
		return decimal.Zero, err
	}
	return pool.Balance, nil
}

// ReserveValue returns the current USD6 value of the hard-asset reserve,
// marked at the reserve oracle price.
func (s *Service) ReserveValue(ctx context.Context) (decimal.Decimal, error) {
	units, err := s.Reserve.Units(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reserve units: %w", err)
	}
	price, err := s.reservePrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.EntryValueUSD6(units, price, s.cfg.ReserveDecimals)
}

// TargetReserve returns the reserve value the rebalancer converges toward:
// treasury value scaled by alpha.
func (s *Service) TargetReserve(ctx context.Context) (decimal.Decimal, error) {
	t, err := s.TreasuryValue(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.MulDivFloor(t, decimal.NewFromInt(s.cfg.AlphaNum), decimal.NewFromInt(s.cfg.AlphaDen))
}

// SafeBacking returns treasury value + reserve value, the total
// unencumbered collateral.
func (s *Service) SafeBacking(ctx context.Context) (decimal.Decimal, error) {
	t, err := s.TreasuryValue(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := s.ReserveValue(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return t.Add(r), nil
}

// CollateralizeForReceipt converts a deposit's entry value into stable
// collateral and registers the receipt in the pending batch. Idempotent per
// receipt. A momentary swap failure records a shortfall instead of failing:
// a deposit is never reverted because collateralization momentarily fails.
func (s *Service) CollateralizeForReceipt(ctx context.Context, caller string, receiptID uuid.UUID, amountUSD6 decimal.Decimal) error {
	if caller != s.cfg.VaultPrincipal {
		return domain.ErrUnauthorized
	}
	if amountUSD6.LessThanOrEqual(decimal.Zero) {
		return domain.ErrZeroAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.Collateral.Get(ctx, receiptID)
	switch {
	case err == nil:
		if record.Status == domain.CollateralizationDone {
			return nil
		}
	case errors.Is(err, domain.ErrNotFound):
		record = &domain.CollateralizationRecord{
			ReceiptID:  receiptID,
			Status:     domain.CollateralizationShortfall,
			AmountUSD6: amountUSD6,
		}
	default:
		return err
	}

	// The receipt joins the pending batch regardless of whether the swap
	// below succeeds. If the registration itself fails the record is still
	// persisted, so the retry path can finish what this call could not.
	if !record.Registered {
		if rerr := s.registerInPendingBatch(ctx, record); rerr != nil {
			record.UpdatedAt = time.Now()
			if perr := s.Collateral.Put(ctx, record); perr != nil {
				return perr
			}
			return rerr
		}
	}

	s.attemptCollateralization(ctx, record)
	return s.Collateral.Put(ctx, record)
}

// registerInPendingBatch resolves the live pending batch and registers the
// record's receipt into it, marking the record on success.
func (s *Service) registerInPendingBatch(ctx context.Context, record *domain.CollateralizationRecord) error {
	batch, err := s.Registrar.PendingBatch(ctx)
	if err != nil {
		return fmt.Errorf("resolve pending batch: %w", err)
	}
	if err := s.Registrar.RegisterDeposit(ctx, s.cfg.Principal, batch.ID, record.ReceiptID, record.AmountUSD6, record.AmountUSD6); err != nil {
		return fmt.Errorf("register deposit in batch %d: %w", batch.ID, err)
	}
	record.Registered = true
	return nil
}

// RetryShortfalls re-runs the stable conversion for every recorded
// shortfall. Invoked by the keeper. Returns how many converted.
func (s *Service) RetryShortfalls(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shortfalls, err := s.Collateral.ListShortfalls(ctx)
	if err != nil {
		return 0, err
	}

	converted := 0
	for _, record := range shortfalls {
		// A record whose batch registration never landed is completed here
		// before the conversion is retried.
		if !record.Registered {
			if rerr := s.registerInPendingBatch(ctx, record); rerr != nil {
				log.Printf("[WARN] treasury: retry registration failed receipt=%s: %v", record.ReceiptID, rerr)
				record.UpdatedAt = time.Now()
				if perr := s.Collateral.Put(ctx, record); perr != nil {
					return converted, perr
				}
				continue
			}
		}
		s.attemptCollateralization(ctx, record)
		if err := s.Collateral.Put(ctx, record); err != nil {
			return converted, err
		}
		if record.Status == domain.CollateralizationDone {
			converted++
		}
	}
	if converted > 0 {
		log.Printf("[INFO] treasury: retried shortfalls, converted=%d remaining=%d", converted, len(shortfalls)-converted)
	}
	return converted, nil
}

// attemptCollateralization runs one bounded swap attempt and mutates the
// record in place. Callers hold s.mu and persist the record.
func (s *Service) attemptCollateralization(ctx context.Context, record *domain.CollateralizationRecord) {
	record.Attempts++
	record.UpdatedAt = time.Now()
	log.Printf("[INFO] treasury: collateralize attempt receipt=%s amountUsd6=%s try=%d",
		record.ReceiptID, record.AmountUSD6, record.Attempts)

	price, err := s.YieldOracle.Price(ctx)
	if err != nil || price.IsZero() {
		log.Printf("[WARN] treasury: collateralize insufficient receipt=%s: yield oracle unavailable", record.ReceiptID)
		record.Status = domain.CollateralizationShortfall
		return
	}
	yieldIn, err := domain.UnitsForUSD6(record.AmountUSD6, price, s.cfg.YieldDecimals)
	if err != nil || yieldIn.IsZero() {
		log.Printf("[WARN] treasury: collateralize insufficient receipt=%s: cannot size swap", record.ReceiptID)
		record.Status = domain.CollateralizationShortfall
		return
	}

	// Expected-out bound: the oracle value less the configured slippage.
	minOut, _ := domain.MulDivFloor(record.AmountUSD6,
		decimal.NewFromInt(10_000-s.cfg.SlippageBps), decimal.NewFromInt(10_000))

	quote, err := s.Swap.QuoteStableOut(ctx, yieldIn)
	if err != nil || quote.LessThan(minOut) {
		log.Printf("[WARN] treasury: collateralize insufficient receipt=%s quote=%s minOut=%s",
			record.ReceiptID, quote, minOut)
		record.Status = domain.CollateralizationShortfall
		return
	}

	out, err := s.Swap.SwapYieldForStable(ctx, yieldIn, minOut)
	if err != nil {
		log.Printf("[WARN] treasury: collateralize insufficient receipt=%s: %v", record.ReceiptID, err)
		record.Status = domain.CollateralizationShortfall
		return
	}

	// Re-validate pool state after the untrusted swap before committing.
	pool, err := s.Pools.Get(ctx, domain.PoolTreasury)
	if err != nil {
		log.Printf("[WARN] treasury: collateralize receipt=%s: pool read failed: %v", record.ReceiptID, err)
		record.Status = domain.CollateralizationShortfall
		return
	}
	if err := s.Pools.SetBalance(ctx, domain.PoolTreasury, pool.Balance.Add(out)); err != nil {
		log.Printf("[WARN] treasury: collateralize receipt=%s: pool write failed: %v", record.ReceiptID, err)
		record.Status = domain.CollateralizationShortfall
		return
	}

	record.Status = domain.CollateralizationDone
	log.Printf("[INFO] treasury: collateralize succeeded receipt=%s stableOut=%s", record.ReceiptID, out)
}

// RebalanceReserve converges the reserve/treasury ratio toward alpha by
// moving value between the two pools at the oracle valuation. The move is
// computed so treasury value + reserve value is preserved exactly; with no
// intervening deposits the call is a no-op modulo rounding.
//
// Returns the USD6 value moved: positive when sold from reserve to
// treasury, negative when bought into the reserve.
func (s *Service) RebalanceReserve(ctx context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	treasuryPool, err := s.Pools.Get(ctx, domain.PoolTreasury)
	if err != nil {
		return decimal.Zero, err
	}
	t := treasuryPool.Balance

	units, err := s.Reserve.Units(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reserve units: %w", err)
	}
	price, err := s.reservePrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := domain.EntryValueUSD6(units, price, s.cfg.ReserveDecimals)
	if err != nil {
		return decimal.Zero, err
	}

	num := decimal.NewFromInt(s.cfg.AlphaNum)
	den := decimal.NewFromInt(s.cfg.AlphaDen)

	// x = (R*den - T*num) / (den + num); positive means the reserve is over
	// target and value is sold back to the treasury.
	x, _ := r.Mul(den).Sub(t.Mul(num)).QuoRem(den.Add(num), 0)
	if x.IsZero() {
		return decimal.Zero, nil
	}

	var moved decimal.Decimal
	if x.IsPositive() {
		moved, err = s.sellReserve(ctx, t, units, price, x)
	} else {
		moved, err = s.buyReserve(ctx, t, units, price, x.Neg())
		moved = moved.Neg()
	}
	if err != nil {
		return decimal.Zero, err
	}

	s.audit(ctx, &domain.AuditRecord{
		Operation: "rebalance_reserve",
		Actor:     s.cfg.Principal,
		Detail:    fmt.Sprintf("t=%s r=%s x=%s movedUsd6=%s", t, r, x, moved),
	})
	log.Printf("[INFO] treasury: rebalance movedUsd6=%s (positive=reserve->treasury)", moved)
	return moved, nil
}

// sellReserve moves x USD6 of value from the reserve to the treasury. The
// credited amount is the exact drop in reserve valuation, so the pool sum
// is preserved to the micro-dollar.
func (s *Service) sellReserve(ctx context.Context, t, units, price, x decimal.Decimal) (decimal.Decimal, error) {
	sellUnits, err := domain.UnitsForUSD6(x, price, s.cfg.ReserveDecimals)
	if err != nil {
		return decimal.Zero, err
	}
	if sellUnits.GreaterThan(units) {
		sellUnits = units
	}
	if sellUnits.IsZero() {
		return decimal.Zero, nil
	}

	before, err := domain.EntryValueUSD6(units, price, s.cfg.ReserveDecimals)
	if err != nil {
		return decimal.Zero, err
	}
	after, err := domain.EntryValueUSD6(units.Sub(sellUnits), price, s.cfg.ReserveDecimals)
	if err != nil {
		return decimal.Zero, err
	}
	delta := before.Sub(after)

	if err := s.Reserve.Debit(ctx, sellUnits); err != nil {
		return decimal.Zero, fmt.Errorf("debit reserve: %w", err)
	}
	if err := s.Pools.SetBalance(ctx, domain.PoolTreasury, t.Add(delta)); err != nil {
		if cerr := s.Reserve.Credit(ctx, sellUnits); cerr != nil {
			log.Printf("[WARN] treasury: rebalance compensation failed: %v", cerr)
		}
		return decimal.Zero, err
	}
	return delta, nil
}

// buyReserve moves x USD6 of value from the treasury into the reserve,
// spending exactly the rise in reserve valuation.
func (s *Service) buyReserve(ctx context.Context, t, units, price, x decimal.Decimal) (decimal.Decimal, error) {
	if x.GreaterThan(t) {
		x = t
	}
	buyUnits, err := domain.UnitsForUSD6(x, price, s.cfg.ReserveDecimals)
	if err != nil {
		return decimal.Zero, err
	}
	if buyUnits.IsZero() {
		return decimal.Zero, nil
	}

	before, err := domain.EntryValueUSD6(units, price, s.cfg.ReserveDecimals)
	if err != nil {
		return decimal.Zero, err
	}
	delta := decimal.Zero
	for buyUnits.IsPositive() {
		after, verr := domain.EntryValueUSD6(units.Add(buyUnits), price, s.cfg.ReserveDecimals)
		if verr != nil {
			return decimal.Zero, verr
		}
		delta = after.Sub(before)
		if delta.LessThanOrEqual(t) {
			break
		}
		// Valuation rounding pushed the spend past the balance; shrink.
		buyUnits = buyUnits.Sub(decimal.NewFromInt(1))
	}
	if buyUnits.IsZero() || delta.IsZero() {
		return decimal.Zero, nil
	}

	if err := s.Reserve.Credit(ctx, buyUnits); err != nil {
		return decimal.Zero, fmt.Errorf("credit reserve: %w", err)
	}
	if err := s.Pools.SetBalance(ctx, domain.PoolTreasury, t.Sub(delta)); err != nil {
		if derr := s.Reserve.Debit(ctx, buyUnits); derr != nil {
			log.Printf("[WARN] treasury: rebalance compensation failed: %v", derr)
		}
		return decimal.Zero, err
	}
	return delta, nil
}

// FundEscrowBatch transfers stable value from the treasury pool to the
// escrow pool ahead of a batch going Running.
func (s *Service) FundEscrowBatch(ctx context.Context, caller string, batchID int64, amountUSD6 decimal.Decimal) error {
	if caller != s.cfg.EscrowPrincipal {
		return domain.ErrUnauthorized
	}
	if amountUSD6.LessThanOrEqual(decimal.Zero) {
		return domain.ErrZeroAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	treasuryPool, err := s.Pools.Get(ctx, domain.PoolTreasury)
	if err != nil {
		return err
	}
	if treasuryPool.Balance.LessThan(amountUSD6) {
		return domain.ErrInsufficientBalance
	}
	escrowPool, err := s.Pools.Get(ctx, domain.PoolEscrow)
	if err != nil {
		return err
	}

	if err := s.Pools.SetBalance(ctx, domain.PoolTreasury, treasuryPool.Balance.Sub(amountUSD6)); err != nil {
		return err
	}
	if err := s.Pools.SetBalance(ctx, domain.PoolEscrow, escrowPool.Balance.Add(amountUSD6)); err != nil {
		if rerr := s.Pools.SetBalance(ctx, domain.PoolTreasury, treasuryPool.Balance); rerr != nil {
			log.Printf("[WARN] treasury: funding compensation failed: %v", rerr)
		}
		return err
	}

	s.audit(ctx, &domain.AuditRecord{
		Operation: "fund_batch",
		BatchID:   batchID,
		Actor:     caller,
		Detail:    fmt.Sprintf("amountUsd6=%s", amountUSD6),
	})
	log.Printf("[INFO] treasury: funded batch=%d amountUsd6=%s", batchID, amountUSD6)
	return nil
}

// ReportBatchResult books a closed batch: the returned principal and the
// protocol fee flow back into the treasury pool, leaving the user profit in
// escrow for distribution.
func (s *Service) ReportBatchResult(ctx context.Context, caller string, batchID int64, principalUSD6, userProfitUSD6, feeUSD6, navPerShare decimal.Decimal) error {
	if caller != s.cfg.EscrowPrincipal {
		return domain.ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recycled := principalUSD6.Add(feeUSD6)
	escrowPool, err := s.Pools.Get(ctx, domain.PoolEscrow)
	if err != nil {
		return err
	}
	if escrowPool.Balance.LessThan(recycled) {
		return domain.ErrInsufficientBalance
	}
	treasuryPool, err := s.Pools.Get(ctx, domain.PoolTreasury)
	if err != nil {
		return err
	}

	if err := s.Pools.SetBalance(ctx, domain.PoolEscrow, escrowPool.Balance.Sub(recycled)); err != nil {
		return err
	}
	if err := s.Pools.SetBalance(ctx, domain.PoolTreasury, treasuryPool.Balance.Add(recycled)); err != nil {
		if rerr := s.Pools.SetBalance(ctx, domain.PoolEscrow, escrowPool.Balance); rerr != nil {
			log.Printf("[WARN] treasury: result compensation failed: %v", rerr)
		}
		return err
	}

	s.audit(ctx, &domain.AuditRecord{
		Operation: "batch_result",
		BatchID:   batchID,
		Actor:     caller,
		Detail: fmt.Sprintf("principalUsd6=%s userProfitUsd6=%s feeUsd6=%s navPerShare=%s",
			principalUSD6, userProfitUSD6, feeUSD6, navPerShare),
	})
	log.Printf("[INFO] treasury: batch result booked batch=%d principal=%s userProfit=%s fee=%s",
		batchID, principalUSD6, userProfitUSD6, feeUSD6)
	return nil
}

func (s *Service) reservePrice(ctx context.Context) (decimal.Decimal, error) {
	price, err := s.ReserveOracle.Price(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reserve oracle: %w", err)
	}
	if price.IsZero() {
		return decimal.Zero, domain.ErrOraclePriceZero
	}
	return price, nil
}

func (s *Service) audit(ctx context.Context, record *domain.AuditRecord) {
	record.ID = uuid.New()
	record.At = time.Now()
	if err := s.Audit.Append(ctx, record); err != nil {
		log.Printf("[WARN] treasury: audit append failed for %s: %v", record.Operation, err)
	}
}
