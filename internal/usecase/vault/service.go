package vault

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfi/vaultcore-backend/internal/domain"
)

// Collateralizer converts a freshly deposited receipt into stable
// collateral. Implemented by the treasury service.
type Collateralizer interface {
	CollateralizeForReceipt(ctx context.Context, caller string, receiptID uuid.UUID, amountUSD6 decimal.Decimal) error
}

// Config holds the vault's static wiring.
type Config struct {
	AdminPrincipal      string
	CreditIssuers       []string // principals allowed to call IssueCredit
	StableAsset         string   // asset released on credit claims
	Principal           string   // identity used when calling collaborators
	DefaultLockDuration time.Duration
}

type assetEntry struct {
	cfg    domain.AssetConfig
	oracle domain.PriceOracle
}

// Service is the AssetVault: it owns deposit receipts and profit credits
// and is the only component users interact with directly.
type Service struct {
	Receipts domain.ReceiptRepository
	Credits  domain.CreditRepository
	Bank     domain.TokenBank
	Treasury Collateralizer

	cfg Config

	mu     sync.Mutex
	assets map[string]*assetEntry
	totals map[string]decimal.Decimal // recorded principal per asset
	paused bool
}

// NewService creates a new vault Service instance.
func NewService(
	receipts domain.ReceiptRepository,
	credits domain.CreditRepository,
	bank domain.TokenBank,
	treasury Collateralizer,
	cfg Config,
) *Service {
	return &Service{
		Receipts: receipts,
		Credits:  credits,
		Bank:     bank,
		Treasury: treasury,
		cfg:      cfg,
		assets:   make(map[string]*assetEntry),
		totals:   make(map[string]decimal.Decimal),
	}
}

// SetAsset registers or updates an allow-listed asset. Disabling blocks new
// deposits, not existing receipts.
func (s *Service) SetAsset(ctx context.Context, caller, symbol string, enabled bool, decimals int32, oracle domain.PriceOracle) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.assets[symbol]
	if !ok {
		entry = &assetEntry{cfg: domain.AssetConfig{
			Symbol:       symbol,
			Decimals:     decimals,
			LockDuration: s.cfg.DefaultLockDuration,
		}}
		s.assets[symbol] = entry
	}
	entry.cfg.Enabled = enabled
	entry.oracle = oracle

	if _, ok := s.totals[symbol]; !ok {
		total, err := s.Receipts.TotalPrincipal(ctx, symbol)
		if err != nil {
			return fmt.Errorf("seed principal total for %s: %w", symbol, err)
		}
		s.totals[symbol] = total
	}
	return nil
}

// SetLockDuration updates the lock window applied to new deposits of an
// asset.
func (s *Service) SetLockDuration(_ context.Context, caller, symbol string, d time.Duration) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.assets[symbol]
	if !ok {
		return domain.ErrAssetNotEnabled
	}
	entry.cfg.LockDuration = d
	return nil
}

// Deposit converts an asset deposit into a receipt, pulling the principal
// into custody and forwarding the entry value to the treasury for
// collateralization. Collateralization is never allowed to fail the
// deposit; a shortfall is recorded by the treasury and retried later.
func (s *Service) Deposit(ctx context.Context, caller, asset string, amount decimal.Decimal) (*domain.DepositReceipt, error) {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return nil, domain.ErrPaused
	}
	entry, ok := s.assets[asset]
	if !ok || !entry.cfg.Enabled {
		s.mu.Unlock()
		return nil, domain.ErrAssetNotEnabled
	}
	if entry.oracle == nil {
		s.mu.Unlock()
		return nil, domain.ErrOracleNotSet
	}
	oracle := entry.oracle
	decimals := entry.cfg.Decimals
	lockDuration := entry.cfg.LockDuration
	s.mu.Unlock()

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrZeroAmount
	}

	price, err := oracle.Price(ctx)
	if err != nil {
		return nil, fmt.Errorf("oracle price for %s: %w", asset, err)
	}
	if price.IsZero() {
		return nil, domain.ErrOraclePriceZero
	}

	entryValue, err := domain.EntryValueUSD6(amount, price, decimals)
	if err != nil {
		return nil, err
	}
	if entryValue.IsZero() {
		return nil, domain.ErrZeroAmount
	}

	if err := s.Bank.Pull(ctx, asset, caller, amount); err != nil {
		return nil, fmt.Errorf("pull principal: %w", err)
	}

	// Re-validate after the untrusted transfer: the asset may have been
	// disabled or the vault paused while the pull was in flight.
	s.mu.Lock()
	stillOK := !s.paused && s.assets[asset] != nil && s.assets[asset].cfg.Enabled
	s.mu.Unlock()
	if !stillOK {
		if rerr := s.Bank.Release(ctx, asset, caller, amount); rerr != nil {
			log.Printf("[WARN] vault: refund after rejected deposit failed: %v", rerr)
		}
		return nil, domain.ErrAssetNotEnabled
	}

	now := time.Now()
	receipt := &domain.DepositReceipt{
		ID:             uuid.New(),
		Owner:          caller,
		Asset:          asset,
		Principal:      amount,
		EntryValueUSD6: entryValue,
		Shares:         entryValue,
		LockUntil:      now.Add(lockDuration),
		CreatedAt:      now,
	}
	if err := receipt.Validate(); err != nil {
		return nil, err
	}
	if err := s.Receipts.Create(ctx, receipt); err != nil {
		if rerr := s.Bank.Release(ctx, asset, caller, amount); rerr != nil {
			log.Printf("[WARN] vault: refund after failed persist failed: %v", rerr)
		}
		return nil, fmt.Errorf("persist receipt: %w", err)
	}

	s.mu.Lock()
	s.totals[asset] = s.totals[asset].Add(amount)
	s.mu.Unlock()

	// A momentary collateralization failure must never revert the deposit;
	// the treasury records the shortfall and the keeper retries it.
	if err := s.Treasury.CollateralizeForReceipt(ctx, s.cfg.Principal, receipt.ID, entryValue); err != nil {
		log.Printf("[WARN] vault: collateralize receipt %s deferred: %v", receipt.ID, err)
	}

	log.Printf("[INFO] vault: deposit receipt=%s owner=%s asset=%s amount=%s entryUsd6=%s",
		receipt.ID, caller, asset, amount, entryValue)
	return receipt, nil
}

// WithdrawPrincipal returns the principal of an unlocked receipt to its
// owner. The receipt mutates exactly once.
func (s *Service) WithdrawPrincipal(ctx context.Context, caller string, receiptID uuid.UUID, to string) error {
	s.mu.Lock()
	paused := s.paused
	s.mu.Unlock()
	if paused {
		return domain.ErrPaused
	}

	receipt, err := s.Receipts.GetByID(ctx, receiptID)
	if err != nil {
		return err
	}
	if receipt.Owner != caller {
		return domain.ErrNotOwner
	}
	if receipt.Withdrawn {
		return domain.ErrAlreadyWithdrawn
	}
	if time.Now().Before(receipt.LockUntil) {
		return domain.ErrStillLocked
	}

	receipt.Withdrawn = true
	if err := s.Receipts.Update(ctx, receipt); err != nil {
		return fmt.Errorf("mark receipt withdrawn: %w", err)
	}
	if err := s.Bank.Release(ctx, receipt.Asset, to, receipt.Principal); err != nil {
		// Roll the flag back so the transition never half-applies.
		receipt.Withdrawn = false
		if uerr := s.Receipts.Update(ctx, receipt); uerr != nil {
			log.Printf("[WARN] vault: rollback of receipt %s failed: %v", receiptID, uerr)
		}
		return fmt.Errorf("release principal: %w", err)
	}

	s.mu.Lock()
	s.totals[receipt.Asset] = s.totals[receipt.Asset].Sub(receipt.Principal)
	s.mu.Unlock()

	log.Printf("[INFO] vault: withdraw receipt=%s to=%s amount=%s", receiptID, to, receipt.Principal)
	return nil
}

// IssueCredit appends a profit credit for a user. Restricted to the
// treasury-driven distribution path.
func (s *Service) IssueCredit(ctx context.Context, caller, user string, amountUSD6 decimal.Decimal, unlockAt time.Time) error {
	if !s.isCreditIssuer(caller) {
		return domain.ErrUnauthorized
	}
	if amountUSD6.LessThanOrEqual(decimal.Zero) {
		return domain.ErrZeroAmount
	}

	credit := &domain.ProfitCredit{
		ID:         uuid.New(),
		Owner:      user,
		AmountUSD6: amountUSD6,
		UnlockAt:   unlockAt,
		CreatedAt:  time.Now(),
	}
	if err := credit.Validate(); err != nil {
		return err
	}
	if err := s.Credits.Append(ctx, credit); err != nil {
		return fmt.Errorf("append credit: %w", err)
	}
	log.Printf("[INFO] vault: credit issued owner=%s amountUsd6=%s unlockAt=%s", user, amountUSD6, unlockAt)
	return nil
}

// ClaimCredit releases the stable value of one unlocked, unclaimed credit
// to its owner. The credit is addressed by its index in the owner's list.
func (s *Service) ClaimCredit(ctx context.Context, caller string, index int) error {
	s.mu.Lock()
	paused := s.paused
	s.mu.Unlock()
	if paused {
		return domain.ErrPaused
	}

	credit, err := s.Credits.GetByOwnerIndex(ctx, caller, index)
	if err != nil {
		return err
	}
	if credit.Claimed {
		return domain.ErrAlreadyClaimed
	}
	if time.Now().Before(credit.UnlockAt) {
		return domain.ErrNotUnlocked
	}

	credit.Claimed = true
	if err := s.Credits.Update(ctx, credit); err != nil {
		return fmt.Errorf("mark credit claimed: %w", err)
	}
	if err := s.Bank.Release(ctx, s.cfg.StableAsset, caller, credit.AmountUSD6); err != nil {
		credit.Claimed = false
		if uerr := s.Credits.Update(ctx, credit); uerr != nil {
			log.Printf("[WARN] vault: rollback of credit %s failed: %v", credit.ID, uerr)
		}
		return fmt.Errorf("release credit value: %w", err)
	}

	log.Printf("[INFO] vault: credit claimed owner=%s index=%d amountUsd6=%s", caller, index, credit.AmountUSD6)
	return nil
}

// PendingCredits aggregates a user's unclaimed credits, returning the total
// outstanding and the portion already unlocked.
func (s *Service) PendingCredits(ctx context.Context, user string) (outstanding, unlocked decimal.Decimal, err error) {
	credits, err := s.Credits.ListByOwner(ctx, user)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	now := time.Now()
	outstanding, unlocked = decimal.Zero, decimal.Zero
	for _, c := range credits {
		if c.Claimed {
			continue
		}
		outstanding = outstanding.Add(c.AmountUSD6)
		if !now.Before(c.UnlockAt) {
			unlocked = unlocked.Add(c.AmountUSD6)
		}
	}
	return outstanding, unlocked, nil
}

// Pause blocks deposits, withdrawals, and claims until Unpause.
func (s *Service) Pause(_ context.Context, caller string) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	log.Printf("[INFO] vault: paused by %s", caller)
	return nil
}

// Unpause lifts a pause.
func (s *Service) Unpause(_ context.Context, caller string) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	log.Printf("[INFO] vault: unpaused by %s", caller)
	return nil
}

// Sweep releases the full custodied balance of a stray token. Enabled
// deposit assets cannot be swept.
func (s *Service) Sweep(ctx context.Context, caller, token, to string) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	entry, ok := s.assets[token]
	protected := ok && entry.cfg.Enabled
	s.mu.Unlock()
	if protected {
		return domain.ErrSweepProtected
	}

	balance, err := s.Bank.BalanceOf(ctx, token)
	if err != nil {
		return fmt.Errorf("sweep balance of %s: %w", token, err)
	}
	if balance.IsZero() {
		return nil
	}
	if err := s.Bank.Release(ctx, token, to, balance); err != nil {
		return fmt.Errorf("sweep %s: %w", token, err)
	}
	log.Printf("[INFO] vault: swept token=%s to=%s amount=%s", token, to, balance)
	return nil
}

// TotalDeposited returns the vault's recorded principal total for an asset.
// The invariant is that this always equals the sum of principal over the
// asset's non-withdrawn receipts.
func (s *Service) TotalDeposited(_ context.Context, asset string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[asset]
}

func (s *Service) requireAdmin(caller string) error {
	if caller != s.cfg.AdminPrincipal {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *Service) isCreditIssuer(caller string) bool {
	for _, p := range s.cfg.CreditIssuers {
		if caller == p {
			return true
		}
	}
	return false
}
