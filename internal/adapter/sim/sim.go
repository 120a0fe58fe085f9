// Package sim provides simulated collaborators (price oracle, swap pool,
// reserve controller, token bank) for dev mode and tests. The real protocol
// wires external implementations of the same interfaces.
package sim

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/meridianfi/vaultcore-backend/internal/domain"
)

// Oracle is a settable fixed-price oracle at the 1e8 scale.
type Oracle struct {
	mu    sync.RWMutex
	price decimal.Decimal
	err   error
}

// NewOracle creates an oracle returning the given 1e8-scaled price.
func NewOracle(price decimal.Decimal) *Oracle {
	return &Oracle{price: price}
}

func (o *Oracle) Price(_ context.Context) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.err != nil {
		return decimal.Zero, o.err
	}
	return o.price, nil
}

// SetPrice updates the returned price.
func (o *Oracle) SetPrice(price decimal.Decimal) {
	o.mu.Lock()
	o.price = price
	o.mu.Unlock()
}

// Fail makes subsequent Price calls return err; nil restores normal
// operation.
func (o *Oracle) Fail(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

// SwapPool is a constant-product pool converting yield asset to stable
// asset with a fee in basis points.
type SwapPool struct {
	mu            sync.Mutex
	yieldReserve  decimal.Decimal
	stableReserve decimal.Decimal
	feeBps        int64
}

// NewSwapPool creates a pool with the given starting reserves and fee.
func NewSwapPool(yieldReserve, stableReserve decimal.Decimal, feeBps int64) *SwapPool {
	return &SwapPool{yieldReserve: yieldReserve, stableReserve: stableReserve, feeBps: feeBps}
}

// quote computes the constant-product output for yieldIn after fees:
// out = stableReserve * inAfterFee / (yieldReserve + inAfterFee).
func (p *SwapPool) quote(yieldIn decimal.Decimal) (decimal.Decimal, error) {
	if yieldIn.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, domain.ErrZeroAmount
	}
	inAfterFee, err := domain.MulDivFloor(yieldIn,
		decimal.NewFromInt(10_000-p.feeBps), decimal.NewFromInt(10_000))
	if err != nil {
		return decimal.Zero, err
	}
	denom := p.yieldReserve.Add(inAfterFee)
	if denom.IsZero() {
		return decimal.Zero, domain.ErrInsufficientLiquidity
	}
	return domain.MulDivFloor(p.stableReserve, inAfterFee, denom)
}

func (p *SwapPool) QuoteStableOut(_ context.Context, yieldIn decimal.Decimal) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quote(yieldIn)
}

func (p *SwapPool) SwapYieldForStable(_ context.Context, yieldIn, minStableOut decimal.Decimal) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out, err := p.quote(yieldIn)
	if err != nil {
		return decimal.Zero, err
	}
	if out.LessThan(minStableOut) || out.GreaterThan(p.stableReserve) {
		return decimal.Zero, domain.ErrInsufficientLiquidity
	}
	p.yieldReserve = p.yieldReserve.Add(yieldIn)
	p.stableReserve = p.stableReserve.Sub(out)
	return out, nil
}

// Drain empties the stable side so every swap fails, simulating an
// illiquid pool.
func (p *SwapPool) Drain() {
	p.mu.Lock()
	p.stableReserve = decimal.Zero
	p.mu.Unlock()
}

// Refill restores the stable reserve.
func (p *SwapPool) Refill(stableReserve decimal.Decimal) {
	p.mu.Lock()
	p.stableReserve = stableReserve
	p.mu.Unlock()
}

// ReserveController custodies hard-asset units in memory.
type ReserveController struct {
	mu    sync.Mutex
	units decimal.Decimal
}

// NewReserveController creates a reserve holding the given starting units.
func NewReserveController(units decimal.Decimal) *ReserveController {
	return &ReserveController{units: units}
}

func (r *ReserveController) Units(_ context.Context) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.units, nil
}

func (r *ReserveController) Credit(_ context.Context, units decimal.Decimal) error {
	if units.IsNegative() {
		return domain.ErrZeroAmount
	}
	r.mu.Lock()
	r.units = r.units.Add(units)
	r.mu.Unlock()
	return nil
}

func (r *ReserveController) Debit(_ context.Context, units decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if units.IsNegative() || units.GreaterThan(r.units) {
		return domain.ErrInsufficientBalance
	}
	r.units = r.units.Sub(units)
	return nil
}

// TokenBank tracks custodied balances per asset and holder balances the
// bank has paid out, so tests can observe transfers.
type TokenBank struct {
	mu        sync.Mutex
	custody   map[string]decimal.Decimal            // asset -> custodied amount
	holders   map[string]map[string]decimal.Decimal // asset -> holder -> free amount
	failPulls bool
}

// NewTokenBank creates an empty bank.
func NewTokenBank() *TokenBank {
	return &TokenBank{
		custody: make(map[string]decimal.Decimal),
		holders: make(map[string]map[string]decimal.Decimal),
	}
}

// Mint gives a holder a free balance to deposit from.
func (b *TokenBank) Mint(asset, holder string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.holders[asset] == nil {
		b.holders[asset] = make(map[string]decimal.Decimal)
	}
	b.holders[asset][holder] = b.holders[asset][holder].Add(amount)
}

// FailPulls makes subsequent Pull calls fail, simulating a broken token.
func (b *TokenBank) FailPulls(fail bool) {
	b.mu.Lock()
	b.failPulls = fail
	b.mu.Unlock()
}

func (b *TokenBank) BalanceOf(_ context.Context, asset string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.custody[asset], nil
}

// HolderBalance reports a holder's free balance, for test assertions.
func (b *TokenBank) HolderBalance(asset, holder string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.holders[asset][holder]
}

func (b *TokenBank) Pull(_ context.Context, asset, from string, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPulls {
		return domain.ErrTransferFailed
	}
	free := b.holders[asset][from]
	if amount.IsNegative() || free.LessThan(amount) {
		return domain.ErrTransferFailed
	}
	b.holders[asset][from] = free.Sub(amount)
	b.custody[asset] = b.custody[asset].Add(amount)
	return nil
}

func (b *TokenBank) Release(_ context.Context, asset, to string, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if amount.IsNegative() || b.custody[asset].LessThan(amount) {
		return domain.ErrTransferFailed
	}
	b.custody[asset] = b.custody[asset].Sub(amount)
	if b.holders[asset] == nil {
		b.holders[asset] = make(map[string]decimal.Decimal)
	}
	b.holders[asset][to] = b.holders[asset][to].Add(amount)
	return nil
}
