package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meridianfi/vaultcore-backend/internal/adapter/repository/memory"
	"github.com/meridianfi/vaultcore-backend/internal/domain"
)

// MockTreasuryGateway is a mock implementation of TreasuryGateway for testing
type MockTreasuryGateway struct {
	mock.Mock
}

func (m *MockTreasuryGateway) FundEscrowBatch(ctx context.Context, caller string, batchID int64, amountUSD6 decimal.Decimal) error {
	args := m.Called(ctx, caller, batchID, amountUSD6)
	return args.Error(0)
}

func (m *MockTreasuryGateway) ReportBatchResult(ctx context.Context, caller string, batchID int64, principalUSD6, userProfitUSD6, feeUSD6, navPerShare decimal.Decimal) error {
	args := m.Called(ctx, caller, batchID, principalUSD6, userProfitUSD6, feeUSD6, navPerShare)
	return args.Error(0)
}

// MockCreditIssuer is a mock implementation of CreditIssuer for testing
type MockCreditIssuer struct {
	mock.Mock
}

func (m *MockCreditIssuer) IssueCredit(ctx context.Context, caller, user string, amountUSD6 decimal.Decimal, unlockAt time.Time) error {
	args := m.Called(ctx, caller, user, amountUSD6, unlockAt)
	return args.Error(0)
}

// decEq matches a decimal argument by numeric value. Decimals computed by
// the service can carry a different exponent than the literal with the same
// value, so reflective equality on the struct is too strict.
func decEq(want decimal.Decimal) interface{} {
	return mock.MatchedBy(func(got decimal.Decimal) bool { return got.Equal(want) })
}

type escrowFixture struct {
	service  *Service
	batches  domain.BatchRepository
	pools    domain.PoolRepository
	receipts domain.ReceiptRepository
	audit    domain.AuditRepository
	treasury *MockTreasuryGateway
	credits  *MockCreditIssuer
}

func newEscrowFixture(t *testing.T) *escrowFixture {
	t.Helper()

	f := &escrowFixture{
		batches:  memory.NewBatchRepository(),
		pools:    memory.NewPoolRepository(),
		receipts: memory.NewReceiptRepository(),
		audit:    memory.NewAuditRepository(),
		treasury: new(MockTreasuryGateway),
		credits:  new(MockCreditIssuer),
	}
	f.service = NewService(
		f.batches, f.pools, f.receipts, f.audit,
		f.treasury, f.credits,
		Config{
			Principal:         "escrow",
			AdminPrincipal:    "admin",
			KeeperPrincipal:   "keeper",
			VaultPrincipal:    "vault",
			TreasuryPrincipal: "treasury",
			FeeBps:            2000,
			CreditUnlockDelay: 7 * 24 * time.Hour,
			AbsorbLosses:      true,
		},
	)

	require.NoError(t, f.pools.SetBalance(context.Background(), domain.PoolEscrow, decimal.Zero))
	return f
}

func (f *escrowFixture) setEscrowPool(t *testing.T, balance decimal.Decimal) {
	t.Helper()
	require.NoError(t, f.pools.SetBalance(context.Background(), domain.PoolEscrow, balance))
}

func (f *escrowFixture) escrowBalance(t *testing.T) decimal.Decimal {
	t.Helper()
	pool, err := f.pools.Get(context.Background(), domain.PoolEscrow)
	require.NoError(t, err)
	return pool.Balance
}

func (f *escrowFixture) addReceipt(t *testing.T, owner string, shares decimal.Decimal) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	receipt := &domain.DepositReceipt{
		ID:             uuid.New(),
		Owner:          owner,
		Asset:          "stETH",
		Principal:      decimal.New(1, 18),
		EntryValueUSD6: shares,
		Shares:         shares,
		LockUntil:      time.Now().Add(30 * 24 * time.Hour),
		CreatedAt:      time.Now(),
	}
	require.NoError(t, f.receipts.Create(ctx, receipt))
	return receipt.ID
}

// registerReceipt puts a receipt into the pending batch through the public
// registration path.
func (f *escrowFixture) registerReceipt(t *testing.T, batchID int64, owner string, shares decimal.Decimal) uuid.UUID {
	t.Helper()
	id := f.addReceipt(t, owner, shares)
	require.NoError(t, f.service.RegisterDeposit(context.Background(), "vault", batchID, id, shares, shares))
	return id
}

func TestCreatePendingBatch_OpensFirstWindow(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	id, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	batch, err := f.service.PendingBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchPending, batch.Status)
	assert.True(t, batch.TotalShares.IsZero())
}

func TestCreatePendingBatch_RefusesWhileLiveEmpty(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	_, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)

	_, err = f.service.CreatePendingBatch(ctx, "admin")
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)
}

func TestCreatePendingBatch_RefusesWhileLiveNonEmpty(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	id, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)
	f.registerReceipt(t, id, "alice", decimal.New(1000, 6))

	_, err = f.service.CreatePendingBatch(ctx, "admin")
	assert.ErrorIs(t, err, domain.ErrWrongState)
}

func TestRegisterDeposit_Unauthorized(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	id, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)

	err = f.service.RegisterDeposit(ctx, "mallory", id, uuid.New(), decimal.New(1, 6), decimal.New(1, 6))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRegisterDeposit_BumpsTotalsOnceOnly(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	batchID, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)

	shares := decimal.New(1000, 6)
	receiptID := f.registerReceipt(t, batchID, "alice", shares)

	// Re-registering the same receipt is a no-op.
	require.NoError(t, f.service.RegisterDeposit(ctx, "treasury", batchID, receiptID, shares, shares))

	batch, err := f.service.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.True(t, batch.TotalShares.Equal(shares))
	assert.True(t, batch.TotalCollateralUSD6.Equal(shares))
}

func TestRegisterDeposit_BatchNotPending(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	batchID, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)
	f.registerReceipt(t, batchID, "alice", decimal.New(1000, 6))

	f.treasury.On("FundEscrowBatch", ctx, "escrow", batchID, mock.Anything).Return(nil)
	require.NoError(t, f.service.RollBatch(ctx, "keeper", batchID))

	err = f.service.RegisterDeposit(ctx, "vault", batchID, uuid.New(), decimal.New(1, 6), decimal.New(1, 6))
	assert.ErrorIs(t, err, domain.ErrBatchNotPending)
}

func TestRollBatch_FundsAndOpensSuccessor(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	batchID, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)
	total := decimal.New(100_000, 6)
	f.registerReceipt(t, batchID, "alice", total)

	f.treasury.On("FundEscrowBatch", ctx, "escrow", batchID, decEq(total)).Return(nil)

	nextID, err := f.service.RollToNewBatch(ctx, "keeper")
	require.NoError(t, err)
	assert.Equal(t, int64(2), nextID)

	rolled, err := f.service.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchRunning, rolled.Status)
	assert.False(t, rolled.EndTime.IsZero())

	pending, err := f.service.PendingBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, nextID, pending.ID)
	f.treasury.AssertExpectations(t)
}

func TestRollBatch_EmptyBatch(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	_, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)

	_, err = f.service.RollToNewBatch(ctx, "keeper")
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)
}

func TestRollBatch_FundingFailureLeavesBatchPending(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	batchID, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)
	f.registerReceipt(t, batchID, "alice", decimal.New(100_000, 6))

	f.treasury.On("FundEscrowBatch", ctx, "escrow", batchID, mock.Anything).
		Return(domain.ErrInsufficientBalance)

	_, err = f.service.RollToNewBatch(ctx, "keeper")
	assert.ErrorIs(t, err, domain.ErrFundingFailed)

	batch, err := f.service.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchPending, batch.Status)
}

func TestInvestBatch_BurnsEscrowBalance(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	batchID, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)
	total := decimal.New(100_000, 6)
	f.registerReceipt(t, batchID, "alice", total)

	f.treasury.On("FundEscrowBatch", ctx, "escrow", batchID, decEq(total)).Return(nil)
	_, err = f.service.RollToNewBatch(ctx, "keeper")
	require.NoError(t, err)
	f.setEscrowPool(t, total)

	require.NoError(t, f.service.InvestBatch(ctx, "keeper", batchID))

	batch, err := f.service.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchInvested, batch.Status)
	assert.True(t, batch.FundsDeployed)
	assert.True(t, f.escrowBalance(t).IsZero())

	// Idempotent once Invested.
	require.NoError(t, f.service.InvestBatch(ctx, "keeper", batchID))
	assert.True(t, f.escrowBalance(t).IsZero())
}

func TestInvestBatch_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	batchID, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)
	f.registerReceipt(t, batchID, "alice", decimal.New(100_000, 6))

	f.treasury.On("FundEscrowBatch", ctx, "escrow", batchID, mock.Anything).Return(nil)
	_, err = f.service.RollToNewBatch(ctx, "keeper")
	require.NoError(t, err)

	err = f.service.InvestBatch(ctx, "keeper", batchID)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestInvestBatch_WrongState(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	batchID, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)

	err = f.service.InvestBatch(ctx, "keeper", batchID)
	assert.ErrorIs(t, err, domain.ErrWrongState)
}

// rollAndInvest drives a one-member batch to Invested with the escrow pool
// burned, ready for settlement.
func rollAndInvest(t *testing.T, f *escrowFixture, total decimal.Decimal, owners []string, shares []decimal.Decimal) (int64, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	batchID, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)

	ids := make([]uuid.UUID, len(owners))
	for i := range owners {
		ids[i] = f.registerReceipt(t, batchID, owners[i], shares[i])
	}

	f.treasury.On("FundEscrowBatch", ctx, "escrow", batchID, decEq(total)).Return(nil)
	_, err = f.service.RollToNewBatch(ctx, "keeper")
	require.NoError(t, err)
	f.setEscrowPool(t, total)
	require.NoError(t, f.service.InvestBatch(ctx, "keeper", batchID))
	return batchID, ids
}

func TestDepositReturn_SettlesAtFinalNav(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	// $100k batch at nav 1.1: $110k back, $10k profit, $2k fee, $8k for users.
	total := decimal.New(100_000, 6)
	batchID, _ := rollAndInvest(t, f, total, []string{"alice"}, []decimal.Decimal{total})

	nav := decimal.New(11, 17)
	f.treasury.On("ReportBatchResult", ctx, "escrow", batchID,
		decEq(total), decEq(decimal.New(8000, 6)), decEq(decimal.New(2000, 6)), decEq(nav)).Return(nil)

	require.NoError(t, f.service.DepositReturnForBatch(ctx, "keeper", batchID, nav))

	batch, err := f.service.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchClosed, batch.Status)
	assert.True(t, batch.FinalNavPerShare.Equal(nav))
	assert.True(t, f.escrowBalance(t).Equal(decimal.New(110_000, 6)))
	f.treasury.AssertExpectations(t)
}

func TestDepositReturn_SecondCallAlreadyClosed(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	total := decimal.New(100_000, 6)
	batchID, _ := rollAndInvest(t, f, total, []string{"alice"}, []decimal.Decimal{total})

	nav := decimal.New(11, 17)
	f.treasury.On("ReportBatchResult", ctx, "escrow", batchID,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, f.service.DepositReturnForBatch(ctx, "keeper", batchID, nav))

	err := f.service.DepositReturnForBatch(ctx, "keeper", batchID, nav)
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)
}

func TestDepositReturn_FromRunningRetiresPrincipalFirst(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	batchID, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)
	total := decimal.New(100_000, 6)
	f.registerReceipt(t, batchID, "alice", total)

	f.treasury.On("FundEscrowBatch", ctx, "escrow", batchID, decEq(total)).Return(nil)
	_, err = f.service.RollToNewBatch(ctx, "keeper")
	require.NoError(t, err)
	f.setEscrowPool(t, total)

	// Settled straight from Running: the undeployed principal is retired
	// before the final value is booked, so the pool holds exactly $110k.
	nav := decimal.New(11, 17)
	f.treasury.On("ReportBatchResult", ctx, "escrow", batchID,
		decEq(total), decEq(decimal.New(8000, 6)), decEq(decimal.New(2000, 6)), decEq(nav)).Return(nil)

	require.NoError(t, f.service.DepositReturnForBatch(ctx, "keeper", batchID, nav))

	batch, err := f.service.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchClosed, batch.Status)
	assert.True(t, batch.FundsDeployed)
	assert.True(t, f.escrowBalance(t).Equal(decimal.New(110_000, 6)))
}

func TestDepositReturn_ReportFailureRollsBackPool(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	total := decimal.New(100_000, 6)
	batchID, _ := rollAndInvest(t, f, total, []string{"alice"}, []decimal.Decimal{total})

	nav := decimal.New(11, 17)
	f.treasury.On("ReportBatchResult", ctx, "escrow", batchID,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ErrInsufficientBalance)

	err := f.service.DepositReturnForBatch(ctx, "keeper", batchID, nav)
	assert.Error(t, err)

	batch, berr := f.service.Batch(ctx, batchID)
	require.NoError(t, berr)
	assert.Equal(t, domain.BatchInvested, batch.Status)
	assert.True(t, f.escrowBalance(t).IsZero())
}

func TestDistributeBatch_ProRataWithPartialPasses(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	// Two members at 3:1 shares of a $100k batch; $8k of user profit splits
	// $6k / $2k.
	total := decimal.New(100_000, 6)
	shares := []decimal.Decimal{decimal.New(75_000, 6), decimal.New(25_000, 6)}
	batchID, ids := rollAndInvest(t, f, total, []string{"alice", "bob"}, shares)

	nav := decimal.New(11, 17)
	f.treasury.On("ReportBatchResult", ctx, "escrow", batchID,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	require.NoError(t, f.service.DepositReturnForBatch(ctx, "keeper", batchID, nav))

	f.credits.On("IssueCredit", ctx, "escrow", "alice", decEq(decimal.New(6000, 6)), mock.Anything).Return(nil).Once()
	f.credits.On("IssueCredit", ctx, "escrow", "bob", decEq(decimal.New(2000, 6)), mock.Anything).Return(nil).Once()

	// First pass covers only alice.
	require.NoError(t, f.service.DistributeBatch(ctx, "keeper", batchID, ids[:1]))

	batch, err := f.service.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchClosed, batch.Status)
	assert.Equal(t, 1, batch.DistributionCursor)

	// Second pass repeats alice (skipped, never double-credited) and adds bob.
	require.NoError(t, f.service.DistributeBatch(ctx, "keeper", batchID, ids))

	batch, err = f.service.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchDistributed, batch.Status)
	assert.True(t, batch.Distributed)
	assert.Equal(t, 2, batch.DistributionCursor)

	// $110k booked in, $8k credited out.
	assert.True(t, f.escrowBalance(t).Equal(decimal.New(102_000, 6)))
	f.credits.AssertExpectations(t)

	err = f.service.DistributeBatch(ctx, "keeper", batchID, ids)
	assert.ErrorIs(t, err, domain.ErrAlreadyDistributed)
}

func TestDistributeBatch_WrongState(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	batchID, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)

	err = f.service.DistributeBatch(ctx, "keeper", batchID, nil)
	assert.ErrorIs(t, err, domain.ErrWrongState)
}

func TestDistributeBatch_LossAbsorbedNoCredits(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	total := decimal.New(100_000, 6)
	batchID, ids := rollAndInvest(t, f, total, []string{"alice"}, []decimal.Decimal{total})

	// nav 0.9: only the $90k that came back recycles, the treasury absorbs
	// the loss, user profit is zero.
	nav := decimal.New(9, 17)
	f.treasury.On("ReportBatchResult", ctx, "escrow", batchID,
		decEq(decimal.New(90_000, 6)), decEq(decimal.Zero), decEq(decimal.Zero), decEq(nav)).Return(nil)
	require.NoError(t, f.service.DepositReturnForBatch(ctx, "keeper", batchID, nav))

	require.NoError(t, f.service.DistributeBatch(ctx, "keeper", batchID, ids))

	batch, err := f.service.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchDistributed, batch.Status)
	f.credits.AssertNotCalled(t, "IssueCredit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDistributeBatch_UsesProfitBookedAtClose(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	total := decimal.New(100_000, 6)
	batchID, ids := rollAndInvest(t, f, total, []string{"alice"}, []decimal.Decimal{total})

	nav := decimal.New(11, 17)
	f.treasury.On("ReportBatchResult", ctx, "escrow", batchID,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	require.NoError(t, f.service.DepositReturnForBatch(ctx, "keeper", batchID, nav))

	// The fee policy changes between close and distribution. The payout
	// still follows the $8k booked when the batch closed, matching what the
	// treasury left behind in the escrow pool.
	raised := NewService(f.batches, f.pools, f.receipts, f.audit, f.treasury, f.credits, Config{
		Principal:         "escrow",
		AdminPrincipal:    "admin",
		KeeperPrincipal:   "keeper",
		VaultPrincipal:    "vault",
		TreasuryPrincipal: "treasury",
		FeeBps:            5000,
		CreditUnlockDelay: 7 * 24 * time.Hour,
		AbsorbLosses:      true,
	})
	f.credits.On("IssueCredit", ctx, "escrow", "alice", decEq(decimal.New(8000, 6)), mock.Anything).Return(nil).Once()

	require.NoError(t, raised.DistributeBatch(ctx, "keeper", batchID, ids))

	batch, err := raised.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchDistributed, batch.Status)
	assert.True(t, batch.UserProfitUSD6.Equal(decimal.New(8000, 6)))
	f.credits.AssertExpectations(t)
}

func TestForceSetBatchInvested_BurnsAvailableBalance(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	batchID, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)
	total := decimal.New(100_000, 6)
	f.registerReceipt(t, batchID, "alice", total)

	f.treasury.On("FundEscrowBatch", ctx, "escrow", batchID, decEq(total)).Return(nil)
	_, err = f.service.RollToNewBatch(ctx, "keeper")
	require.NoError(t, err)

	// Only part of the funding landed; the recovery path burns what exists.
	f.setEscrowPool(t, decimal.New(60_000, 6))

	require.NoError(t, f.service.ForceSetBatchInvested(ctx, "admin", batchID))

	batch, err := f.service.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchInvested, batch.Status)
	assert.True(t, batch.FundsDeployed)
	assert.True(t, f.escrowBalance(t).IsZero())

	// No-op once Invested.
	require.NoError(t, f.service.ForceSetBatchInvested(ctx, "admin", batchID))
}

func TestForceSetBatchInvested_AdminOnly(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	err := f.service.ForceSetBatchInvested(ctx, "keeper", 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestMarkInvestedWithoutTransferThenPublicBurn(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	batchID, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)
	total := decimal.New(100_000, 6)
	f.registerReceipt(t, batchID, "alice", total)

	f.treasury.On("FundEscrowBatch", ctx, "escrow", batchID, decEq(total)).Return(nil)
	_, err = f.service.RollToNewBatch(ctx, "keeper")
	require.NoError(t, err)

	require.NoError(t, f.service.MarkBatchInvestedWithoutTransfer(ctx, "admin", batchID))

	batch, err := f.service.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchInvested, batch.Status)
	assert.False(t, batch.FundsDeployed)

	// The deferred burn waits until the balance exists.
	err = f.service.PublicBurnBatch(ctx, "anyone", batchID)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	f.setEscrowPool(t, total)
	require.NoError(t, f.service.PublicBurnBatch(ctx, "anyone", batchID))

	batch, err = f.service.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.True(t, batch.FundsDeployed)
	assert.True(t, f.escrowBalance(t).IsZero())

	// Burn already completed.
	require.NoError(t, f.service.PublicBurnBatch(ctx, "anyone", batchID))
}

func TestBurnBatch_WrongState(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	batchID, err := f.service.CreatePendingBatch(ctx, "admin")
	require.NoError(t, err)

	err = f.service.AdminBurnBatch(ctx, "admin", batchID)
	assert.ErrorIs(t, err, domain.ErrWrongState)
}

func TestOperatorGates(t *testing.T) {
	ctx := context.Background()
	f := newEscrowFixture(t)

	_, err := f.service.CreatePendingBatch(ctx, "mallory")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.ErrorIs(t, f.service.InvestBatch(ctx, "mallory", 1), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.service.DepositReturnForBatch(ctx, "mallory", 1, decimal.New(1, 18)), domain.ErrUnauthorized)
	assert.ErrorIs(t, f.service.DistributeBatch(ctx, "mallory", 1, nil), domain.ErrUnauthorized)
}
