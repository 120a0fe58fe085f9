// Package memory provides in-memory repository implementations used by dev
// mode and scenario tests. All repositories are safe for concurrent use.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfi/vaultcore-backend/internal/domain"
)

// ReceiptRepository implements domain.ReceiptRepository.
type ReceiptRepository struct {
	mu       sync.RWMutex
	receipts map[uuid.UUID]*domain.DepositReceipt
	order    []uuid.UUID
}

// NewReceiptRepository creates a new in-memory receipt repository.
func NewReceiptRepository() *ReceiptRepository {
	return &ReceiptRepository{receipts: make(map[uuid.UUID]*domain.DepositReceipt)}
}

func (r *ReceiptRepository) Create(_ context.Context, receipt *domain.DepositReceipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *receipt
	r.receipts[receipt.ID] = &cp
	r.order = append(r.order, receipt.ID)
	return nil
}

func (r *ReceiptRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.DepositReceipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	receipt, ok := r.receipts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *receipt
	return &cp, nil
}

func (r *ReceiptRepository) Update(_ context.Context, receipt *domain.DepositReceipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.receipts[receipt.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *receipt
	r.receipts[receipt.ID] = &cp
	return nil
}

func (r *ReceiptRepository) ListByOwner(_ context.Context, owner string) ([]*domain.DepositReceipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.DepositReceipt
	for _, id := range r.order {
		if receipt := r.receipts[id]; receipt.Owner == owner {
			cp := *receipt
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *ReceiptRepository) TotalPrincipal(_ context.Context, asset string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := decimal.Zero
	for _, receipt := range r.receipts {
		if receipt.Asset == asset && !receipt.Withdrawn {
			total = total.Add(receipt.Principal)
		}
	}
	return total, nil
}

// CreditRepository implements domain.CreditRepository.
type CreditRepository struct {
	mu      sync.RWMutex
	byOwner map[string][]*domain.ProfitCredit
}

// NewCreditRepository creates a new in-memory credit repository.
func NewCreditRepository() *CreditRepository {
	return &CreditRepository{byOwner: make(map[string][]*domain.ProfitCredit)}
}

func (r *CreditRepository) Append(_ context.Context, credit *domain.ProfitCredit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *credit
	r.byOwner[credit.Owner] = append(r.byOwner[credit.Owner], &cp)
	return nil
}

func (r *CreditRepository) GetByOwnerIndex(_ context.Context, owner string, index int) (*domain.ProfitCredit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	credits := r.byOwner[owner]
	if index < 0 || index >= len(credits) {
		return nil, domain.ErrNotFound
	}
	cp := *credits[index]
	return &cp, nil
}

func (r *CreditRepository) ListByOwner(_ context.Context, owner string) ([]*domain.ProfitCredit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	credits := r.byOwner[owner]
	out := make([]*domain.ProfitCredit, 0, len(credits))
	for _, c := range credits {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (r *CreditRepository) Update(_ context.Context, credit *domain.ProfitCredit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.byOwner[credit.Owner] {
		if c.ID == credit.ID {
			cp := *credit
			r.byOwner[credit.Owner][i] = &cp
			return nil
		}
	}
	return domain.ErrNotFound
}

type memberKey struct {
	batchID   int64
	receiptID uuid.UUID
}

// BatchRepository implements domain.BatchRepository with a monotonic ID
// sequence.
type BatchRepository struct {
	mu      sync.RWMutex
	nextID  int64
	batches map[int64]*domain.Batch
	members map[memberKey]*domain.BatchMember
	order   []memberKey
}

// NewBatchRepository creates a new in-memory batch repository.
func NewBatchRepository() *BatchRepository {
	return &BatchRepository{
		nextID:  1,
		batches: make(map[int64]*domain.Batch),
		members: make(map[memberKey]*domain.BatchMember),
	}
}

func (r *BatchRepository) Create(_ context.Context, batch *domain.Batch) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch.ID = r.nextID
	r.nextID++
	cp := *batch
	r.batches[batch.ID] = &cp
	return batch.ID, nil
}

func (r *BatchRepository) GetByID(_ context.Context, id int64) (*domain.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	batch, ok := r.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *batch
	return &cp, nil
}

func (r *BatchRepository) GetPending(_ context.Context) (*domain.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id := r.nextID - 1; id >= 1; id-- {
		if batch, ok := r.batches[id]; ok && batch.Status == domain.BatchPending {
			cp := *batch
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *BatchRepository) Update(_ context.Context, batch *domain.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[batch.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *batch
	r.batches[batch.ID] = &cp
	return nil
}

func (r *BatchRepository) AddMember(_ context.Context, member *domain.BatchMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memberKey{member.BatchID, member.ReceiptID}
	cp := *member
	r.members[key] = &cp
	r.order = append(r.order, key)
	return nil
}

func (r *BatchRepository) GetMember(_ context.Context, batchID int64, receiptID uuid.UUID) (*domain.BatchMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	member, ok := r.members[memberKey{batchID, receiptID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *member
	return &cp, nil
}

func (r *BatchRepository) ListMembers(_ context.Context, batchID int64) ([]*domain.BatchMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.BatchMember
	for _, key := range r.order {
		if key.batchID == batchID {
			cp := *r.members[key]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *BatchRepository) MarkMemberDistributed(_ context.Context, batchID int64, receiptID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	member, ok := r.members[memberKey{batchID, receiptID}]
	if !ok {
		return domain.ErrNotFound
	}
	member.Distributed = true
	return nil
}

func (r *BatchRepository) CountUndistributed(_ context.Context, batchID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for key, member := range r.members {
		if key.batchID == batchID && !member.Distributed {
			count++
		}
	}
	return count, nil
}

// PoolRepository implements domain.PoolRepository.
type PoolRepository struct {
	mu    sync.RWMutex
	pools map[string]decimal.Decimal
}

// NewPoolRepository creates a new in-memory pool repository.
func NewPoolRepository() *PoolRepository {
	return &PoolRepository{pools: make(map[string]decimal.Decimal)}
}

func (r *PoolRepository) Get(_ context.Context, name string) (*domain.CollateralPool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	balance, ok := r.pools[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.CollateralPool{Name: name, Balance: balance}, nil
}

func (r *PoolRepository) SetBalance(_ context.Context, name string, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[name] = balance
	return nil
}

// CollateralizationRepository implements
// domain.CollateralizationRepository.
type CollateralizationRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*domain.CollateralizationRecord
}

// NewCollateralizationRepository creates a new in-memory
// collateralization repository.
func NewCollateralizationRepository() *CollateralizationRepository {
	return &CollateralizationRepository{records: make(map[uuid.UUID]*domain.CollateralizationRecord)}
}

func (r *CollateralizationRepository) Get(_ context.Context, receiptID uuid.UUID) (*domain.CollateralizationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[receiptID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (r *CollateralizationRepository) Put(_ context.Context, record *domain.CollateralizationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *record
	r.records[record.ReceiptID] = &cp
	return nil
}

func (r *CollateralizationRepository) ListShortfalls(_ context.Context) ([]*domain.CollateralizationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.CollateralizationRecord
	for _, record := range r.records {
		if record.Status == domain.CollateralizationShortfall {
			cp := *record
			out = append(out, &cp)
		}
	}
	return out, nil
}

// AuditRepository implements domain.AuditRepository.
type AuditRepository struct {
	mu      sync.RWMutex
	records []*domain.AuditRecord
}

// NewAuditRepository creates a new in-memory audit repository.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Append(_ context.Context, record *domain.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *record
	r.records = append(r.records, &cp)
	return nil
}

func (r *AuditRepository) ListByBatch(_ context.Context, batchID int64) ([]*domain.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.AuditRecord
	for _, record := range r.records {
		if record.BatchID == batchID {
			cp := *record
			out = append(out, &cp)
		}
	}
	return out, nil
}
