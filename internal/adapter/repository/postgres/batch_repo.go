package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfi/vaultcore-backend/internal/domain"
)

// batchRepository implements domain.BatchRepository
type batchRepository struct {
	db *DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *DB) domain.BatchRepository {
	return &batchRepository{db: db}
}

// Create persists a new batch and assigns the next monotonic ID
func (r *batchRepository) Create(ctx context.Context, batch *domain.Batch) (int64, error) {
	query := `
		INSERT INTO batches (status, start_time, end_time, total_collateral_usd6, total_shares, final_nav_per_share, user_profit_usd6, distribution_cursor, funds_deployed, distributed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	var endTime interface{}
	if !batch.EndTime.IsZero() {
		endTime = batch.EndTime
	}

	err := r.db.QueryRowContext(ctx, query,
		string(batch.Status),
		batch.StartTime,
		endTime,
		batch.TotalCollateralUSD6.String(),
		batch.TotalShares.String(),
		batch.FinalNavPerShare.String(),
		batch.UserProfitUSD6.String(),
		batch.DistributionCursor,
		batch.FundsDeployed,
		batch.Distributed,
	).Scan(&batch.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to create batch: %w", err)
	}
	return batch.ID, nil
}

// GetByID retrieves a batch
func (r *batchRepository) GetByID(ctx context.Context, id int64) (*domain.Batch, error) {
	query := `
		SELECT id, status, start_time, end_time, total_collateral_usd6, total_shares, final_nav_per_share, user_profit_usd6, distribution_cursor, funds_deployed, distributed
		FROM batches
		WHERE id = $1
	`
	batch, err := scanBatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get batch by ID: %w", err)
	}
	return batch, nil
}

// GetPending retrieves the single batch in Pending status
func (r *batchRepository) GetPending(ctx context.Context) (*domain.Batch, error) {
	query := `
		SELECT id, status, start_time, end_time, total_collateral_usd6, total_shares, final_nav_per_share, user_profit_usd6, distribution_cursor, funds_deployed, distributed
		FROM batches
		WHERE status = $1
		ORDER BY id DESC
		LIMIT 1
	`
	batch, err := scanBatch(r.db.QueryRowContext(ctx, query, string(domain.BatchPending)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pending batch: %w", err)
	}
	return batch, nil
}

// Update persists batch mutations
func (r *batchRepository) Update(ctx context.Context, batch *domain.Batch) error {
	query := `
		UPDATE batches
		SET status = $2, end_time = $3, total_collateral_usd6 = $4, total_shares = $5, final_nav_per_share = $6, user_profit_usd6 = $7, distribution_cursor = $8, funds_deployed = $9, distributed = $10
		WHERE id = $1
	`
	var endTime interface{}
	if !batch.EndTime.IsZero() {
		endTime = batch.EndTime
	}

	res, err := r.db.ExecContext(ctx, query,
		batch.ID,
		string(batch.Status),
		endTime,
		batch.TotalCollateralUSD6.String(),
		batch.TotalShares.String(),
		batch.FinalNavPerShare.String(),
		batch.UserProfitUSD6.String(),
		batch.DistributionCursor,
		batch.FundsDeployed,
		batch.Distributed,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddMember records a batch member at registration
func (r *batchRepository) AddMember(ctx context.Context, member *domain.BatchMember) error {
	query := `
		INSERT INTO batch_members (batch_id, receipt_id, share_amount, distributed)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query,
		member.BatchID,
		member.ReceiptID,
		member.ShareAmount.String(),
		member.Distributed,
	)
	if err != nil {
		return fmt.Errorf("failed to add batch member: %w", err)
	}
	return nil
}

// GetMember retrieves one member
func (r *batchRepository) GetMember(ctx context.Context, batchID int64, receiptID uuid.UUID) (*domain.BatchMember, error) {
	query := `
		SELECT batch_id, receipt_id, share_amount, distributed
		FROM batch_members
		WHERE batch_id = $1 AND receipt_id = $2
	`
	member, err := scanMember(r.db.QueryRowContext(ctx, query, batchID, receiptID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get batch member: %w", err)
	}
	return member, nil
}

// ListMembers retrieves all members of a batch in registration order
func (r *batchRepository) ListMembers(ctx context.Context, batchID int64) ([]*domain.BatchMember, error) {
	query := `
		SELECT batch_id, receipt_id, share_amount, distributed
		FROM batch_members
		WHERE batch_id = $1
		ORDER BY seq
	`
	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch members: %w", err)
	}
	defer rows.Close()

	var members []*domain.BatchMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// MarkMemberDistributed flips a member's distributed bit
func (r *batchRepository) MarkMemberDistributed(ctx context.Context, batchID int64, receiptID uuid.UUID) error {
	query := `UPDATE batch_members SET distributed = TRUE WHERE batch_id = $1 AND receipt_id = $2`

	res, err := r.db.ExecContext(ctx, query, batchID, receiptID)
	if err != nil {
		return fmt.Errorf("failed to mark member distributed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountUndistributed counts members not yet credited for a batch
func (r *batchRepository) CountUndistributed(ctx context.Context, batchID int64) (int, error) {
	query := `SELECT COUNT(*) FROM batch_members WHERE batch_id = $1 AND distributed = FALSE`

	var count int
	if err := r.db.QueryRowContext(ctx, query, batchID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count undistributed members: %w", err)
	}
	return count, nil
}

func scanBatch(row rowScanner) (*domain.Batch, error) {
	var batch domain.Batch
	var status string
	var endTime sql.NullTime
	var totalStr, sharesStr, navStr, profitStr string

	if err := row.Scan(
		&batch.ID,
		&status,
		&batch.StartTime,
		&endTime,
		&totalStr,
		&sharesStr,
		&navStr,
		&profitStr,
		&batch.DistributionCursor,
		&batch.FundsDeployed,
		&batch.Distributed,
	); err != nil {
		return nil, err
	}

	batch.Status = domain.BatchStatus(status)
	if endTime.Valid {
		batch.EndTime = endTime.Time
	}

	var err error
	if batch.TotalCollateralUSD6, err = decimal.NewFromString(totalStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_collateral_usd6: %w", err)
	}
	if batch.TotalShares, err = decimal.NewFromString(sharesStr); err != nil {
		return nil, fmt.Errorf("failed to parse total_shares: %w", err)
	}
	if batch.FinalNavPerShare, err = decimal.NewFromString(navStr); err != nil {
		return nil, fmt.Errorf("failed to parse final_nav_per_share: %w", err)
	}
	if batch.UserProfitUSD6, err = decimal.NewFromString(profitStr); err != nil {
		return nil, fmt.Errorf("failed to parse user_profit_usd6: %w", err)
	}
	return &batch, nil
}

func scanMember(row rowScanner) (*domain.BatchMember, error) {
	var member domain.BatchMember
	var shareStr string

	if err := row.Scan(
		&member.BatchID,
		&member.ReceiptID,
		&shareStr,
		&member.Distributed,
	); err != nil {
		return nil, err
	}

	share, err := decimal.NewFromString(shareStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse share_amount: %w", err)
	}
	member.ShareAmount = share
	return &member, nil
}
