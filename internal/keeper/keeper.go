// Package keeper runs the protocol's periodic maintenance: retrying
// collateralization shortfalls, rebalancing the hard reserve, and rolling
// the pending batch into its investment window.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/meridianfi/vaultcore-backend/internal/domain"
	"github.com/meridianfi/vaultcore-backend/internal/usecase/escrow"
	"github.com/meridianfi/vaultcore-backend/internal/usecase/treasury"
)

// Keeper manages all cron tasks.
type Keeper struct {
	Cron      *cron.Cron
	Treasury  *treasury.Service
	Escrow    *escrow.Service
	Principal string
	Ctx       context.Context
}

// New creates a new Keeper acting under the given principal.
func New(ctx context.Context, ts *treasury.Service, es *escrow.Service, principal string) *Keeper {
	return &Keeper{
		Cron:      cron.New(cron.WithSeconds()),
		Treasury:  ts,
		Escrow:    es,
		Principal: principal,
		Ctx:       ctx,
	}
}

// RegisterAll registers the shortfall retry, rebalance, and batch roll tasks.
func (k *Keeper) RegisterAll(retryCron, rebalanceCron, rollCron string) error {
	if _, err := k.Cron.AddFunc(retryCron, k.retryShortfalls); err != nil {
		return fmt.Errorf("register retry task: %w", err)
	}
	if _, err := k.Cron.AddFunc(rebalanceCron, k.rebalanceReserve); err != nil {
		return fmt.Errorf("register rebalance task: %w", err)
	}
	if rollCron != "" {
		if _, err := k.Cron.AddFunc(rollCron, k.rollBatch); err != nil {
			return fmt.Errorf("register roll task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (k *Keeper) Start() {
	k.Cron.Start()
	log.Println("[INFO] keeper started")
}

// Stop stops the cron scheduler gracefully.
func (k *Keeper) Stop() {
	k.Cron.Stop()
	log.Println("[INFO] keeper stopped")
}

func (k *Keeper) retryShortfalls() {
	recovered, err := k.Treasury.RetryShortfalls(k.Ctx)
	if err != nil {
		log.Printf("[ERROR] retry shortfalls: %v", err)
		return
	}
	if recovered > 0 {
		log.Printf("[INFO] recovered %d collateralization shortfalls", recovered)
	}
}

func (k *Keeper) rebalanceReserve() {
	moved, err := k.Treasury.RebalanceReserve(k.Ctx)
	if err != nil {
		log.Printf("[ERROR] rebalance reserve: %v", err)
		return
	}
	if !moved.IsZero() {
		log.Printf("[INFO] rebalanced reserve, moved %s USD6 of value", moved)
	}
}

func (k *Keeper) rollBatch() {
	id, err := k.Escrow.RollToNewBatch(k.Ctx, k.Principal)
	if err != nil {
		// An empty pending batch is normal during quiet periods.
		if errors.Is(err, domain.ErrEmptyBatch) {
			log.Println("[INFO] pending batch empty, roll skipped")
			return
		}
		log.Printf("[ERROR] roll batch: %v", err)
		return
	}
	log.Printf("[INFO] rolled batch, new pending batch %d", id)
}
