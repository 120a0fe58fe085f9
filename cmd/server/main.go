package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianfi/vaultcore-backend/internal/adapter/repository/memory"
	"github.com/meridianfi/vaultcore-backend/internal/adapter/repository/postgres"
	"github.com/meridianfi/vaultcore-backend/internal/adapter/sim"
	"github.com/meridianfi/vaultcore-backend/internal/config"
	"github.com/meridianfi/vaultcore-backend/internal/domain"
	"github.com/meridianfi/vaultcore-backend/internal/keeper"
	"github.com/meridianfi/vaultcore-backend/internal/usecase/escrow"
	"github.com/meridianfi/vaultcore-backend/internal/usecase/seeder"
	"github.com/meridianfi/vaultcore-backend/internal/usecase/treasury"
	"github.com/meridianfi/vaultcore-backend/internal/usecase/vault"
)

const defaultConfigPath = "config.yaml"

type repositories struct {
	receipts   domain.ReceiptRepository
	credits    domain.CreditRepository
	batches    domain.BatchRepository
	pools      domain.PoolRepository
	collateral domain.CollateralizationRepository
	audit      domain.AuditRepository
	close      func() error
}

func main() {
	configPath := os.Getenv("VAULTCORE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	repos, err := buildRepositories(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer repos.close()

	ctx := context.Background()

	// Seed the system pools before any service touches them.
	poolSeeder := seeder.NewPoolSeeder(repos.pools)
	if err := poolSeeder.Seed(ctx); err != nil {
		log.Fatalf("Failed to seed collateral pools: %v", err)
	}
	log.Println("[INFO] collateral pools seeded")

	// Simulated collaborators stand in for the external oracle, swap pool,
	// reserve controller and token custody until real integrations land.
	yieldOracle := sim.NewOracle(domain.PriceScale)
	reserveOracle := sim.NewOracle(domain.PriceScale)
	swap := sim.NewSwapPool(
		decimal.New(1_000_000, cfg.Assets.YieldDecimals),
		decimal.New(1_000_000, 6),
		30,
	)
	reserve := sim.NewReserveController(decimal.Zero)
	bank := sim.NewTokenBank()

	// The vault, treasury and escrow reference each other through narrow
	// interfaces. Construct them first, then close the cycle by assigning
	// the collaborator fields.
	treasuryService := treasury.NewService(
		repos.pools, repos.collateral, repos.audit,
		yieldOracle, reserveOracle, swap, reserve, nil,
		treasury.Config{
			Principal:       cfg.Principals.Treasury,
			VaultPrincipal:  cfg.Principals.Vault,
			EscrowPrincipal: cfg.Principals.Escrow,
			AlphaNum:        cfg.Treasury.AlphaNum,
			AlphaDen:        cfg.Treasury.AlphaDen,
			SlippageBps:     cfg.Treasury.SlippageBps,
			YieldDecimals:   cfg.Assets.YieldDecimals,
			ReserveDecimals: cfg.Assets.ReserveDecimals,
		},
	)
	escrowService := escrow.NewService(
		repos.batches, repos.pools, repos.receipts, repos.audit,
		treasuryService, nil,
		escrow.Config{
			Principal:         cfg.Principals.Escrow,
			AdminPrincipal:    cfg.Principals.Admin,
			KeeperPrincipal:   cfg.Principals.Keeper,
			VaultPrincipal:    cfg.Principals.Vault,
			TreasuryPrincipal: cfg.Principals.Treasury,
			FeeBps:            cfg.Escrow.FeeBps,
			CreditUnlockDelay: cfg.CreditUnlockDelay(),
			AbsorbLosses:      *cfg.Escrow.AbsorbLosses,
		},
	)
	vaultService := vault.NewService(
		repos.receipts, repos.credits, bank, treasuryService,
		vault.Config{
			AdminPrincipal:      cfg.Principals.Admin,
			CreditIssuers:       []string{cfg.Principals.Treasury, cfg.Principals.Escrow},
			StableAsset:         cfg.Assets.Stable,
			Principal:           cfg.Principals.Vault,
			DefaultLockDuration: cfg.LockDuration(),
		},
	)
	treasuryService.Registrar = escrowService
	escrowService.Credits = vaultService

	if err := vaultService.SetAsset(ctx, cfg.Principals.Admin,
		cfg.Assets.Yield, true, cfg.Assets.YieldDecimals, yieldOracle); err != nil {
		log.Fatalf("Failed to enable yield asset: %v", err)
	}

	// Ensure a live pending batch exists so deposits have somewhere to land.
	if _, err := escrowService.PendingBatch(ctx); errors.Is(err, domain.ErrNotFound) {
		if _, err := escrowService.CreatePendingBatch(ctx, cfg.Principals.Admin); err != nil {
			log.Fatalf("Failed to bootstrap pending batch: %v", err)
		}
		log.Println("[INFO] pending batch bootstrapped")
	} else if err != nil {
		log.Fatalf("Failed to resolve pending batch: %v", err)
	}

	k := keeper.New(ctx, treasuryService, escrowService, cfg.Principals.Keeper)
	if err := k.RegisterAll(cfg.Schedule.RetryCron, cfg.Schedule.RebalanceCron, cfg.Schedule.RollCron); err != nil {
		log.Fatalf("Failed to register keeper tasks: %v", err)
	}
	k.Start()

	waitForShutdown(k)
}

func buildRepositories(cfg *config.Config) (*repositories, error) {
	if cfg.Database.InMemory {
		log.Println("[INFO] using in-memory storage")
		return &repositories{
			receipts:   memory.NewReceiptRepository(),
			credits:    memory.NewCreditRepository(),
			batches:    memory.NewBatchRepository(),
			pools:      memory.NewPoolRepository(),
			collateral: memory.NewCollateralizationRepository(),
			audit:      memory.NewAuditRepository(),
			close:      func() error { return nil },
		}, nil
	}

	// Give Postgres a moment to come up when started alongside the server.
	time.Sleep(2 * time.Second)

	db, err := postgres.NewDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	return &repositories{
		receipts:   postgres.NewReceiptRepository(db),
		credits:    postgres.NewCreditRepository(db),
		batches:    postgres.NewBatchRepository(db),
		pools:      postgres.NewPoolRepository(db),
		collateral: postgres.NewCollateralizationRepository(db),
		audit:      postgres.NewAuditRepository(db),
		close:      db.Close,
	}, nil
}

// waitForShutdown waits for SIGTERM or SIGINT and stops the keeper
func waitForShutdown(k *keeper.Keeper) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal: %v. Shutting down gracefully...", sig)

	k.Stop()
}
