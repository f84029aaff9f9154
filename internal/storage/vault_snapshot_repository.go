package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/vault-scanner/internal/models"
)

// VaultSnapshotRepository handles vault snapshot persistence
type VaultSnapshotRepository struct {
	db *PostgresDB
}

// NewVaultSnapshotRepository creates a new vault snapshot repository
func NewVaultSnapshotRepository(db *PostgresDB) *VaultSnapshotRepository {
	return &VaultSnapshotRepository{db: db}
}

const vaultSnapshotColumns = `
	ts, slot, vault, oracle_price,
	total_account_quote_value, total_account_base_value,
	user_shares, total_shares, net_deposits, net_quote_deposits,
	total_deposits, total_withdraws, total_withdraw_requested,
	manager_net_deposits, manager_total_deposits, manager_total_withdraws,
	manager_total_fee, manager_total_profit_share`

// Insert persists a single snapshot
func (r *VaultSnapshotRepository) Insert(ctx context.Context, snapshot *models.VaultSnapshot) error {
	query := `
		INSERT INTO vault_snapshots (` + vaultSnapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`

	var netQuoteDeposits *string
	if snapshot.NetQuoteDeposits != nil {
		s := snapshot.NetQuoteDeposits.String()
		netQuoteDeposits = &s
	}

	err := r.db.Pool().QueryRow(ctx, query,
		snapshot.Ts,
		snapshot.Slot,
		snapshot.Vault,
		snapshot.OraclePrice.String(),
		snapshot.TotalAccountQuoteValue.String(),
		snapshot.TotalAccountBaseValue.String(),
		snapshot.UserShares.String(),
		snapshot.TotalShares.String(),
		snapshot.NetDeposits.String(),
		netQuoteDeposits,
		snapshot.TotalDeposits.String(),
		snapshot.TotalWithdraws.String(),
		snapshot.TotalWithdrawRequested.String(),
		snapshot.ManagerNetDeposits.String(),
		snapshot.ManagerTotalDeposits.String(),
		snapshot.ManagerTotalWithdraws.String(),
		snapshot.ManagerTotalFee.String(),
		snapshot.ManagerTotalProfitShare.String(),
	).Scan(&snapshot.ID)
	if err != nil {
		return fmt.Errorf("failed to insert vault snapshot: %w", err)
	}

	return nil
}

// ListByVault returns all snapshots for a vault ordered by slot ascending
func (r *VaultSnapshotRepository) ListByVault(ctx context.Context, vault string) ([]models.VaultSnapshot, error) {
	return r.list(ctx, vault, "slot ASC")
}

// ListByVaultTsDesc returns all snapshots for a vault ordered by timestamp
// descending, newest first, the shape the metrics engine consumes.
func (r *VaultSnapshotRepository) ListByVaultTsDesc(ctx context.Context, vault string) ([]models.VaultSnapshot, error) {
	return r.list(ctx, vault, "ts DESC")
}

func (r *VaultSnapshotRepository) list(ctx context.Context, vault, order string) ([]models.VaultSnapshot, error) {
	query := `
		SELECT id, ` + vaultSnapshotColumns + `
		FROM vault_snapshots
		WHERE vault = $1
		ORDER BY ` + order

	rows, err := r.db.Pool().Query(ctx, query, vault)
	if err != nil {
		return nil, fmt.Errorf("failed to query vault snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.VaultSnapshot
	for rows.Next() {
		snapshot, err := scanVaultSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vault snapshot: %w", err)
		}
		snapshots = append(snapshots, *snapshot)
	}

	return snapshots, rows.Err()
}

func scanVaultSnapshot(row pgx.Row) (*models.VaultSnapshot, error) {
	var snapshot models.VaultSnapshot
	var netQuoteDeposits *string
	raw := struct {
		oraclePrice, quoteValue, baseValue            string
		userShares, totalShares, netDeposits          string
		totalDeposits, totalWithdraws, withdrawReq    string
		mgrNet, mgrDeposits, mgrWithdraws, mgrFee     string
		mgrProfitShare                                string
	}{}

	err := row.Scan(
		&snapshot.ID,
		&snapshot.Ts,
		&snapshot.Slot,
		&snapshot.Vault,
		&raw.oraclePrice,
		&raw.quoteValue,
		&raw.baseValue,
		&raw.userShares,
		&raw.totalShares,
		&raw.netDeposits,
		&netQuoteDeposits,
		&raw.totalDeposits,
		&raw.totalWithdraws,
		&raw.withdrawReq,
		&raw.mgrNet,
		&raw.mgrDeposits,
		&raw.mgrWithdraws,
		&raw.mgrFee,
		&raw.mgrProfitShare,
	)
	if err != nil {
		return nil, err
	}

	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&snapshot.OraclePrice, raw.oraclePrice},
		{&snapshot.TotalAccountQuoteValue, raw.quoteValue},
		{&snapshot.TotalAccountBaseValue, raw.baseValue},
		{&snapshot.UserShares, raw.userShares},
		{&snapshot.TotalShares, raw.totalShares},
		{&snapshot.NetDeposits, raw.netDeposits},
		{&snapshot.TotalDeposits, raw.totalDeposits},
		{&snapshot.TotalWithdraws, raw.totalWithdraws},
		{&snapshot.TotalWithdrawRequested, raw.withdrawReq},
		{&snapshot.ManagerNetDeposits, raw.mgrNet},
		{&snapshot.ManagerTotalDeposits, raw.mgrDeposits},
		{&snapshot.ManagerTotalWithdraws, raw.mgrWithdraws},
		{&snapshot.ManagerTotalFee, raw.mgrFee},
		{&snapshot.ManagerTotalProfitShare, raw.mgrProfitShare},
	}
	for _, field := range fields {
		value, err := decimal.NewFromString(field.src)
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q in vault snapshot: %w", field.src, err)
		}
		*field.dst = value
	}

	if netQuoteDeposits != nil {
		value, err := decimal.NewFromString(*netQuoteDeposits)
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q in vault snapshot: %w", *netQuoteDeposits, err)
		}
		snapshot.NetQuoteDeposits = &value
	}

	return &snapshot, nil
}
