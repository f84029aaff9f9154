package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/vault-scanner/internal/models"
	"github.com/vault-scanner/internal/types"
)

// DepositorRecordRepository handles depositor record persistence. Records are
// append-only: there is no update or delete path.
type DepositorRecordRepository struct {
	db *PostgresDB
}

// NewDepositorRecordRepository creates a new depositor record repository
func NewDepositorRecordRepository(db *PostgresDB) *DepositorRecordRepository {
	return &DepositorRecordRepository{db: db}
}

const depositorRecordColumns = `
	ts, tx_sig, slot, vault, depositor_authority, action, amount, market_index,
	vault_shares_before, vault_shares_after, vault_equity_before,
	user_vault_shares_before, total_vault_shares_before,
	user_vault_shares_after, total_vault_shares_after,
	profit_share, management_fee, management_fee_shares,
	asset_price, notional_value`

// LatestByVault returns the most recent record for a vault by slot, or nil if
// the vault has no history yet. Backfills use its signature as the lower
// bound of the next fetch.
func (r *DepositorRecordRepository) LatestByVault(ctx context.Context, vault string) (*models.DepositorRecord, error) {
	query := `
		SELECT id, ` + depositorRecordColumns + `
		FROM vault_depositor_records
		WHERE vault = $1
		ORDER BY slot DESC
		LIMIT 1
	`

	record, err := scanDepositorRecord(r.db.Pool().QueryRow(ctx, query, vault))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest depositor record: %w", err)
	}

	return record, nil
}

// TxSigsByVault returns the set of transaction signatures already persisted
// for a vault, used as the pre-insert dedup guard.
func (r *DepositorRecordRepository) TxSigsByVault(ctx context.Context, vault string) (map[string]struct{}, error) {
	query := `SELECT tx_sig FROM vault_depositor_records WHERE vault = $1`

	rows, err := r.db.Pool().Query(ctx, query, vault)
	if err != nil {
		return nil, fmt.Errorf("failed to query depositor record signatures: %w", err)
	}
	defer rows.Close()

	sigs := make(map[string]struct{})
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, fmt.Errorf("failed to scan depositor record signature: %w", err)
		}
		sigs[sig] = struct{}{}
	}

	return sigs, rows.Err()
}

// ListByDepositor returns a depositor's full history for one vault, ordered
// by slot ascending.
func (r *DepositorRecordRepository) ListByDepositor(ctx context.Context, depositorAuthority, vault string) ([]models.DepositorRecord, error) {
	query := `
		SELECT id, ` + depositorRecordColumns + `
		FROM vault_depositor_records
		WHERE depositor_authority = $1 AND vault = $2
		ORDER BY slot ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, depositorAuthority, vault)
	if err != nil {
		return nil, fmt.Errorf("failed to query depositor records: %w", err)
	}
	defer rows.Close()

	var records []models.DepositorRecord
	for rows.Next() {
		record, err := scanDepositorRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan depositor record: %w", err)
		}
		records = append(records, *record)
	}

	return records, rows.Err()
}

// BulkInsert persists records in fixed-size batches to respect payload
// limits. The caller is expected to have validated and deduplicated the
// batch; the table's uniqueness constraint backstops both.
func (r *DepositorRecordRepository) BulkInsert(ctx context.Context, records []models.DepositorRecord, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	query := `
		INSERT INTO vault_depositor_records (` + depositorRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	for _, chunk := range chunkRecords(records, batchSize) {
		batch := &pgx.Batch{}
		for _, record := range chunk {
			batch.Queue(query,
				record.Ts,
				record.TxSig,
				record.Slot,
				record.Vault,
				record.DepositorAuthority,
				string(record.Action),
				record.Amount.String(),
				record.MarketIndex,
				record.VaultSharesBefore.String(),
				record.VaultSharesAfter.String(),
				record.VaultEquityBefore.String(),
				record.UserVaultSharesBefore.String(),
				record.TotalVaultSharesBefore.String(),
				record.UserVaultSharesAfter.String(),
				record.TotalVaultSharesAfter.String(),
				record.ProfitShare.String(),
				record.ManagementFee.String(),
				record.ManagementFeeShares.String(),
				record.AssetPrice.String(),
				record.NotionalValue.String(),
			)
		}

		if err := r.db.Pool().SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert depositor record batch: %w", err)
		}
	}

	return nil
}

// FilterNew drops records whose transaction signature is already persisted.
// Redundant with the store-level uniqueness constraint, but keeps reruns of
// overlapping backfill windows from erroring mid-batch.
func FilterNew(records []models.DepositorRecord, existingSigs map[string]struct{}) []models.DepositorRecord {
	var fresh []models.DepositorRecord
	for _, record := range records {
		if _, ok := existingSigs[record.TxSig]; ok {
			continue
		}
		fresh = append(fresh, record)
	}
	return fresh
}

// chunkRecords splits records into insert-sized chunks.
func chunkRecords(records []models.DepositorRecord, size int) [][]models.DepositorRecord {
	var chunks [][]models.DepositorRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}

// scanDepositorRecord scans one row. Numeric columns travel as decimal text
// so arbitrary-precision values survive the round trip.
func scanDepositorRecord(row pgx.Row) (*models.DepositorRecord, error) {
	var record models.DepositorRecord
	var action string
	raw := struct {
		amount, sharesBefore, sharesAfter, equityBefore   string
		userBefore, totalBefore, userAfter, totalAfter    string
		profitShare, managementFee, managementFeeShares   string
		assetPrice, notionalValue                         string
	}{}

	err := row.Scan(
		&record.ID,
		&record.Ts,
		&record.TxSig,
		&record.Slot,
		&record.Vault,
		&record.DepositorAuthority,
		&action,
		&raw.amount,
		&record.MarketIndex,
		&raw.sharesBefore,
		&raw.sharesAfter,
		&raw.equityBefore,
		&raw.userBefore,
		&raw.totalBefore,
		&raw.userAfter,
		&raw.totalAfter,
		&raw.profitShare,
		&raw.managementFee,
		&raw.managementFeeShares,
		&raw.assetPrice,
		&raw.notionalValue,
	)
	if err != nil {
		return nil, err
	}

	record.Action = types.DepositorAction(action)

	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&record.Amount, raw.amount},
		{&record.VaultSharesBefore, raw.sharesBefore},
		{&record.VaultSharesAfter, raw.sharesAfter},
		{&record.VaultEquityBefore, raw.equityBefore},
		{&record.UserVaultSharesBefore, raw.userBefore},
		{&record.TotalVaultSharesBefore, raw.totalBefore},
		{&record.UserVaultSharesAfter, raw.userAfter},
		{&record.TotalVaultSharesAfter, raw.totalAfter},
		{&record.ProfitShare, raw.profitShare},
		{&record.ManagementFee, raw.managementFee},
		{&record.ManagementFeeShares, raw.managementFeeShares},
		{&record.AssetPrice, raw.assetPrice},
		{&record.NotionalValue, raw.notionalValue},
	}
	for _, field := range fields {
		value, err := decimal.NewFromString(field.src)
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q in depositor record: %w", field.src, err)
		}
		*field.dst = value
	}

	return &record, nil
}
