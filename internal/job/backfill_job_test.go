package job

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-scanner/internal/config"
	"github.com/vault-scanner/internal/logging"
	"github.com/vault-scanner/internal/models"
	"github.com/vault-scanner/internal/types"
)

type fakeReconciler struct {
	records   map[string][]models.DepositorRecord
	errs      map[string]error
	untilTxs  map[string]string
	backfills int
}

func (f *fakeReconciler) BackfillRecords(ctx context.Context, vaultPubkey, managerPubkey, untilTx string) ([]models.DepositorRecord, error) {
	f.backfills++
	if f.untilTxs == nil {
		f.untilTxs = make(map[string]string)
	}
	f.untilTxs[vaultPubkey] = untilTx
	if err := f.errs[vaultPubkey]; err != nil {
		return nil, err
	}
	return f.records[vaultPubkey], nil
}

type fakeRecordStore struct {
	latest   map[string]*models.DepositorRecord
	existing map[string]map[string]struct{}
	inserted []models.DepositorRecord
}

func (f *fakeRecordStore) LatestByVault(ctx context.Context, vault string) (*models.DepositorRecord, error) {
	return f.latest[vault], nil
}

func (f *fakeRecordStore) TxSigsByVault(ctx context.Context, vault string) (map[string]struct{}, error) {
	if sigs, ok := f.existing[vault]; ok {
		return sigs, nil
	}
	return map[string]struct{}{}, nil
}

func (f *fakeRecordStore) BulkInsert(ctx context.Context, records []models.DepositorRecord, batchSize int) error {
	f.inserted = append(f.inserted, records...)
	return nil
}

func backfillRegistry() *config.Registry {
	return config.NewRegistry(
		[]config.VaultConfig{
			{Name: "a", VaultPubkey: "vault-a", ManagerPubkey: "mgr-a", MarketIndex: 1},
			{Name: "b", VaultPubkey: "vault-b", ManagerPubkey: "mgr-b", MarketIndex: 1},
		},
		[]config.MarketConfig{{MarketIndex: 1, Symbol: "SOL", PrecisionExp: 9, PriceFeedID: "feed"}},
	)
}

func pricedRecord(txSig, vault string) models.DepositorRecord {
	return models.DepositorRecord{
		TxSig:         txSig,
		Vault:         vault,
		Action:        types.ActionDeposit,
		Amount:        decimal.NewFromInt(100),
		AssetPrice:    decimal.New(150, 6),
		NotionalValue: decimal.NewFromInt(15_000),
	}
}

func newBackfillJob(rec *fakeReconciler, store *fakeRecordStore) *BackfillJob {
	return NewBackfillJob(rec, store, backfillRegistry(), config.BackfillConfig{InsertBatchSize: 100},
		logging.NewLogger(logging.LevelFatal, logging.FormatText))
}

func TestBackfillJob_InsertsFreshRecords(t *testing.T) {
	rec := &fakeReconciler{records: map[string][]models.DepositorRecord{
		"vault-a": {pricedRecord("tx1", "vault-a"), pricedRecord("tx2", "vault-a")},
	}}
	store := &fakeRecordStore{existing: map[string]map[string]struct{}{
		"vault-a": {"tx1": {}},
	}}

	result, err := newBackfillJob(rec, store).Run(context.Background(), []string{"vault-a"}, false)
	require.NoError(t, err)
	require.Len(t, result.Vaults, 1)
	assert.Equal(t, 2, result.Vaults[0].RecordsFetched)
	assert.Equal(t, 1, result.Vaults[0].RecordsInserted)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "tx2", store.inserted[0].TxSig)
	assert.NotEmpty(t, result.RunID)
}

func TestBackfillJob_ResumesFromLatestRecord(t *testing.T) {
	rec := &fakeReconciler{}
	store := &fakeRecordStore{latest: map[string]*models.DepositorRecord{
		"vault-a": {TxSig: "tx-latest"},
	}}

	_, err := newBackfillJob(rec, store).Run(context.Background(), []string{"vault-a"}, false)
	require.NoError(t, err)
	assert.Equal(t, "tx-latest", rec.untilTxs["vault-a"])
}

func TestBackfillJob_FullBackfillIgnoresStoredHistory(t *testing.T) {
	rec := &fakeReconciler{}
	store := &fakeRecordStore{latest: map[string]*models.DepositorRecord{
		"vault-a": {TxSig: "tx-latest"},
	}}

	_, err := newBackfillJob(rec, store).Run(context.Background(), []string{"vault-a"}, true)
	require.NoError(t, err)
	assert.Equal(t, "", rec.untilTxs["vault-a"])
}

func TestBackfillJob_VaultsFailIndependently(t *testing.T) {
	rec := &fakeReconciler{
		records: map[string][]models.DepositorRecord{
			"vault-b": {pricedRecord("tx1", "vault-b")},
		},
		errs: map[string]error{
			"vault-a": errors.New("manager transaction cannot be priced"),
		},
	}
	store := &fakeRecordStore{}

	result, err := newBackfillJob(rec, store).Run(context.Background(), nil, false)
	require.NoError(t, err)
	require.Len(t, result.Vaults, 2)
	assert.Equal(t, 1, result.Failed)
	assert.NotEmpty(t, result.Vaults[0].Error)
	assert.Equal(t, 1, result.Vaults[1].RecordsInserted)
	// The failed vault wrote nothing.
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "vault-b", store.inserted[0].Vault)
}

func TestBackfillJob_ValidationFailureWritesNothing(t *testing.T) {
	bad := pricedRecord("tx-bad", "vault-a")
	bad.AssetPrice = decimal.Zero
	bad.NotionalValue = decimal.Zero

	rec := &fakeReconciler{records: map[string][]models.DepositorRecord{
		"vault-a": {pricedRecord("tx-ok", "vault-a"), bad},
	}}
	store := &fakeRecordStore{}

	result, err := newBackfillJob(rec, store).Run(context.Background(), []string{"vault-a"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, store.inserted)
}

func TestBackfillJob_UnknownVaultsError(t *testing.T) {
	_, err := newBackfillJob(&fakeReconciler{}, &fakeRecordStore{}).
		Run(context.Background(), []string{"vault-unknown"}, false)
	require.Error(t, err)
}
