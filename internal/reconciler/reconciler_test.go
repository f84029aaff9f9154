package reconciler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-scanner/internal/chain"
	"github.com/vault-scanner/internal/config"
	"github.com/vault-scanner/internal/logging"
	"github.com/vault-scanner/internal/models"
	"github.com/vault-scanner/internal/types"
)

const (
	testVault   = "VauLt111111111111111111111111111111111111111"
	testManager = "Mgr1111111111111111111111111111111111111111"
	testUser    = "Usr1111111111111111111111111111111111111111"
)

// fakeLogSource serves pre-built pages in order, then empty pages.
type fakeLogSource struct {
	pages   []*chain.LogPage
	err     error
	fetches int
}

func (f *fakeLogSource) FetchLogs(ctx context.Context, address, beforeTx, untilTx string) (*chain.LogPage, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pages) == 0 {
		return &chain.LogPage{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

// fakeDepositorParser maps txSig to depositor events.
type fakeDepositorParser struct {
	events map[string][]chain.DepositorEvent
}

func (f *fakeDepositorParser) ParseDepositorEvents(log chain.TransactionLog) []chain.DepositorEvent {
	return f.events[log.TxSig]
}

// fakeProtocolParser maps txSig to deposit events or a parse error.
type fakeProtocolParser struct {
	events map[string][]chain.DepositEvent
	errs   map[string]error
}

func (f *fakeProtocolParser) ParseDepositEvents(log chain.TransactionLog) ([]chain.DepositEvent, error) {
	if err := f.errs[log.TxSig]; err != nil {
		return nil, err
	}
	return f.events[log.TxSig], nil
}

// fakePriceSource returns a fixed price and records lookups.
type fakePriceSource struct {
	price   decimal.Decimal
	err     error
	lookups int
}

func (f *fakePriceSource) HistoricalPrice(ctx context.Context, feedID string, ts int64) (decimal.Decimal, error) {
	f.lookups++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.price, nil
}

func testRegistry() *config.Registry {
	return config.NewRegistry(
		[]config.VaultConfig{
			{
				Name:          "test",
				VaultPubkey:   testVault,
				ManagerPubkey: testManager,
				MarketIndex:   1,
				MaxCapacity:   decimal.NewFromInt(1_000_000),
			},
		},
		[]config.MarketConfig{
			{MarketIndex: 0, Symbol: "USDC", PrecisionExp: 6},
			{MarketIndex: 1, Symbol: "SOL", PrecisionExp: 9, PriceFeedID: "feed-sol"},
		},
	)
}

func testConfig() config.BackfillConfig {
	return config.BackfillConfig{
		MaxTxnsPerPage:  10,
		TxnsPageBuffer:  2,
		MaxPages:        5,
		InsertBatchSize: 100,
	}
}

func depositorEvent(txSig string, action types.DepositorAction, amount int64, depositor string) chain.DepositorEvent {
	return chain.DepositorEvent{
		Ts:                 1_700_000_000,
		Slot:               100,
		TxSig:              txSig,
		Vault:              testVault,
		DepositorAuthority: depositor,
		Action:             action,
		Amount:             decimal.NewFromInt(amount),
		MarketIndex:        1,
	}
}

func newTestReconciler(logs *fakeLogSource, dep *fakeDepositorParser, prot *fakeProtocolParser, prices *fakePriceSource) *Reconciler {
	return New(logs, dep, prot, prices, testRegistry(), testConfig(), logging.NewLogger(logging.LevelFatal, logging.FormatText))
}

func singlePage(txSigs ...string) []*chain.LogPage {
	page := &chain.LogPage{}
	for _, sig := range txSigs {
		page.TransactionLogs = append(page.TransactionLogs, chain.TransactionLog{TxSig: sig, Slot: 100, Ts: 1_700_000_000})
	}
	if len(txSigs) > 0 {
		page.MostRecentTx = txSigs[0]
		page.EarliestTx = txSigs[len(txSigs)-1]
	}
	return []*chain.LogPage{page}
}

func TestBackfillRecords_ExactAmountMatch(t *testing.T) {
	// One SOL (1e9 raw) priced at $150 (150e6 raw).
	amount := decimal.New(1, 9)
	price := decimal.New(150, 6)

	logs := &fakeLogSource{pages: singlePage("tx1")}
	dep := &fakeDepositorParser{events: map[string][]chain.DepositorEvent{
		"tx1": {depositorEvent("tx1", types.ActionDeposit, 1_000_000_000, testUser)},
	}}
	prot := &fakeProtocolParser{events: map[string][]chain.DepositEvent{
		"tx1": {
			{Amount: decimal.NewFromInt(42), OraclePrice: decimal.New(999, 6), MarketIndex: 1},
			{Amount: amount, OraclePrice: price, MarketIndex: 1},
		},
	}}
	prices := &fakePriceSource{}

	records, err := newTestReconciler(logs, dep, prot, prices).BackfillRecords(context.Background(), testVault, testManager, "")
	require.NoError(t, err)
	require.Len(t, records, 1)

	// The exact-amount event wins over the first event in the transaction.
	assert.True(t, records[0].AssetPrice.Equal(price), "got price %s", records[0].AssetPrice)
	assert.True(t, records[0].Amount.Equal(amount))
	// 1e9 * 150e6 / 1e9 = 150e6 quote raw units.
	assert.True(t, records[0].NotionalValue.Equal(decimal.New(150, 6)), "got notional %s", records[0].NotionalValue)
	assert.Zero(t, prices.lookups)
}

func TestBackfillRecords_FirstEventFallback(t *testing.T) {
	// A manager deposit: the vault event carries a zero amount, so no exact
	// match exists and the first deposit event is used for both amount and
	// price.
	protAmount := decimal.New(2, 9)
	price := decimal.New(150, 6)

	logs := &fakeLogSource{pages: singlePage("tx1")}
	dep := &fakeDepositorParser{events: map[string][]chain.DepositorEvent{
		"tx1": {depositorEvent("tx1", types.ActionDeposit, 0, testManager)},
	}}
	prot := &fakeProtocolParser{events: map[string][]chain.DepositEvent{
		"tx1": {{Amount: protAmount, OraclePrice: price, MarketIndex: 1}},
	}}

	records, err := newTestReconciler(logs, dep, prot, &fakePriceSource{}).BackfillRecords(context.Background(), testVault, testManager, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Amount.Equal(protAmount))
	assert.True(t, records[0].AssetPrice.Equal(price))
}

func TestBackfillRecords_ManagerWithoutDepositEventIsFatal(t *testing.T) {
	logs := &fakeLogSource{pages: singlePage("tx1")}
	dep := &fakeDepositorParser{events: map[string][]chain.DepositorEvent{
		"tx1": {depositorEvent("tx1", types.ActionDeposit, 0, testManager)},
	}}
	prot := &fakeProtocolParser{events: map[string][]chain.DepositEvent{}}

	records, err := newTestReconciler(logs, dep, prot, &fakePriceSource{}).BackfillRecords(context.Background(), testVault, testManager, "")
	require.Error(t, err)
	assert.Nil(t, records)

	var recErr *ReconciliationError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, "tx1", recErr.TxSig)
}

func TestBackfillRecords_StaleOracleFallsBackToHistoricalPrice(t *testing.T) {
	price := decimal.New(140, 6)

	page := singlePage("tx1")
	page[0].TransactionLogs[0].Logs = []string{"Program log: AnchorError: Invalid Oracle: Stale"}

	logs := &fakeLogSource{pages: page}
	dep := &fakeDepositorParser{events: map[string][]chain.DepositorEvent{
		"tx1": {depositorEvent("tx1", types.ActionDeposit, 1_000_000_000, testUser)},
	}}
	prot := &fakeProtocolParser{errs: map[string]error{
		"tx1": fmt.Errorf("event decode failed: Invalid Oracle: Stale"),
	}}
	prices := &fakePriceSource{price: price}

	records, err := newTestReconciler(logs, dep, prot, prices).BackfillRecords(context.Background(), testVault, testManager, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, prices.lookups)
	assert.True(t, records[0].AssetPrice.Equal(price))
	assert.False(t, records[0].NotionalValue.IsZero())
}

func TestBackfillRecords_NonManagerWithoutDepositEventUsesOracle(t *testing.T) {
	price := decimal.New(140, 6)

	logs := &fakeLogSource{pages: singlePage("tx1")}
	dep := &fakeDepositorParser{events: map[string][]chain.DepositorEvent{
		"tx1": {depositorEvent("tx1", types.ActionWithdraw, 500_000_000, testUser)},
	}}
	prot := &fakeProtocolParser{events: map[string][]chain.DepositEvent{}}
	prices := &fakePriceSource{price: price}

	records, err := newTestReconciler(logs, dep, prot, prices).BackfillRecords(context.Background(), testVault, testManager, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, prices.lookups)
	assert.True(t, records[0].AssetPrice.Equal(price))
}

func TestBackfillRecords_QuoteMarketShortCircuits(t *testing.T) {
	registry := config.NewRegistry(
		[]config.VaultConfig{{Name: "q", VaultPubkey: testVault, ManagerPubkey: testManager, MarketIndex: 0}},
		[]config.MarketConfig{{MarketIndex: 0, Symbol: "USDC", PrecisionExp: 6}},
	)

	event := depositorEvent("tx1", types.ActionDeposit, 1_000_000, testUser)
	event.MarketIndex = 0

	logs := &fakeLogSource{pages: singlePage("tx1")}
	dep := &fakeDepositorParser{events: map[string][]chain.DepositorEvent{"tx1": {event}}}
	prot := &fakeProtocolParser{events: map[string][]chain.DepositEvent{}}
	prices := &fakePriceSource{}

	r := New(logs, dep, prot, prices, registry, testConfig(), logging.NewLogger(logging.LevelFatal, logging.FormatText))
	records, err := r.BackfillRecords(context.Background(), testVault, testManager, "")
	require.NoError(t, err)
	require.Len(t, records, 1)

	// No network lookup for the quote asset; price is exactly 1.
	assert.Zero(t, prices.lookups)
	assert.True(t, records[0].AssetPrice.Equal(types.UnitPrice()))
	assert.True(t, records[0].NotionalValue.Equal(decimal.NewFromInt(1_000_000)))
}

func TestBackfillRecords_NonDepositActionsCarryZeroPrice(t *testing.T) {
	logs := &fakeLogSource{pages: singlePage("tx1")}
	dep := &fakeDepositorParser{events: map[string][]chain.DepositorEvent{
		"tx1": {depositorEvent("tx1", types.ActionWithdrawRequest, 500_000_000, testUser)},
	}}
	prot := &fakeProtocolParser{}
	prices := &fakePriceSource{}

	records, err := newTestReconciler(logs, dep, prot, prices).BackfillRecords(context.Background(), testVault, testManager, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].AssetPrice.IsZero())
	assert.True(t, records[0].NotionalValue.IsZero())
	assert.Zero(t, prices.lookups)

	// And the zero price is legal for this action kind.
	assert.NoError(t, Validate(records))
}

func TestBackfillRecords_FetchErrorKeepsPartialResults(t *testing.T) {
	logs := &fakeLogSource{err: errors.New("rpc unavailable")}

	records, err := newTestReconciler(logs, &fakeDepositorParser{}, &fakeProtocolParser{}, &fakePriceSource{}).
		BackfillRecords(context.Background(), testVault, testManager, "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBackfillRecords_StopsOnShortPage(t *testing.T) {
	// 3 transactions < MaxTxnsPerPage(10) - TxnsPageBuffer(2): one fetch only.
	logs := &fakeLogSource{pages: singlePage("tx1", "tx2", "tx3")}
	dep := &fakeDepositorParser{}

	_, err := newTestReconciler(logs, dep, &fakeProtocolParser{}, &fakePriceSource{}).
		BackfillRecords(context.Background(), testVault, testManager, "")
	require.NoError(t, err)
	assert.Equal(t, 1, logs.fetches)
}

func TestBackfillRecords_StopsWhenBoundaryMarkersCollapse(t *testing.T) {
	sigs := make([]string, 9)
	for i := range sigs {
		sigs[i] = "tx-same"
	}
	page := singlePage(sigs...)
	// 9 transactions clears the short-page threshold, but identical boundary
	// markers mean there is nothing older to fetch.
	require.Equal(t, page[0].EarliestTx, page[0].MostRecentTx)

	logs := &fakeLogSource{pages: page}
	_, err := newTestReconciler(logs, &fakeDepositorParser{}, &fakeProtocolParser{}, &fakePriceSource{}).
		BackfillRecords(context.Background(), testVault, testManager, "")
	require.NoError(t, err)
	assert.Equal(t, 1, logs.fetches)
}

func TestBackfillRecords_PaginatesUntilMaxPages(t *testing.T) {
	var pages []*chain.LogPage
	for p := 0; p < 10; p++ {
		sigs := make([]string, 10)
		for i := range sigs {
			sigs[i] = fmt.Sprintf("tx-%d-%d", p, i)
		}
		pages = append(pages, singlePage(sigs...)[0])
	}

	logs := &fakeLogSource{pages: pages}
	_, err := newTestReconciler(logs, &fakeDepositorParser{}, &fakeProtocolParser{}, &fakePriceSource{}).
		BackfillRecords(context.Background(), testVault, testManager, "")
	require.NoError(t, err)
	assert.Equal(t, testConfig().MaxPages, logs.fetches)
}

func TestValidate_RejectsZeroPricedDeposits(t *testing.T) {
	price := decimal.New(150, 6)

	good := buildRecord(depositorEvent("tx-good", types.ActionDeposit, 100, testUser), decimal.NewFromInt(100), price, decimal.NewFromInt(15))
	bad := buildRecord(depositorEvent("tx-bad", types.ActionWithdraw, 100, testUser), decimal.NewFromInt(100), decimal.Zero, decimal.Zero)

	err := Validate([]models.DepositorRecord{good, bad})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, []string{"tx-bad"}, valErr.TxSigs)
}

func TestBackfillRecords_ZeroOracleFallbackFailsValidation(t *testing.T) {
	logs := &fakeLogSource{pages: singlePage("tx1")}
	dep := &fakeDepositorParser{events: map[string][]chain.DepositorEvent{
		"tx1": {depositorEvent("tx1", types.ActionDeposit, 1_000_000_000, testUser)},
	}}
	// No deposit event in the transaction and an oracle that returns 0.
	prices := &fakePriceSource{price: decimal.Zero}

	records, err := newTestReconciler(logs, dep, &fakeProtocolParser{}, prices).
		BackfillRecords(context.Background(), testVault, testManager, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, prices.lookups)

	// The under-priced record must be caught before anything is persisted.
	var valErr *ValidationError
	require.True(t, errors.As(Validate(records), &valErr))
	assert.Equal(t, []string{"tx1"}, valErr.TxSigs)
}
