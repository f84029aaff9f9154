// Package reconciler turns raw transaction logs for a vault into validated
// depositor records. Vault-program events carry the action and share
// accounting; the transacted amount and oracle price are recovered from the
// base-protocol deposit event in the same transaction, falling back to the
// historical price oracle when the on-chain logs are incomplete or stale.
package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vault-scanner/internal/chain"
	"github.com/vault-scanner/internal/config"
	"github.com/vault-scanner/internal/logging"
	"github.com/vault-scanner/internal/models"
	"github.com/vault-scanner/internal/oracle"
	"github.com/vault-scanner/internal/types"
)

// StaleOracleMarker appears in raw log text when the base-protocol event
// failed to serialize its oracle price. The price must then come from the
// historical oracle instead.
const StaleOracleMarker = "Invalid Oracle: Stale"

// ReconciliationError is fatal for the whole backfill batch: a manager action
// without a traceable on-chain amount cannot be priced, and a financial
// record must never be persisted under-priced.
type ReconciliationError struct {
	TxSig  string
	Reason string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation failed for tx %s: %s", e.TxSig, e.Reason)
}

// ValidationError reports deposit/withdraw records that survived the full
// pipeline with zero price or notional value. The batch that produced them
// must not be persisted.
type ValidationError struct {
	TxSigs []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("asset price or notional value is 0 for %d deposit/withdraw records (first: %s)",
		len(e.TxSigs), e.TxSigs[0])
}

// Reconciler produces depositor records from a paginated log source.
type Reconciler struct {
	logs            chain.LogSource
	depositorParser chain.DepositorEventParser
	protocolParser  chain.ProtocolEventParser
	prices          oracle.PriceSource
	registry        *config.Registry
	cfg             config.BackfillConfig
	logger          *logging.Logger
}

// New creates a reconciler with explicitly injected collaborators.
func New(
	logs chain.LogSource,
	depositorParser chain.DepositorEventParser,
	protocolParser chain.ProtocolEventParser,
	prices oracle.PriceSource,
	registry *config.Registry,
	cfg config.BackfillConfig,
	logger *logging.Logger,
) *Reconciler {
	return &Reconciler{
		logs:            logs,
		depositorParser: depositorParser,
		protocolParser:  protocolParser,
		prices:          prices,
		registry:        registry,
		cfg:             cfg,
		logger:          logger,
	}
}

// BackfillRecords fetches and reconciles all depositor records for a vault,
// paging from the most recent transaction backwards until untilTx (exclusive)
// or the start of history.
//
// A page-fetch failure aborts pagination and returns what was accumulated so
// far; the next scheduled run resumes from the latest persisted record. A
// pricing failure for a manager action is fatal and discards the whole batch.
func (r *Reconciler) BackfillRecords(ctx context.Context, vaultPubkey, managerPubkey, untilTx string) ([]models.DepositorRecord, error) {
	logger := r.logger.WithField("vault", vaultPubkey)

	var records []models.DepositorRecord
	beforeTx := ""

	for page := 0; page < r.cfg.MaxPages; page++ {
		logPage, err := r.logs.FetchLogs(ctx, vaultPubkey, beforeTx, untilTx)
		if err != nil {
			// Partial backfill is accepted; the next run picks up from the
			// latest persisted record.
			logger.WithError(err).WithField("page", page).Error("Log fetch failed, keeping records accumulated so far")
			return records, nil
		}

		if logPage == nil || len(logPage.TransactionLogs) == 0 {
			logger.WithField("records", len(records)).Info("Log fetch returned no transactions, ending pagination")
			return records, nil
		}

		for _, txLog := range logPage.TransactionLogs {
			pageRecords, err := r.reconcileTransaction(ctx, txLog, managerPubkey)
			if err != nil {
				return nil, err
			}
			records = append(records, pageRecords...)
		}

		// Short pages usually mean the end of history, with a buffer to
		// tolerate intermittent short pages from the upstream source.
		if len(logPage.TransactionLogs) < r.cfg.MaxTxnsPerPage-r.cfg.TxnsPageBuffer ||
			logPage.EarliestTx == logPage.MostRecentTx {
			logger.WithField("records", len(records)).Info("Pagination ended")
			return records, nil
		}

		logger.WithFields(map[string]interface{}{
			"page":    page,
			"records": len(records),
		}).Info("Pagination continuing")
		beforeTx = logPage.EarliestTx
	}

	logger.WithField("maxPages", r.cfg.MaxPages).Warn("Pagination hit max page bound, keeping records accumulated so far")
	return records, nil
}

// reconcileTransaction prices every depositor event found in one transaction
// log.
func (r *Reconciler) reconcileTransaction(ctx context.Context, txLog chain.TransactionLog, managerPubkey string) ([]models.DepositorRecord, error) {
	var records []models.DepositorRecord

	for _, event := range r.depositorParser.ParseDepositorEvents(txLog) {
		if !event.Action.IsDepositOrWithdraw() {
			// Withdraw requests, cancellations and fee payments carry no
			// transacted value; record them with zero pricing.
			records = append(records, buildRecord(event, event.Amount, decimal.Zero, decimal.Zero))
			continue
		}

		record, err := r.priceDepositOrWithdraw(ctx, txLog, event, managerPubkey)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

// priceDepositOrWithdraw recovers the amount and oracle price for a
// deposit/withdraw event from the base-protocol deposit event in the same
// transaction, or from the historical price oracle.
func (r *Reconciler) priceDepositOrWithdraw(ctx context.Context, txLog chain.TransactionLog, event chain.DepositorEvent, managerPubkey string) (models.DepositorRecord, error) {
	depositEvents, err := r.protocolParser.ParseDepositEvents(txLog)
	if err != nil {
		if hasStaleOracleMarker(txLog.Logs) {
			// The logged price is unusable; recover it from the oracle.
			return r.priceFromOracle(ctx, event)
		}
		r.logger.WithError(err).WithField("txSig", event.TxSig).Error("Failed to parse base-protocol events")
	}

	depositEvent := matchDepositEvent(depositEvents, event.Amount)
	if depositEvent == nil {
		// A manager deposit does not carry the depositor's amount on the
		// vault event, so the base-protocol event is the only source of
		// truth; without it the record cannot be priced.
		if event.DepositorAuthority == managerPubkey {
			return models.DepositorRecord{}, &ReconciliationError{
				TxSig:  event.TxSig,
				Reason: "cannot find base-protocol deposit event for vault manager transaction",
			}
		}

		r.logger.WithField("txSig", event.TxSig).Info("No base-protocol deposit event found, pricing from historical oracle")
		return r.priceFromOracle(ctx, event)
	}

	// The base-protocol event is the source of truth for both amount and
	// price; the vault event's amount is zero for manager actions.
	market, err := r.registry.MarketByIndex(event.MarketIndex)
	if err != nil {
		return models.DepositorRecord{}, err
	}

	notional := notionalValue(depositEvent.Amount, depositEvent.OraclePrice, market.PrecisionExp)
	return buildRecord(event, depositEvent.Amount, depositEvent.OraclePrice, notional), nil
}

// priceFromOracle prices an event via the historical price oracle. The quote
// asset short-circuits to a fixed unit price without a network call.
func (r *Reconciler) priceFromOracle(ctx context.Context, event chain.DepositorEvent) (models.DepositorRecord, error) {
	market, err := r.registry.MarketByIndex(event.MarketIndex)
	if err != nil {
		return models.DepositorRecord{}, err
	}

	var price decimal.Decimal
	if event.MarketIndex == types.QuoteMarketIndex {
		price = types.UnitPrice()
	} else {
		price, err = r.prices.HistoricalPrice(ctx, market.PriceFeedID, event.Ts)
		if err != nil {
			return models.DepositorRecord{}, fmt.Errorf("historical price lookup failed for tx %s: %w", event.TxSig, err)
		}
	}

	notional := notionalValue(event.Amount, price, market.PrecisionExp)
	return buildRecord(event, event.Amount, price, notional), nil
}

// Validate runs the non-zero pricing invariant over a full result set. Any
// deposit/withdraw record with zero price or notional after the complete
// pipeline means the batch must not be persisted.
func Validate(records []models.DepositorRecord) error {
	var offending []string

	for _, record := range records {
		if !record.Action.IsDepositOrWithdraw() {
			continue
		}
		if record.AssetPrice.IsZero() || record.NotionalValue.IsZero() {
			offending = append(offending, record.TxSig)
		}
	}

	if len(offending) > 0 {
		return &ValidationError{TxSigs: offending}
	}
	return nil
}

// matchDepositEvent prefers the base-protocol deposit event with the exact
// amount of the vault event, falling back to the first deposit event in the
// transaction (manager-initiated deposits do not carry the depositor's
// amount).
func matchDepositEvent(events []chain.DepositEvent, amount decimal.Decimal) *chain.DepositEvent {
	for i := range events {
		if events[i].Amount.Equal(amount) {
			return &events[i]
		}
	}
	if len(events) > 0 {
		return &events[0]
	}
	return nil
}

func hasStaleOracleMarker(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, StaleOracleMarker) {
			return true
		}
	}
	return false
}

// notionalValue prices a raw base-asset amount into quote-asset raw units:
// amount * price / 10^basePrecisionExp.
func notionalValue(amount, price decimal.Decimal, basePrecisionExp int32) decimal.Decimal {
	return amount.Mul(price).Shift(-basePrecisionExp).Truncate(0)
}

func buildRecord(event chain.DepositorEvent, amount, price, notional decimal.Decimal) models.DepositorRecord {
	return models.DepositorRecord{
		Ts:                     event.Ts,
		TxSig:                  event.TxSig,
		Slot:                   event.Slot,
		Vault:                  event.Vault,
		DepositorAuthority:     event.DepositorAuthority,
		Action:                 event.Action,
		Amount:                 amount,
		MarketIndex:            event.MarketIndex,
		VaultSharesBefore:      event.VaultSharesBefore,
		VaultSharesAfter:       event.VaultSharesAfter,
		VaultEquityBefore:      event.VaultEquityBefore,
		UserVaultSharesBefore:  event.UserVaultSharesBefore,
		TotalVaultSharesBefore: event.TotalVaultSharesBefore,
		UserVaultSharesAfter:   event.UserVaultSharesAfter,
		TotalVaultSharesAfter:  event.TotalVaultSharesAfter,
		ProfitShare:            event.ProfitShare,
		ManagementFee:          event.ManagementFee,
		ManagementFeeShares:    event.ManagementFeeShares,
		AssetPrice:             price,
		NotionalValue:          notional,
	}
}
