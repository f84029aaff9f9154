package models

// PeriodApys holds annualized returns over fixed trailing windows, as
// percentages.
type PeriodApys struct {
	Apy7D  float64 `json:"7d"`
	Apy30D float64 `json:"30d"`
	Apy90D float64 `json:"90d"`
}

// VaultMetrics is the display-ready aggregation for one vault. It is
// recomputed wholesale each aggregation cycle and owned by the aggregation
// cache with a last-write-wins policy keyed by vault identifier.
type VaultMetrics struct {
	Apys           PeriodApys `json:"apys"`
	MaxDrawdownPct float64    `json:"maxDrawdownPct"`
	CapacityPct    float64    `json:"capacityPct"`
	NumSnapshots   int        `json:"numOfVaultSnapshots"`
}
