package api

import (
	"net/http"

	"github.com/vault-scanner/internal/models"
)

// handleApyReturns returns the cached per-vault metrics as a flat map keyed
// by vault pubkey.
func (s *Server) handleApyReturns(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.metricsReader.ReadAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to read metrics cache", nil)
		return
	}
	if metrics == nil {
		metrics = map[string]models.VaultMetrics{}
	}

	respondJSON(w, http.StatusOK, metrics)
}

// handleVaultSnapshots returns a vault's snapshot history ordered by slot
// ascending.
func (s *Server) handleVaultSnapshots(w http.ResponseWriter, r *http.Request) {
	vault := r.URL.Query().Get("vault")
	if vault == "" {
		respondMissingParam(w, "vault")
		return
	}

	snapshots, err := s.snapshots.ListByVault(r.Context(), vault)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to load vault snapshots", nil)
		return
	}
	if snapshots == nil {
		snapshots = []models.VaultSnapshot{}
	}

	respondJSON(w, http.StatusOK, snapshots)
}

// handleVaultDepositor returns a depositor's record history for one vault
// ordered by slot ascending.
func (s *Server) handleVaultDepositor(w http.ResponseWriter, r *http.Request) {
	depositorAuthority := r.URL.Query().Get("depositorAuthority")
	if depositorAuthority == "" {
		respondMissingParam(w, "depositorAuthority")
		return
	}
	vault := r.URL.Query().Get("vault")
	if vault == "" {
		respondMissingParam(w, "vault")
		return
	}

	records, err := s.depositors.ListByDepositor(r.Context(), depositorAuthority, vault)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to load depositor records", nil)
		return
	}
	if records == nil {
		records = []models.DepositorRecord{}
	}

	respondJSON(w, http.StatusOK, records)
}
