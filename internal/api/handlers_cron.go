package api

import (
	"net/http"
	"strings"
)

// handleCronBackfill runs the depositor record backfill. The optional
// "vaults" parameter is a comma-separated list of vault pubkeys restricting
// the run; "fullBackfill=true" refetches from the beginning of history.
func (s *Server) handleCronBackfill(w http.ResponseWriter, r *http.Request) {
	var vaultPubkeys []string
	if raw := r.URL.Query().Get("vaults"); raw != "" {
		for _, pubkey := range strings.Split(raw, ",") {
			if pubkey = strings.TrimSpace(pubkey); pubkey != "" {
				vaultPubkeys = append(vaultPubkeys, pubkey)
			}
		}
	}
	fullBackfill := r.URL.Query().Get("fullBackfill") == "true"

	result, err := s.backfillJob.Run(r.Context(), vaultPubkeys, fullBackfill)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleCronSnapshots captures one snapshot per registered vault, or only
// the vault named by the optional "vault" parameter.
func (s *Server) handleCronSnapshots(w http.ResponseWriter, r *http.Request) {
	var vaultPubkeys []string
	if vault := strings.TrimSpace(r.URL.Query().Get("vault")); vault != "" {
		vaultPubkeys = []string{vault}
	}

	result, err := s.snapshotJob.Run(r.Context(), vaultPubkeys)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleCronMetrics recomputes vault metrics and refreshes the cache.
func (s *Server) handleCronMetrics(w http.ResponseWriter, r *http.Request) {
	result, err := s.metricsJob.Run(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
