package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"loyaltyd/loyalty"
	"loyaltyd/models"
	"loyaltyd/wallet"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err.Error())
	}
}

// writeError maps domain sentinels onto HTTP statuses. DuplicateIgnored never
// reaches here; the engines absorb it.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, loyalty.ErrNotFound), errors.Is(err, wallet.ErrWalletNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, loyalty.ErrCustomerInactive):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, loyalty.ErrConflictRetryable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, loyalty.ErrInvariantViolation),
		errors.Is(err, loyalty.ErrEmailTaken),
		errors.Is(err, loyalty.ErrReferralCodeUnknown),
		errors.Is(err, wallet.ErrAmountNotPositive),
		errors.Is(err, wallet.ErrDescriptionRequired),
		errors.Is(err, wallet.ErrInvalidTrack),
		errors.Is(err, wallet.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error("internal error", "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func customerParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// RegisterCustomer enrols a customer, optionally linked to a referrer.
func (s *Server) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email        string `json:"email"`
		ReferralCode string `json:"referral_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	customer, err := s.registry.RegisterCustomer(r.Context(), req.Email, req.ReferralCode)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, customer)
}

// RecordActivity is the single entry point for point-earning events.
func (s *Server) RecordActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID  uuid.UUID `json:"customer_id"`
		Points      int64     `json:"points"`
		Convertible *bool     `json:"convertible"`
		Source      string    `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.CustomerID == uuid.Nil {
		http.Error(w, "customer_id is required", http.StatusBadRequest)
		return
	}
	convertible := true
	if req.Convertible != nil {
		convertible = *req.Convertible
	}
	result, err := s.allocator.OnPointsEarned(r.Context(), req.CustomerID, req.Points, convertible)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("activity recorded",
		"customer_id", req.CustomerID.String(),
		"points", req.Points,
		"source", strings.TrimSpace(req.Source),
		"numbers_issued", len(result.NumbersIssued),
	)
	s.writeJSON(w, http.StatusOK, result)
}

// GetCustomer returns the customer profile.
func (s *Server) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := customerParam(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}
	customer, err := s.registry.Customer(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, customer)
}

// DeactivateCustomer marks a customer inactive.
func (s *Server) DeactivateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := customerParam(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}
	if err := s.registry.DeactivateCustomer(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetGlobalNumbers lists the customer's global numbers in issuance order.
func (s *Server) GetGlobalNumbers(w http.ResponseWriter, r *http.Request) {
	id, err := customerParam(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}
	numbers, err := s.allocator.GlobalNumbers(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"customer_id": id, "global_numbers": numbers})
}

// GetStepUpRewards lists step-up rewards with the lifetime total.
func (s *Server) GetStepUpRewards(w http.ResponseWriter, r *http.Request) {
	id, err := customerParam(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}
	rewards, err := s.stepUp.RewardsFor(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	total, err := s.stepUp.TotalEarned(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rewards": rewards, "total_earned": total})
}

// GetRippleRewards lists ripple rewards earned as a referrer.
func (s *Server) GetRippleRewards(w http.ResponseWriter, r *http.Request) {
	id, err := customerParam(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}
	rewards, err := s.ripple.RewardsFor(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rewards": rewards})
}

// GetWallet returns the customer's wallet balances and counters.
func (s *Server) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, err := customerParam(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}
	walletRow, err := s.wallet.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, walletRow)
}

// GetWalletLedger returns recent ledger entries, optionally per track.
func (s *Server) GetWalletLedger(w http.ResponseWriter, r *http.Request) {
	id, err := customerParam(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	entries, err := s.wallet.Ledger(r.Context(), id, models.Track(r.URL.Query().Get("track")), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// TransferWallet moves points between tracks with the configured fee.
func (s *Server) TransferWallet(w http.ResponseWriter, r *http.Request) {
	id, err := customerParam(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}
	var req struct {
		From   models.Track `json:"from"`
		To     models.Track `json:"to"`
		Amount int64        `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	result, err := s.wallet.Transfer(r.Context(), id, req.From, req.To, req.Amount, s.transferFeeBps)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"from_balance": result.FromBalance,
		"to_balance":   result.ToBalance,
		"fee":          result.Fee,
	})
}

// ReconcileWallet replays the ledger against stored balances.
func (s *Server) ReconcileWallet(w http.ResponseWriter, r *http.Request) {
	id, err := customerParam(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}
	if err := s.wallet.Reconcile(r.Context(), id); err != nil {
		if errors.Is(err, wallet.ErrReconciliation) {
			s.writeJSON(w, http.StatusConflict, map[string]any{"reconciled": false, "error": err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reconciled": true})
}
