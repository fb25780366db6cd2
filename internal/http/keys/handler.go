package keys

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/chargemirror/internal/keys"
	"github.com/MrJamesThe3rd/chargemirror/internal/ledger"
	"github.com/MrJamesThe3rd/chargemirror/internal/upstream"
)

// Verifier is the slice of the upstream client used for connectivity checks
// and the balance display.
type Verifier interface {
	GetAccount(ctx context.Context, creds upstream.Credentials) (*upstream.Account, error)
	GetBalance(ctx context.Context, creds upstream.Credentials) (*upstream.Balance, error)
}

type Handler struct {
	keys     *keys.Service
	upstream Verifier
}

func NewHandler(keysSvc *keys.Service, up Verifier) *Handler {
	return &Handler{keys: keysSvc, upstream: up}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/{keyID}/verify", h.verify)
	r.Get("/{keyID}/balance", h.balance)
}

type verifyResponse struct {
	OK      bool             `json:"ok"`
	Error   string           `json:"error,omitempty"`
	Account *accountResponse `json:"account,omitempty"`
}

type accountResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email,omitempty"`
	Country        string `json:"country,omitempty"`
	ChargesEnabled bool   `json:"charges_enabled"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolveKey(w, r)
	if !ok {
		return
	}

	creds := upstream.Credentials{Secret: key.Secret, Account: key.Metadata.Account}

	account, err := h.upstream.GetAccount(r.Context(), creds)
	if err != nil {
		if errors.Is(err, upstream.ErrAuth) {
			// A rejected credential is a verification result, not a server
			// failure; the UI prompts for re-entry.
			writeJSON(w, verifyResponse{OK: false, Error: "credential rejected"})
			return
		}

		http.Error(w, err.Error(), http.StatusBadGateway)

		return
	}

	writeJSON(w, verifyResponse{
		OK: true,
		Account: &accountResponse{
			ID:             account.ID,
			Email:          account.Email,
			Country:        account.Country,
			ChargesEnabled: account.ChargesEnabled,
		},
	})
}

type balanceAmountResponse struct {
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

type balanceResponse struct {
	Available []balanceAmountResponse `json:"available"`
	Pending   []balanceAmountResponse `json:"pending"`
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	key, ok := h.resolveKey(w, r)
	if !ok {
		return
	}

	creds := upstream.Credentials{Secret: key.Secret, Account: key.Metadata.Account}

	balance, err := h.upstream.GetBalance(r.Context(), creds)
	if err != nil {
		if errors.Is(err, upstream.ErrAuth) {
			http.Error(w, "credential rejected", http.StatusUnauthorized)
			return
		}

		http.Error(w, err.Error(), http.StatusBadGateway)

		return
	}

	writeJSON(w, balanceResponse{
		Available: toBalanceAmounts(balance.Available),
		Pending:   toBalanceAmounts(balance.Pending),
	})
}

func (h *Handler) resolveKey(w http.ResponseWriter, r *http.Request) (*keys.Key, bool) {
	orgID := chi.URLParam(r, "orgID")
	keyID := chi.URLParam(r, "keyID")

	key, err := h.keys.Get(r.Context(), orgID, keyID)
	if err != nil {
		if errors.Is(err, keys.ErrNotFound) {
			http.Error(w, "key not found", http.StatusNotFound)
			return nil, false
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return nil, false
	}

	if key.Secret == "" {
		http.Error(w, "no secret configured for key", http.StatusConflict)
		return nil, false
	}

	return key, true
}

func toBalanceAmounts(amounts []upstream.BalanceAmount) []balanceAmountResponse {
	resp := make([]balanceAmountResponse, len(amounts))
	for i, a := range amounts {
		resp[i] = balanceAmountResponse{
			AmountCents: a.Amount,
			Amount:      ledger.AmountString(a.Amount, a.Currency),
			Currency:    a.Currency,
		}
	}

	return resp
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
