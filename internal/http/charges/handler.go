package charges

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/chargemirror/internal/keys"
	"github.com/MrJamesThe3rd/chargemirror/internal/ledger"
)

type Handler struct {
	ledger *ledger.Service
	keys   *keys.Service
}

func NewHandler(ledgerSvc *ledger.Service, keysSvc *keys.Service) *Handler {
	return &Handler{ledger: ledgerSvc, keys: keysSvc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	filter := ledger.ListFilter{OrgID: orgID}

	if s := r.URL.Query().Get("key_id"); s != "" {
		filter.KeyID = &s
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := ledger.StatusCategory(s)
		if !status.Valid() {
			http.Error(w, "invalid status category", http.StatusBadRequest)
			return
		}

		filter.Status = &status
	}

	if s := r.URL.Query().Get("created_gte"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			filter.CreatedGte = &v
		}
	}

	if s := r.URL.Query().Get("created_lte"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			filter.CreatedLte = &v
		}
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			filter.Limit = v
		}
	}

	txs, err := h.ledger.List(r.Context(), filter)
	if err != nil {
		if errors.Is(err, ledger.ErrOrgRequired) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	stats, err := h.ledger.Stats(r.Context(), filter)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	orgKeys, err := h.keys.List(r.Context(), orgID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(toListResponse(txs, stats, orgKeys)); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
