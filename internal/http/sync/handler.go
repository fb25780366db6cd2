package sync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/chargemirror/internal/keys"
	"github.com/MrJamesThe3rd/chargemirror/internal/mirror"
)

type Handler struct {
	engine *mirror.Engine
}

func NewHandler(engine *mirror.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.trigger)
}

type triggerRequest struct {
	KeyID       string `json:"key_id,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Pages       int    `json:"pages,omitempty"`
	ChunkMonths int    `json:"chunk_months,omitempty"`
	CreatedGte  *int64 `json:"created_gte,omitempty"`
	CreatedLte  *int64 `json:"created_lte,omitempty"`
	Incremental *bool  `json:"incremental,omitempty"`
}

type keyResultResponse struct {
	KeyID    string `json:"key_id"`
	Fetched  int    `json:"fetched"`
	Upserted int    `json:"upserted"`
	Error    string `json:"error,omitempty"`
}

type triggerResponse struct {
	Keys          []keyResultResponse `json:"keys"`
	TotalFetched  int                 `json:"total_fetched"`
	TotalUpserted int                 `json:"total_upserted"`
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	params := mirror.SyncParams{
		Limit:       req.Limit,
		Pages:       req.Pages,
		ChunkMonths: req.ChunkMonths,
		CreatedGte:  req.CreatedGte,
		CreatedLte:  req.CreatedLte,
		Incremental: true,
	}

	if req.Incremental != nil {
		params.Incremental = *req.Incremental
	}

	result, err := h.engine.SyncOrg(r.Context(), orgID, req.KeyID, params)
	if err != nil {
		if errors.Is(err, keys.ErrNotFound) {
			http.Error(w, "key not found", http.StatusNotFound)
			return
		}

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	resp := triggerResponse{
		Keys:          make([]keyResultResponse, len(result.Keys)),
		TotalFetched:  result.TotalFetched,
		TotalUpserted: result.TotalUpserted,
	}

	for i, kr := range result.Keys {
		item := keyResultResponse{
			KeyID:    kr.KeyID,
			Fetched:  kr.Fetched,
			Upserted: kr.Upserted,
		}

		if kr.Err != nil {
			item.Error = kr.Err.Error()
		}

		resp.Keys[i] = item
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
