package sync_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	synchttp "github.com/MrJamesThe3rd/chargemirror/internal/http/sync"
	"github.com/MrJamesThe3rd/chargemirror/internal/keys"
	"github.com/MrJamesThe3rd/chargemirror/internal/mirror"
	"github.com/MrJamesThe3rd/chargemirror/internal/upstream"
)

func setupRouter(engine *mirror.Engine) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1/orgs/{orgID}/sync", synchttp.NewHandler(engine).Routes)

	return r
}

func TestTrigger(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	up := mirror.NewMockUpstream(ctrl)
	lg := mirror.NewMockLedger(ctrl)
	ks := mirror.NewMockKeys(ctrl)

	engine := mirror.NewEngine(up, lg, ks, mirror.Options{
		Horizon: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	ks.EXPECT().
		List(gomock.Any(), "org_1").
		Return([]*keys.Key{{OrgID: "org_1", KeyID: "key_1", Secret: "sk_test_1"}}, nil)

	up.EXPECT().
		ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ upstream.Credentials, p upstream.ListChargesParams) (*upstream.ChargeList, error) {
			assert.Equal(t, int64(1700000000), p.CreatedGte)

			return &upstream.ChargeList{
				Data: []json.RawMessage{json.RawMessage(`{"id": "ch_1", "created": 1700000100, "amount": 1000, "currency": "usd", "status": "succeeded"}`)},
			}, nil
		})

	lg.EXPECT().Upsert(gomock.Any(), gomock.Len(1)).Return(1, nil)

	body := `{"created_gte": 1700000000, "incremental": false}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs/org_1/sync", strings.NewReader(body))
	rec := httptest.NewRecorder()

	setupRouter(engine).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Keys []struct {
			KeyID    string `json:"key_id"`
			Fetched  int    `json:"fetched"`
			Upserted int    `json:"upserted"`
			Error    string `json:"error"`
		} `json:"keys"`
		TotalFetched  int `json:"total_fetched"`
		TotalUpserted int `json:"total_upserted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Keys, 1)
	assert.Equal(t, "key_1", resp.Keys[0].KeyID)
	assert.Equal(t, 1, resp.Keys[0].Fetched)
	assert.Equal(t, 1, resp.Keys[0].Upserted)
	assert.Empty(t, resp.Keys[0].Error)
	assert.Equal(t, 1, resp.TotalFetched)
	assert.Equal(t, 1, resp.TotalUpserted)
}

func TestTrigger_FailedKeyReported(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	up := mirror.NewMockUpstream(ctrl)
	lg := mirror.NewMockLedger(ctrl)
	ks := mirror.NewMockKeys(ctrl)

	engine := mirror.NewEngine(up, lg, ks, mirror.Options{
		Horizon: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	ks.EXPECT().
		Get(gomock.Any(), "org_1", "key_1").
		Return(&keys.Key{OrgID: "org_1", KeyID: "key_1", Secret: "sk_test_1"}, nil)

	up.EXPECT().
		ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &upstream.APIError{StatusCode: 401, Message: "Invalid API Key"})

	body := `{"key_id": "key_1", "incremental": false}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs/org_1/sync", strings.NewReader(body))
	rec := httptest.NewRecorder()

	setupRouter(engine).ServeHTTP(rec, req)

	// A failed key is reported in the body, not as an HTTP failure.
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid API Key")
	assert.Contains(t, rec.Body.String(), `"total_fetched":0`)
}

func TestTrigger_UnknownKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ks := mirror.NewMockKeys(ctrl)

	engine := mirror.NewEngine(mirror.NewMockUpstream(ctrl), mirror.NewMockLedger(ctrl), ks, mirror.Options{
		Horizon: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	ks.EXPECT().
		Get(gomock.Any(), "org_1", "key_missing").
		Return(nil, keys.ErrNotFound)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs/org_1/sync", strings.NewReader(`{"key_id": "key_missing"}`))
	rec := httptest.NewRecorder()

	setupRouter(engine).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrigger_BadBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	engine := mirror.NewEngine(mirror.NewMockUpstream(ctrl), mirror.NewMockLedger(ctrl), mirror.NewMockKeys(ctrl), mirror.Options{
		Horizon: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs/org_1/sync", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	setupRouter(engine).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
