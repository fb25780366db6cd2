package mirror_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/chargemirror/internal/keys"
	"github.com/MrJamesThe3rd/chargemirror/internal/ledger"
	"github.com/MrJamesThe3rd/chargemirror/internal/mirror"
	"github.com/MrJamesThe3rd/chargemirror/internal/upstream"
)

var (
	testHorizon = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	testNow     = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func testEngine(up mirror.Upstream, lg mirror.Ledger, ks mirror.Keys) *mirror.Engine {
	return mirror.NewEngine(up, lg, ks, mirror.Options{
		Horizon: testHorizon,
		Now:     func() time.Time { return testNow },
	})
}

func testKey() *keys.Key {
	return &keys.Key{OrgID: "org_1", KeyID: "key_1", Secret: "sk_test_123"}
}

func rawCharge(id string, created int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id": %q, "created": %d, "amount": 1000, "currency": "usd", "status": "succeeded", "paid": true, "captured": true}`,
		id, created))
}

func int64Ptr(v int64) *int64 { return &v }

func TestSyncKey_MissingCredential(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	engine := testEngine(mirror.NewMockUpstream(ctrl), mirror.NewMockLedger(ctrl), mirror.NewMockKeys(ctrl))

	key := testKey()
	key.Secret = ""

	_, _, err := engine.SyncKey(context.Background(), key, mirror.SyncParams{})
	assert.ErrorIs(t, err, mirror.ErrMissingCredential)
}

func TestSyncKey_HorizonClamp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	up := mirror.NewMockUpstream(ctrl)
	lg := mirror.NewMockLedger(ctrl)
	engine := testEngine(up, lg, mirror.NewMockKeys(ctrl))

	// An explicit lower bound far below the horizon is raised to it, and the
	// stored max is never consulted.
	up.EXPECT().
		ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ upstream.Credentials, p upstream.ListChargesParams) (*upstream.ChargeList, error) {
			assert.Equal(t, testHorizon.Unix(), p.CreatedGte)
			assert.Equal(t, testNow.Unix(), p.CreatedLte)

			return &upstream.ChargeList{}, nil
		})

	ancient := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC).Unix()

	fetched, upserted, err := engine.SyncKey(context.Background(), testKey(), mirror.SyncParams{
		CreatedGte: int64Ptr(ancient),
	})
	require.NoError(t, err)
	assert.Zero(t, fetched)
	assert.Zero(t, upserted)
}

func TestSyncKey_IncrementalOverlap(t *testing.T) {
	storedMax := time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC).Unix()

	type testCase struct {
		name      string
		storedMax int64
		stored    bool
		wantGte   int64
	}

	tests := []testCase{
		{
			name:      "StoredMaxMinusLookback",
			storedMax: storedMax,
			stored:    true,
			wantGte:   storedMax - int64((7 * 24 * time.Hour).Seconds()),
		},
		{
			name:      "StoredMaxNearHorizonClamps",
			storedMax: testHorizon.Unix() + 60,
			stored:    true,
			wantGte:   testHorizon.Unix(),
		},
		{
			name:    "NoStoredMaxFallsToHorizon",
			stored:  false,
			wantGte: testHorizon.Unix(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			up := mirror.NewMockUpstream(ctrl)
			lg := mirror.NewMockLedger(ctrl)
			engine := testEngine(up, lg, mirror.NewMockKeys(ctrl))

			lg.EXPECT().
				MaxCreatedEpoch(gomock.Any(), "org_1", "key_1").
				Return(tt.storedMax, tt.stored, nil)

			up.EXPECT().
				ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, _ upstream.Credentials, p upstream.ListChargesParams) (*upstream.ChargeList, error) {
					assert.Equal(t, tt.wantGte, p.CreatedGte)
					return &upstream.ChargeList{}, nil
				})

			_, _, err := engine.SyncKey(context.Background(), testKey(), mirror.SyncParams{Incremental: true})
			require.NoError(t, err)
		})
	}
}

func TestSyncKey_MonthlyChunks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	up := mirror.NewMockUpstream(ctrl)
	lg := mirror.NewMockLedger(ctrl)
	engine := testEngine(up, lg, mirror.NewMockKeys(ctrl))

	gte := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).Unix()
	lte := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC).Unix()
	mar1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	apr1 := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC).Unix()

	var calls []upstream.ListChargesParams

	up.EXPECT().
		ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
		Times(3).
		DoAndReturn(func(_ context.Context, _ upstream.Credentials, p upstream.ListChargesParams) (*upstream.ChargeList, error) {
			calls = append(calls, p)

			switch p.CreatedGte {
			case gte:
				return &upstream.ChargeList{Data: []json.RawMessage{rawCharge("ch_feb", gte+3600)}}, nil
			case mar1:
				// Empty window: no upsert expected for it.
				return &upstream.ChargeList{}, nil
			default:
				return &upstream.ChargeList{Data: []json.RawMessage{rawCharge("ch_apr", apr1+3600)}}, nil
			}
		})

	lg.EXPECT().
		Upsert(gomock.Any(), gomock.Len(1)).
		Times(2).
		Return(1, nil)

	fetched, upserted, err := engine.SyncKey(context.Background(), testKey(), mirror.SyncParams{
		ChunkMonths: 1,
		CreatedGte:  int64Ptr(gte),
		CreatedLte:  int64Ptr(lte),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, fetched)
	assert.Equal(t, 2, upserted)

	// Windows are processed strictly in order and cover the range without
	// overlap.
	require.Len(t, calls, 3)
	assert.Equal(t, gte, calls[0].CreatedGte)
	assert.Equal(t, mar1-1, calls[0].CreatedLte)
	assert.Equal(t, mar1, calls[1].CreatedGte)
	assert.Equal(t, apr1-1, calls[1].CreatedLte)
	assert.Equal(t, apr1, calls[2].CreatedGte)
	assert.Equal(t, lte, calls[2].CreatedLte)
}

func TestSyncKey_Pagination(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	up := mirror.NewMockUpstream(ctrl)
	lg := mirror.NewMockLedger(ctrl)
	engine := testEngine(up, lg, mirror.NewMockKeys(ctrl))

	gte := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC).Unix()
	lte := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC).Unix()

	page1 := &upstream.ChargeList{
		Data: []json.RawMessage{
			rawCharge("ch_1", gte+100),
			// Upstream boundary filtering is not exact; this one is outside
			// the window and must be excluded client-side.
			rawCharge("ch_2", lte+999),
		},
		HasMore: true,
	}

	page2 := &upstream.ChargeList{
		Data:    []json.RawMessage{rawCharge("ch_3", gte+200)},
		HasMore: false,
	}

	gomock.InOrder(
		up.EXPECT().
			ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ upstream.Credentials, p upstream.ListChargesParams) (*upstream.ChargeList, error) {
				assert.Empty(t, p.StartingAfter)
				assert.Equal(t, 2, p.Limit)

				return page1, nil
			}),
		up.EXPECT().
			ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ upstream.Credentials, p upstream.ListChargesParams) (*upstream.ChargeList, error) {
				// The cursor is the last item of the previous page.
				assert.Equal(t, "ch_2", p.StartingAfter)
				return page2, nil
			}),
	)

	var gotRows []*ledger.Transaction

	lg.EXPECT().
		Upsert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rows []*ledger.Transaction) (int, error) {
			gotRows = rows
			return len(rows), nil
		})

	fetched, upserted, err := engine.SyncKey(context.Background(), testKey(), mirror.SyncParams{
		Limit:      2,
		Pages:      5,
		CreatedGte: int64Ptr(gte),
		CreatedLte: int64Ptr(lte),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, fetched)
	assert.Equal(t, 2, upserted)

	require.Len(t, gotRows, 2)
	assert.Equal(t, "ch_1", gotRows[0].ChargeID)
	assert.Equal(t, "ch_3", gotRows[1].ChargeID)
}

func TestSyncKey_PageCapStopsPagination(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	up := mirror.NewMockUpstream(ctrl)
	lg := mirror.NewMockLedger(ctrl)
	engine := testEngine(up, lg, mirror.NewMockKeys(ctrl))

	gte := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC).Unix()

	// Every page is full and claims more data; the pages cap must stop the
	// loop anyway.
	up.EXPECT().
		ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
		Times(2).
		DoAndReturn(func(_ context.Context, _ upstream.Credentials, p upstream.ListChargesParams) (*upstream.ChargeList, error) {
			return &upstream.ChargeList{
				Data:    []json.RawMessage{rawCharge("ch_"+p.StartingAfter, gte+100)},
				HasMore: true,
			}, nil
		})

	lg.EXPECT().Upsert(gomock.Any(), gomock.Len(2)).Return(2, nil)

	fetched, _, err := engine.SyncKey(context.Background(), testKey(), mirror.SyncParams{
		Limit:      1,
		Pages:      2,
		CreatedGte: int64Ptr(gte),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, fetched)
}

func TestSyncKey_UpstreamErrorAbortsRemainingWindows(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	up := mirror.NewMockUpstream(ctrl)
	lg := mirror.NewMockLedger(ctrl)
	engine := testEngine(up, lg, mirror.NewMockKeys(ctrl))

	gte := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).Unix()
	lte := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC).Unix()

	// First window fails; the second window must never be fetched.
	up.EXPECT().
		ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &upstream.APIError{StatusCode: 401, Message: "Invalid API Key"})

	_, _, err := engine.SyncKey(context.Background(), testKey(), mirror.SyncParams{
		ChunkMonths: 1,
		CreatedGte:  int64Ptr(gte),
		CreatedLte:  int64Ptr(lte),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream.ErrAuth)
}

func TestSyncKey_SingleFlight(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	up := mirror.NewMockUpstream(ctrl)
	lg := mirror.NewMockLedger(ctrl)
	engine := testEngine(up, lg, mirror.NewMockKeys(ctrl))

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	up.EXPECT().
		ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ upstream.Credentials, _ upstream.ListChargesParams) (*upstream.ChargeList, error) {
			close(started)
			<-release

			return &upstream.ChargeList{}, nil
		})

	params := mirror.SyncParams{CreatedGte: int64Ptr(testHorizon.Unix())}

	go func() {
		defer close(done)

		_, _, err := engine.SyncKey(context.Background(), testKey(), params)
		assert.NoError(t, err)
	}()

	<-started

	_, _, err := engine.SyncKey(context.Background(), testKey(), params)
	assert.ErrorIs(t, err, mirror.ErrSyncInFlight)

	close(release)
	<-done

	// The lease is released once the first sync finishes.
	up.EXPECT().
		ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&upstream.ChargeList{}, nil)

	_, _, err = engine.SyncKey(context.Background(), testKey(), params)
	assert.NoError(t, err)
}

func TestSyncOrg_BestEffortPerKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	up := mirror.NewMockUpstream(ctrl)
	lg := mirror.NewMockLedger(ctrl)
	ks := mirror.NewMockKeys(ctrl)
	engine := testEngine(up, lg, ks)

	badKey := &keys.Key{OrgID: "org_1", KeyID: "key_bad", Secret: "sk_bad"}
	goodKey := &keys.Key{OrgID: "org_1", KeyID: "key_good", Secret: "sk_good"}

	ks.EXPECT().List(gomock.Any(), "org_1").Return([]*keys.Key{badKey, goodKey}, nil)

	created := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC).Unix()

	up.EXPECT().
		ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
		Times(2).
		DoAndReturn(func(_ context.Context, creds upstream.Credentials, _ upstream.ListChargesParams) (*upstream.ChargeList, error) {
			if creds.Secret == "sk_bad" {
				return nil, &upstream.APIError{StatusCode: 401, Message: "Invalid API Key"}
			}

			return &upstream.ChargeList{Data: []json.RawMessage{rawCharge("ch_1", created)}}, nil
		})

	lg.EXPECT().Upsert(gomock.Any(), gomock.Len(1)).Return(1, nil)

	result, err := engine.SyncOrg(context.Background(), "org_1", "", mirror.SyncParams{
		CreatedGte: int64Ptr(testHorizon.Unix()),
	})
	require.NoError(t, err)

	// One bad credential does not prevent the other key from completing.
	require.Len(t, result.Keys, 2)
	assert.Equal(t, "key_bad", result.Keys[0].KeyID)
	assert.ErrorIs(t, result.Keys[0].Err, upstream.ErrAuth)
	assert.Equal(t, "key_good", result.Keys[1].KeyID)
	assert.NoError(t, result.Keys[1].Err)
	assert.Equal(t, 1, result.Keys[1].Fetched)

	assert.Equal(t, 1, result.TotalFetched)
	assert.Equal(t, 1, result.TotalUpserted)
}

func TestSyncOrg_SingleKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	up := mirror.NewMockUpstream(ctrl)
	lg := mirror.NewMockLedger(ctrl)
	ks := mirror.NewMockKeys(ctrl)
	engine := testEngine(up, lg, ks)

	ks.EXPECT().Get(gomock.Any(), "org_1", "key_1").Return(testKey(), nil)

	up.EXPECT().
		ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&upstream.ChargeList{}, nil)

	result, err := engine.SyncOrg(context.Background(), "org_1", "key_1", mirror.SyncParams{
		CreatedGte: int64Ptr(testHorizon.Unix()),
	})
	require.NoError(t, err)
	require.Len(t, result.Keys, 1)
	assert.Equal(t, "key_1", result.Keys[0].KeyID)
}

// Mirrors the reporting scenario: two charges synced in one page, the EUR one
// refunded, counters reported per call.
func TestSyncKey_EndToEnd(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	up := mirror.NewMockUpstream(ctrl)
	lg := mirror.NewMockLedger(ctrl)
	engine := testEngine(up, lg, mirror.NewMockKeys(ctrl))

	created := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC).Unix()

	chargeA := json.RawMessage(fmt.Sprintf(
		`{"id": "ch_A", "created": %d, "amount": 1050, "currency": "usd", "status": "succeeded", "paid": true, "captured": true}`,
		created))
	chargeB := json.RawMessage(fmt.Sprintf(
		`{"id": "ch_B", "created": %d, "amount": 500, "currency": "eur", "status": "succeeded", "paid": true, "captured": true, "refunded": true, "amount_refunded": 500, "refunds": {"data": [{"id": "re_1", "created": %d}]}}`,
		created, created+3600))

	up.EXPECT().
		ListCharges(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ upstream.Credentials, p upstream.ListChargesParams) (*upstream.ChargeList, error) {
			assert.Equal(t, 50, p.Limit)
			return &upstream.ChargeList{Data: []json.RawMessage{chargeA, chargeB}}, nil
		})

	var gotRows []*ledger.Transaction

	lg.EXPECT().
		Upsert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rows []*ledger.Transaction) (int, error) {
			gotRows = rows
			return len(rows), nil
		})

	fetched, upserted, err := engine.SyncKey(context.Background(), testKey(), mirror.SyncParams{
		Limit:      50,
		Pages:      1,
		CreatedGte: int64Ptr(testHorizon.Unix()),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, fetched)
	assert.Equal(t, 2, upserted)

	require.Len(t, gotRows, 2)

	b := gotRows[1]
	assert.Equal(t, "ch_B", b.ChargeID)
	assert.True(t, b.Refunded)
	assert.Equal(t, "eur", b.Currency)
	assert.Equal(t, "5.00", ledger.AmountString(b.AmountCents, b.Currency))
	require.NotNil(t, b.RefundCreatedEpoch)
	assert.Equal(t, created+3600, *b.RefundCreatedEpoch)
}
