package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrJamesThe3rd/chargemirror/internal/keys"
	"github.com/MrJamesThe3rd/chargemirror/internal/ledger"
	"github.com/MrJamesThe3rd/chargemirror/internal/upstream"
)

var (
	// ErrMissingCredential marks a key with no usable secret; the sync for
	// that key cannot even start.
	ErrMissingCredential = errors.New("no usable secret configured for key")

	// ErrSyncInFlight marks a second sync attempt for a (org, key) pair that
	// is already being synced.
	ErrSyncInFlight = errors.New("sync already in flight for key")
)

const (
	defaultPageLimit = 100
	defaultMaxPages  = 10

	// DefaultLookback re-absorbs charges that mutate after creation (late
	// refunds, disputes) without rescanning full history.
	DefaultLookback = 7 * 24 * time.Hour
)

//go:generate mockgen -source=engine.go -destination=engine_mock.go -package=mirror
type Upstream interface {
	ListCharges(ctx context.Context, creds upstream.Credentials, p upstream.ListChargesParams) (*upstream.ChargeList, error)
}

type Ledger interface {
	Upsert(ctx context.Context, rows []*ledger.Transaction) (int, error)
	MaxCreatedEpoch(ctx context.Context, orgID, keyID string) (int64, bool, error)
}

type Keys interface {
	List(ctx context.Context, orgID string) ([]*keys.Key, error)
	Get(ctx context.Context, orgID, keyID string) (*keys.Key, error)
}

// Options configure an Engine. Horizon is required; Lookback and Now default
// to DefaultLookback and time.Now.
type Options struct {
	Horizon  time.Time
	Lookback time.Duration
	Now      func() time.Time
}

type Engine struct {
	upstream Upstream
	ledger   Ledger
	keys     Keys

	horizon  int64
	lookback time.Duration
	now      func() time.Time

	lease *keyLease
}

func NewEngine(up Upstream, lg Ledger, ks Keys, opts Options) *Engine {
	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		upstream: up,
		ledger:   lg,
		keys:     ks,
		horizon:  opts.Horizon.Unix(),
		lookback: lookback,
		now:      now,
		lease:    newKeyLease(),
	}
}

// SyncParams bound one sync call.
type SyncParams struct {
	Limit       int
	Pages       int
	ChunkMonths int
	CreatedGte  *int64
	CreatedLte  *int64
	Incremental bool
}

// KeyResult is the per-key outcome of a multi-key sync. Fetched and Upserted
// are per-call counters, not ledger-wide totals.
type KeyResult struct {
	KeyID    string
	Fetched  int
	Upserted int
	Err      error
}

type Result struct {
	Keys          []KeyResult
	TotalFetched  int
	TotalUpserted int
}

// SyncOrg syncs one key (when keyID is set) or every key registered for the
// org, strictly sequentially. Each key's outcome is captured independently:
// one bad credential does not prevent the remaining keys from completing.
func (e *Engine) SyncOrg(ctx context.Context, orgID, keyID string, p SyncParams) (*Result, error) {
	var (
		list []*keys.Key
		err  error
	)

	if keyID != "" {
		key, err := e.keys.Get(ctx, orgID, keyID)
		if err != nil {
			return nil, fmt.Errorf("resolving key %s: %w", keyID, err)
		}

		list = []*keys.Key{key}
	} else {
		list, err = e.keys.List(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("listing keys for org %s: %w", orgID, err)
		}
	}

	result := &Result{}

	for _, key := range list {
		fetched, upserted, err := e.SyncKey(ctx, key, p)

		kr := KeyResult{KeyID: key.KeyID, Fetched: fetched, Upserted: upserted, Err: err}
		result.Keys = append(result.Keys, kr)

		if err != nil {
			syncErrors.WithLabelValues(orgID).Inc()
			slog.Error("key sync failed", "org", orgID, "key", key.KeyID, "error", err)

			continue
		}

		result.TotalFetched += fetched
		result.TotalUpserted += upserted
	}

	return result, nil
}

// SyncKey pulls the upstream charge feed for one key into the ledger and
// returns the per-call fetched/upserted counts. Repeated or overlapping calls
// are idempotent on the ledger; concurrent calls for the same (org, key) fail
// fast with ErrSyncInFlight.
func (e *Engine) SyncKey(ctx context.Context, key *keys.Key, p SyncParams) (fetched, upserted int, err error) {
	if key.Secret == "" {
		return 0, 0, ErrMissingCredential
	}

	if !e.lease.acquire(key.OrgID, key.KeyID) {
		return 0, 0, ErrSyncInFlight
	}
	defer e.lease.release(key.OrgID, key.KeyID)

	timer := prometheus.NewTimer(syncDuration.WithLabelValues(key.OrgID))
	defer timer.ObserveDuration()

	gte, lte, err := e.resolveBounds(ctx, key, p)
	if err != nil {
		return 0, 0, err
	}

	limit := p.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	pages := p.Pages
	if pages <= 0 {
		pages = defaultMaxPages
	}

	creds := upstream.Credentials{Secret: key.Secret, Account: key.Metadata.Account}

	for _, w := range splitWindows(gte, lte, p.ChunkMonths) {
		windowFetched, rows, err := e.fetchWindow(ctx, creds, key, w, limit, pages)
		if err != nil {
			// First failure aborts this key's remaining windows. Windows
			// already upserted stay committed; resync is idempotent.
			return fetched, upserted, err
		}

		fetched += windowFetched

		if len(rows) == 0 {
			continue
		}

		count, err := e.ledger.Upsert(ctx, rows)
		if err != nil {
			return fetched, upserted, fmt.Errorf("upserting window [%d, %d]: %w", w.Gte, w.Lte, err)
		}

		upserted += count
	}

	chargesFetched.WithLabelValues(key.OrgID).Add(float64(fetched))
	chargesUpserted.WithLabelValues(key.OrgID).Add(float64(upserted))

	slog.Info("key sync complete",
		"org", key.OrgID, "key", key.KeyID,
		"fetched", fetched, "upserted", upserted,
		"gte", gte, "lte", lte)

	return fetched, upserted, nil
}

// resolveBounds computes the effective [gte, lte] for one key. The horizon is
// an absolute floor. Without an explicit lower bound, an incremental sync
// starts from the stored max creation time minus the lookback so charges that
// mutated after creation are re-absorbed.
func (e *Engine) resolveBounds(ctx context.Context, key *keys.Key, p SyncParams) (int64, int64, error) {
	gte := e.horizon

	switch {
	case p.CreatedGte != nil:
		if *p.CreatedGte > gte {
			gte = *p.CreatedGte
		}
	case p.Incremental:
		maxEpoch, ok, err := e.ledger.MaxCreatedEpoch(ctx, key.OrgID, key.KeyID)
		if err != nil {
			return 0, 0, fmt.Errorf("resolving stored max for key %s: %w", key.KeyID, err)
		}

		if ok {
			overlap := maxEpoch - int64(e.lookback/time.Second)
			if overlap > gte {
				gte = overlap
			}
		}
	}

	lte := e.now().Unix()
	if p.CreatedLte != nil {
		lte = *p.CreatedLte
	}

	return gte, lte, nil
}

// fetchWindow pages through one window with a forward cursor and maps each
// item. Items with no resolvable id are dropped; items whose creation time
// falls outside the window are excluded, since upstream filtering may not be
// exact at the boundary.
func (e *Engine) fetchWindow(ctx context.Context, creds upstream.Credentials, key *keys.Key, w window, limit, pages int) (int, []*ledger.Transaction, error) {
	var (
		fetched int
		rows    []*ledger.Transaction
		cursor  string
	)

	for page := 0; page < pages; page++ {
		list, err := e.upstream.ListCharges(ctx, creds, upstream.ListChargesParams{
			Limit:         limit,
			StartingAfter: cursor,
			CreatedGte:    w.Gte,
			CreatedLte:    w.Lte,
			ExpandIntent:  true,
		})
		if err != nil {
			return fetched, nil, fmt.Errorf("fetching window [%d, %d]: %w", w.Gte, w.Lte, err)
		}

		fetched += len(list.Data)

		for _, raw := range list.Data {
			tx, ok := ChargeToRow(key.OrgID, key.KeyID, raw)
			if !ok {
				continue
			}

			if tx.CreatedEpoch < w.Gte || tx.CreatedEpoch > w.Lte {
				continue
			}

			rows = append(rows, tx)
		}

		if len(list.Data) < limit || !list.HasMore {
			break
		}

		cursor = lastItemID(list.Data)
		if cursor == "" {
			break
		}
	}

	return fetched, rows, nil
}

func lastItemID(data []json.RawMessage) string {
	var item struct {
		ID string `json:"id"`
	}

	if err := json.Unmarshal(data[len(data)-1], &item); err != nil {
		return ""
	}

	return item.ID
}
