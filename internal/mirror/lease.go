package mirror

import (
	"sync"
)

// keyLease is an in-process single-flight guard per (org, key). Overlapping
// syncs of the same pair would not corrupt the ledger (upsert protects it)
// but would double-count the per-call fetched/upserted statistics, so the
// second caller fails fast instead of waiting.
type keyLease struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func newKeyLease() *keyLease {
	return &keyLease{inflight: make(map[string]struct{})}
}

func (l *keyLease) acquire(orgID, keyID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := orgID + "\x00" + keyID
	if _, held := l.inflight[k]; held {
		return false
	}

	l.inflight[k] = struct{}{}

	return true
}

func (l *keyLease) release(orgID, keyID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.inflight, orgID+"\x00"+keyID)
}
