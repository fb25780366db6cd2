package ledger

import (
	"context"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=ledger
type Repository interface {
	UpsertTransactions(ctx context.Context, rows []*Transaction) (int, error)
	MaxCreatedEpoch(ctx context.Context, orgID, keyID string) (int64, bool, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]*Transaction, error)
	Stats(ctx context.Context, filter ListFilter) (*Stats, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Upsert writes a batch of mirrored charges keyed on (org, key, charge).
// Empty input is a no-op. Returns the number of rows written.
func (s *Service) Upsert(ctx context.Context, rows []*Transaction) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	return s.repo.UpsertTransactions(ctx, rows)
}

// MaxCreatedEpoch returns the newest stored creation time for one (org, key),
// with false when no rows exist yet.
func (s *Service) MaxCreatedEpoch(ctx context.Context, orgID, keyID string) (int64, bool, error) {
	return s.repo.MaxCreatedEpoch(ctx, orgID, keyID)
}

// List returns mirrored charges matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Transaction, error) {
	if filter.OrgID == "" {
		return nil, ErrOrgRequired
	}

	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}

	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	return s.repo.ListTransactions(ctx, filter)
}

// Stats returns the aggregate counts for the same filter set List accepts.
func (s *Service) Stats(ctx context.Context, filter ListFilter) (*Stats, error) {
	if filter.OrgID == "" {
		return nil, ErrOrgRequired
	}

	return s.repo.Stats(ctx, filter)
}
