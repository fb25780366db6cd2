package keys

import (
	"context"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=keys
type Repository interface {
	ListKeys(ctx context.Context, orgID string) ([]*Key, error)
	GetKey(ctx context.Context, orgID, keyID string) (*Key, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns every key registered for the org.
func (s *Service) List(ctx context.Context, orgID string) ([]*Key, error) {
	return s.repo.ListKeys(ctx, orgID)
}

// Get returns one key by its external key id.
func (s *Service) Get(ctx context.Context, orgID, keyID string) (*Key, error) {
	return s.repo.GetKey(ctx, orgID, keyID)
}
