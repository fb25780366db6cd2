package keys

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("key not found")

// Key is one upstream credential registered for an org. The engine only
// reads keys; registration and rotation live outside this service.
type Key struct {
	ID        uuid.UUID
	OrgID     string
	KeyID     string
	Name      string
	Default   bool
	Secret    string
	Metadata  Metadata
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Metadata is the small display blob stored next to a key: the masked form
// of the secret, the mode inferred from it, and the resolved upstream
// account id.
type Metadata struct {
	MaskedSecret string `json:"masked_secret,omitempty"`
	Livemode     bool   `json:"livemode,omitempty"`
	Account      string `json:"account,omitempty"`
}
