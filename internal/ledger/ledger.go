package ledger

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrOrgRequired = errors.New("org id is required")

// Transaction is one mirrored upstream charge. The (OrgID, KeyID, ChargeID)
// triple is the identity; every other field is refreshed on each re-sync that
// observes the same charge.
type Transaction struct {
	ID       int64
	OrgID    string
	KeyID    string
	ChargeID string

	AmountCents         int64
	Currency            string
	AmountRefundedCents int64

	CreatedEpoch       int64
	CreatedAt          time.Time
	RefundCreatedEpoch *int64
	RefundCreatedAt    *time.Time

	Status      string
	Paid        bool
	Captured    bool
	Refunded    bool
	FailureCode *string
	DisputeID   *string

	PaymentIntentID    *string
	CustomerID         *string
	CustomerEmail      *string
	PaymentMethodType  *string
	PaymentMethodBrand *string
	PaymentMethodLast4 *string
	Description        *string
	Reference          *string
	OrderID            *string
	CartID             *string
	Livemode           bool

	// Raw keeps the full original payload for reprocessing and read-time
	// derived fields.
	Raw json.RawMessage

	UpdatedAt time.Time
}

// StatusCategory is a semantic filter over mirrored charges, not a raw status
// string match.
type StatusCategory string

const (
	StatusSucceeded  StatusCategory = "succeeded"
	StatusRefunded   StatusCategory = "refunded"
	StatusDisputed   StatusCategory = "disputed"
	StatusFailed     StatusCategory = "failed"
	StatusUncaptured StatusCategory = "uncaptured"
)

func (s StatusCategory) Valid() bool {
	switch s {
	case StatusSucceeded, StatusRefunded, StatusDisputed, StatusFailed, StatusUncaptured:
		return true
	}

	return false
}

type ListFilter struct {
	OrgID      string
	KeyID      *string
	Status     *StatusCategory
	CreatedGte *int64
	CreatedLte *int64
	Limit      int
}

// Stats are the aggregate counts for one filter set, computed in a single
// query.
type Stats struct {
	Total      int64
	Succeeded  int64
	Refunded   int64
	Disputed   int64
	Failed     int64
	Uncaptured int64
}
