package mirror

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/MrJamesThe3rd/chargemirror/internal/ledger"
	"github.com/MrJamesThe3rd/chargemirror/internal/upstream"
)

// Metadata keys checked for each correlation id, in priority order. Several
// historical naming conventions are still live upstream.
var (
	referenceAliases = []string{"reference", "ref", "reference_id", "order_reference"}
	orderAliases     = []string{"order_id", "order", "order_number"}
	cartAliases      = []string{"cart_id", "cart", "checkout_id"}
)

// ChargeToRow maps one raw charge payload to a canonical ledger row. The
// second result is false when the payload has no resolvable id; such items
// are dropped from the batch, never an error. Every sub-field extraction is
// best effort: a malformed nested structure nils that field and mapping
// continues.
func ChargeToRow(orgID, keyID string, raw json.RawMessage) (*ledger.Transaction, bool) {
	var charge upstream.Charge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return nil, false
	}

	if charge.ID == "" {
		return nil, false
	}

	tx := &ledger.Transaction{
		OrgID:    orgID,
		KeyID:    keyID,
		ChargeID: charge.ID,

		AmountCents:         charge.Amount,
		Currency:            strings.ToLower(charge.Currency),
		AmountRefundedCents: charge.AmountRefunded,

		CreatedEpoch: charge.Created,
		CreatedAt:    time.Unix(charge.Created, 0).UTC(),

		Status:   charge.Status,
		Paid:     charge.Paid,
		Captured: charge.Captured,
		Refunded: charge.Refunded,
		Livemode: charge.Livemode,

		Raw: raw,
	}

	tx.FailureCode = optional(charge.FailureCode)
	tx.DisputeID = optional(charge.DisputeID())
	tx.PaymentIntentID = optional(charge.PaymentIntentID())
	tx.CustomerID = optional(charge.CustomerID())
	tx.CustomerEmail = optional(charge.CustomerEmail())

	tx.Description = description(&charge)
	tx.Reference, tx.OrderID, tx.CartID = correlationIDs(&charge)

	if epoch, ok := refundCreated(&charge); ok {
		at := time.Unix(epoch, 0).UTC()
		tx.RefundCreatedEpoch = &epoch
		tx.RefundCreatedAt = &at
	}

	if charge.PaymentMethodDetails != nil {
		tx.PaymentMethodType = optional(charge.PaymentMethodDetails.Type)

		// Brand/last4 only exist for the card method type.
		if charge.PaymentMethodDetails.Type == "card" && charge.PaymentMethodDetails.Card != nil {
			tx.PaymentMethodBrand = optional(charge.PaymentMethodDetails.Card.Brand)
			tx.PaymentMethodLast4 = optional(charge.PaymentMethodDetails.Card.Last4)
		}
	}

	return tx, true
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	return &s
}

// description prefers the expanded payment intent's description over the
// charge's own.
func description(charge *upstream.Charge) *string {
	if desc := charge.PaymentIntentDescription(); desc != "" {
		return optional(desc)
	}

	return optional(charge.Description)
}

// correlationIDs resolves reference, order and cart ids: metadata aliases
// first, then "Reference: X / Order: Y / Cart: Z" segments embedded in the
// free-text description.
func correlationIDs(charge *upstream.Charge) (reference, orderID, cartID *string) {
	reference = metadataLookup(charge.Metadata, referenceAliases)
	orderID = metadataLookup(charge.Metadata, orderAliases)
	cartID = metadataLookup(charge.Metadata, cartAliases)

	if reference != nil && orderID != nil && cartID != nil {
		return reference, orderID, cartID
	}

	ref, ord, cart := parseDescriptionRefs(charge.Description)

	if reference == nil {
		reference = optional(ref)
	}

	if orderID == nil {
		orderID = optional(ord)
	}

	if cartID == nil {
		cartID = optional(cart)
	}

	return reference, orderID, cartID
}

func metadataLookup(metadata map[string]string, aliases []string) *string {
	for _, alias := range aliases {
		if v := strings.TrimSpace(metadata[alias]); v != "" {
			return &v
		}
	}

	return nil
}

// parseDescriptionRefs extracts correlation ids from " / "-separated
// description segments.
func parseDescriptionRefs(desc string) (reference, orderID, cartID string) {
	for _, segment := range strings.Split(desc, " / ") {
		segment = strings.TrimSpace(segment)

		if rest, ok := strings.CutPrefix(segment, "Reference: "); ok && reference == "" {
			reference = strings.TrimSpace(rest)
		}

		if rest, ok := strings.CutPrefix(segment, "Order: "); ok && orderID == "" {
			orderID = strings.TrimSpace(rest)
		}

		if rest, ok := strings.CutPrefix(segment, "Cart: "); ok && cartID == "" {
			cartID = strings.TrimSpace(rest)
		}
	}

	return reference, orderID, cartID
}

// refundCreated returns the newest refund timestamp, only for charges whose
// refunded flag is set.
func refundCreated(charge *upstream.Charge) (int64, bool) {
	if !charge.Refunded || charge.Refunds == nil {
		return 0, false
	}

	var maxEpoch int64

	for _, refund := range charge.Refunds.Data {
		if refund.Created > maxEpoch {
			maxEpoch = refund.Created
		}
	}

	if maxEpoch == 0 {
		return 0, false
	}

	return maxEpoch, true
}
