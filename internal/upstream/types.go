package upstream

import (
	"encoding/json"
	"strings"
)

// Charge is the loosely-typed shape of one upstream charge payload. Fields
// that may arrive as a plain id string or an expanded object are kept raw and
// accessed through helpers so a surprising shape degrades to empty instead of
// failing the whole decode.
type Charge struct {
	ID                   string                `json:"id"`
	Amount               int64                 `json:"amount"`
	AmountRefunded       int64                 `json:"amount_refunded"`
	Currency             string                `json:"currency"`
	Created              int64                 `json:"created"`
	Status               string                `json:"status"`
	Paid                 bool                  `json:"paid"`
	Captured             bool                  `json:"captured"`
	Refunded             bool                  `json:"refunded"`
	Livemode             bool                  `json:"livemode"`
	Description          string                `json:"description"`
	FailureCode          string                `json:"failure_code"`
	ReceiptURL           string                `json:"receipt_url"`
	StatementDescriptor  string                `json:"statement_descriptor"`
	Dispute              json.RawMessage       `json:"dispute"`
	Customer             json.RawMessage       `json:"customer"`
	PaymentIntent        json.RawMessage       `json:"payment_intent"`
	BillingDetails       *BillingDetails       `json:"billing_details"`
	PaymentMethodDetails *PaymentMethodDetails `json:"payment_method_details"`
	Refunds              *RefundList           `json:"refunds"`
	Metadata             map[string]string     `json:"metadata"`
}

type BillingDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type PaymentMethodDetails struct {
	Type string      `json:"type"`
	Card *CardDetail `json:"card"`
}

type CardDetail struct {
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

type RefundList struct {
	Data []Refund `json:"data"`
}

type Refund struct {
	ID      string `json:"id"`
	Amount  int64  `json:"amount"`
	Created int64  `json:"created"`
	Status  string `json:"status"`
}

// idOrObject resolves a field that is either a bare id string or an expanded
// object carrying an "id" key.
func idOrObject(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}

	return ""
}

// DisputeID returns the dispute's id, whether the field arrived expanded or
// as a bare id, or empty when the charge is undisputed.
func (c *Charge) DisputeID() string {
	return idOrObject(c.Dispute)
}

// CustomerID resolves the customer reference to an id.
func (c *Charge) CustomerID() string {
	return idOrObject(c.Customer)
}

// CustomerEmail returns the expanded customer's email, falling back to
// billing details.
func (c *Charge) CustomerEmail() string {
	if len(c.Customer) > 0 {
		var obj struct {
			Email string `json:"email"`
		}
		if err := json.Unmarshal(c.Customer, &obj); err == nil && obj.Email != "" {
			return obj.Email
		}
	}

	if c.BillingDetails != nil {
		return c.BillingDetails.Email
	}

	return ""
}

// PaymentIntentID prefers the expanded object's id over a bare reference.
func (c *Charge) PaymentIntentID() string {
	return idOrObject(c.PaymentIntent)
}

// PaymentIntentDescription returns the expanded payment intent's description,
// or empty when the field is a bare id.
func (c *Charge) PaymentIntentDescription() string {
	if len(c.PaymentIntent) == 0 {
		return ""
	}

	var obj struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(c.PaymentIntent, &obj); err != nil {
		return ""
	}

	return strings.TrimSpace(obj.Description)
}
