package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DisplayFields are read-time derivations from a stored row and its raw
// payload. They are intentionally never persisted as columns, so a change to
// the derivation applies to all historical rows without a migration.
type DisplayFields struct {
	Description         string
	Amount              string
	CustomerName        string
	ReceiptURL          string
	StatementDescriptor string
}

// rawView is the slice of the raw payload the display derivation cares about.
type rawView struct {
	Description         string `json:"description"`
	ReceiptURL          string `json:"receipt_url"`
	StatementDescriptor string `json:"statement_descriptor"`
	BillingDetails      struct {
		Name string `json:"name"`
	} `json:"billing_details"`
}

// DeriveDisplayView computes the display-only fields for one transaction.
// Every sub-field degrades to empty on a malformed payload; derivation never
// fails.
func DeriveDisplayView(tx *Transaction) DisplayFields {
	fields := DisplayFields{
		Amount: FormatAmount(tx.AmountCents, tx.Currency),
	}

	var view rawView
	if len(tx.Raw) > 0 {
		// Best effort: a payload that fails to parse leaves the view zeroed.
		_ = json.Unmarshal(tx.Raw, &view)
	}

	fields.ReceiptURL = view.ReceiptURL
	fields.StatementDescriptor = view.StatementDescriptor
	fields.CustomerName = strings.TrimSpace(view.BillingDetails.Name)

	fields.Description = displayDescription(tx, view)

	return fields
}

// displayDescription combines the free-text description with any resolved
// correlation ids.
func displayDescription(tx *Transaction, view rawView) string {
	desc := ""
	if tx.Description != nil {
		desc = strings.TrimSpace(*tx.Description)
	}

	if desc == "" {
		desc = strings.TrimSpace(view.Description)
	}

	var refs []string

	if tx.Reference != nil && *tx.Reference != "" {
		refs = append(refs, fmt.Sprintf("ref %s", *tx.Reference))
	}

	if tx.OrderID != nil && *tx.OrderID != "" {
		refs = append(refs, fmt.Sprintf("order %s", *tx.OrderID))
	}

	if tx.CartID != nil && *tx.CartID != "" {
		refs = append(refs, fmt.Sprintf("cart %s", *tx.CartID))
	}

	if len(refs) == 0 {
		return desc
	}

	suffix := "(" + strings.Join(refs, ", ") + ")"
	if desc == "" {
		return suffix
	}

	return desc + " " + suffix
}
