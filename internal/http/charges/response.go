package charges

import (
	"time"

	"github.com/MrJamesThe3rd/chargemirror/internal/keys"
	"github.com/MrJamesThe3rd/chargemirror/internal/ledger"
)

type chargeResponse struct {
	ChargeID string `json:"charge_id"`
	KeyID    string `json:"key_id"`

	AmountCents         int64  `json:"amount_cents"`
	Amount              string `json:"amount"`
	Currency            string `json:"currency"`
	AmountRefundedCents int64  `json:"amount_refunded_cents"`

	CreatedEpoch    int64      `json:"created_epoch"`
	CreatedAt       time.Time  `json:"created_at"`
	RefundCreatedAt *time.Time `json:"refund_created_at,omitempty"`

	Status      string  `json:"status"`
	Paid        bool    `json:"paid"`
	Captured    bool    `json:"captured"`
	Refunded    bool    `json:"refunded"`
	FailureCode *string `json:"failure_code,omitempty"`
	DisputeID   *string `json:"dispute_id,omitempty"`

	PaymentIntentID    *string `json:"payment_intent_id,omitempty"`
	CustomerID         *string `json:"customer_id,omitempty"`
	CustomerEmail      *string `json:"customer_email,omitempty"`
	PaymentMethodType  *string `json:"payment_method_type,omitempty"`
	PaymentMethodBrand *string `json:"payment_method_brand,omitempty"`
	PaymentMethodLast4 *string `json:"payment_method_last4,omitempty"`
	Reference          *string `json:"reference,omitempty"`
	OrderID            *string `json:"order_id,omitempty"`
	CartID             *string `json:"cart_id,omitempty"`
	Livemode           bool    `json:"livemode"`

	Display displayResponse `json:"display"`
}

type displayResponse struct {
	Description         string `json:"description,omitempty"`
	Amount              string `json:"amount"`
	CustomerName        string `json:"customer_name,omitempty"`
	ReceiptURL          string `json:"receipt_url,omitempty"`
	StatementDescriptor string `json:"statement_descriptor,omitempty"`
}

type statsResponse struct {
	Total      int64 `json:"total"`
	Succeeded  int64 `json:"succeeded"`
	Refunded   int64 `json:"refunded"`
	Disputed   int64 `json:"disputed"`
	Failed     int64 `json:"failed"`
	Uncaptured int64 `json:"uncaptured"`
}

type keyResponse struct {
	KeyID        string `json:"key_id"`
	Name         string `json:"name"`
	Default      bool   `json:"default"`
	MaskedSecret string `json:"masked_secret,omitempty"`
	Livemode     bool   `json:"livemode"`
	Account      string `json:"account,omitempty"`
}

type listResponse struct {
	Transactions []chargeResponse `json:"transactions"`
	Stats        statsResponse    `json:"stats"`
	Keys         []keyResponse    `json:"keys"`
}

func toChargeResponse(tx *ledger.Transaction) chargeResponse {
	display := ledger.DeriveDisplayView(tx)

	return chargeResponse{
		ChargeID: tx.ChargeID,
		KeyID:    tx.KeyID,

		AmountCents:         tx.AmountCents,
		Amount:              ledger.AmountString(tx.AmountCents, tx.Currency),
		Currency:            tx.Currency,
		AmountRefundedCents: tx.AmountRefundedCents,

		CreatedEpoch:    tx.CreatedEpoch,
		CreatedAt:       tx.CreatedAt,
		RefundCreatedAt: tx.RefundCreatedAt,

		Status:      tx.Status,
		Paid:        tx.Paid,
		Captured:    tx.Captured,
		Refunded:    tx.Refunded,
		FailureCode: tx.FailureCode,
		DisputeID:   tx.DisputeID,

		PaymentIntentID:    tx.PaymentIntentID,
		CustomerID:         tx.CustomerID,
		CustomerEmail:      tx.CustomerEmail,
		PaymentMethodType:  tx.PaymentMethodType,
		PaymentMethodBrand: tx.PaymentMethodBrand,
		PaymentMethodLast4: tx.PaymentMethodLast4,
		Reference:          tx.Reference,
		OrderID:            tx.OrderID,
		CartID:             tx.CartID,
		Livemode:           tx.Livemode,

		Display: displayResponse{
			Description:         display.Description,
			Amount:              display.Amount,
			CustomerName:        display.CustomerName,
			ReceiptURL:          display.ReceiptURL,
			StatementDescriptor: display.StatementDescriptor,
		},
	}
}

func toListResponse(txs []*ledger.Transaction, stats *ledger.Stats, orgKeys []*keys.Key) listResponse {
	resp := listResponse{
		Transactions: make([]chargeResponse, len(txs)),
		Keys:         make([]keyResponse, len(orgKeys)),
	}

	for i, tx := range txs {
		resp.Transactions[i] = toChargeResponse(tx)
	}

	for i, key := range orgKeys {
		resp.Keys[i] = keyResponse{
			KeyID:        key.KeyID,
			Name:         key.Name,
			Default:      key.Default,
			MaskedSecret: key.Metadata.MaskedSecret,
			Livemode:     key.Metadata.Livemode,
			Account:      key.Metadata.Account,
		}
	}

	if stats != nil {
		resp.Stats = statsResponse{
			Total:      stats.Total,
			Succeeded:  stats.Succeeded,
			Refunded:   stats.Refunded,
			Disputed:   stats.Disputed,
			Failed:     stats.Failed,
			Uncaptured: stats.Uncaptured,
		}
	}

	return resp
}
