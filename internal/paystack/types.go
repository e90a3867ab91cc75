package paystack

import "encoding/json"

// apiResponse is the envelope Paystack wraps every response in
type apiResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeRequest is the payload for transaction initialization
type InitializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"` // kobo
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// InitializeData is the payload of a successful initialization
type InitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Customer identifies the payer on a transaction
type Customer struct {
	Email string `json:"email"`
}

// TransactionData is the payload of a transaction verification
type TransactionData struct {
	Status    string   `json:"status"` // "success", "failed", "abandoned", ...
	Reference string   `json:"reference"`
	Amount    int64    `json:"amount"` // kobo
	Customer  Customer `json:"customer"`
}

// WebhookEvent is the body of a gateway-pushed webhook
type WebhookEvent struct {
	Event string      `json:"event"` // e.g. "charge.success"
	Data  WebhookData `json:"data"`
}

// WebhookData carries the transaction details of a webhook event
type WebhookData struct {
	Reference string   `json:"reference"`
	Amount    int64    `json:"amount"` // kobo
	Status    string   `json:"status"`
	Customer  Customer `json:"customer"`
}

// EventChargeSuccess is the only webhook event type that confirms a payment
const EventChargeSuccess = "charge.success"
