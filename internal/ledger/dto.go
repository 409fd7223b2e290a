package ledger

// RecordPaymentRequest is the payload for recording a payment.
type RecordPaymentRequest struct {
	Amount         float64 `json:"amount" validate:"required"`
	Method         string  `json:"method" validate:"required,max=40"`
	Reference      *string `json:"reference" validate:"omitempty,max=120"`
	IdempotencyKey string  `json:"idempotency_key" validate:"required,uuid4"`
}
