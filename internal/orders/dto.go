package orders

// LineRequest is one submitted order line. Catalog lines carry an item id;
// custom lines carry their own name and price. Quantity is deliberately
// unconstrained here: the assembler rejects bad catalog quantities and
// silently drops half-filled custom rows, so the DTO must let both through.
type LineRequest struct {
	ItemID    *int64  `json:"item_id" validate:"omitempty,gt=0"`
	Name      string  `json:"name" validate:"omitempty,max=160"`
	Qty       int64   `json:"qty"`
	UnitPrice float64 `json:"unit_price" validate:"omitempty,gte=0"`
	IsCustom  bool    `json:"is_custom"`
}

// InitialPaymentRequest is the optional payment submitted with the order.
type InitialPaymentRequest struct {
	Amount    float64 `json:"amount" validate:"required"`
	Method    string  `json:"method" validate:"required,max=40"`
	Reference *string `json:"reference" validate:"omitempty,max=120"`
}

// CreateOrderRequest is the payload for creating an order.
type CreateOrderRequest struct {
	ClientID       int64                  `json:"client_id" validate:"required,gt=0"`
	WorkerID       *int64                 `json:"worker_id" validate:"omitempty,gt=0"`
	Kind           Kind                   `json:"kind" validate:"required,oneof=SERVICE SALES"`
	Notes          *string                `json:"notes" validate:"omitempty,max=2000"`
	Lines          []LineRequest          `json:"lines" validate:"required,min=1,dive"`
	InitialPayment *InitialPaymentRequest `json:"initial_payment" validate:"omitempty"`
	IdempotencyKey string                 `json:"idempotency_key" validate:"required,uuid4"`
}

// ListOrdersQuery mirrors the supported listing filters.
type ListOrdersQuery struct {
	Status  string `json:"status"`
	From    string `json:"from"`
	To      string `json:"to"`
	Search  string `json:"search"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}
