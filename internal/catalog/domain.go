package catalog

import "time"

// ItemKind distinguishes physical products from services.
type ItemKind string

const (
	KindProduct ItemKind = "PRODUCT"
	KindService ItemKind = "SERVICE"
)

// CatalogItem is an orderable product or service. Catalog management owns
// these rows; this subsystem reads them and only Inventory Reservation may
// touch stock_qty.
type CatalogItem struct {
	ID           int64     `json:"id"`
	OrgID        int64     `json:"org_id"`
	Name         string    `json:"name"`
	Kind         ItemKind  `json:"kind"`
	UnitPrice    float64   `json:"unit_price"`
	StockQty     int64     `json:"stock_qty"`
	ReorderPoint int64     `json:"reorder_point"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Tracked reports whether the item carries stock. Services are never tracked.
func (c CatalogItem) Tracked() bool {
	return c.Kind == KindProduct
}
