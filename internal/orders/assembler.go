package orders

import (
	"strings"

	"github.com/orderdesk/orderdesk/internal/catalog"
	"github.com/orderdesk/orderdesk/internal/inventory"
	"github.com/orderdesk/orderdesk/internal/shared"
)

// Assembler builds the line set for a new order from a catalog snapshot.
// Its stock check is advisory: the snapshot can be stale, and the
// authoritative check happens at reservation time. The assembled lines are
// handed to the coordinator as a value and never mutated afterwards.
type Assembler struct {
	items map[int64]catalog.CatalogItem
	lines []OrderLine
}

// NewAssembler builds an Assembler over a catalog snapshot.
func NewAssembler(snapshot []catalog.CatalogItem) *Assembler {
	items := make(map[int64]catalog.CatalogItem, len(snapshot))
	for _, item := range snapshot {
		items[item.ID] = item
	}
	return &Assembler{items: items}
}

// AddCatalogLine adds deltaQty units of a catalog item. Repeated adds for
// the same item merge into one line instead of duplicating it, and the
// merged quantity is what gets checked against the snapshot stock.
func (a *Assembler) AddCatalogLine(itemID, deltaQty int64) error {
	if deltaQty <= 0 {
		return shared.Validationf("quantity must be positive")
	}
	item, ok := a.items[itemID]
	if !ok {
		return shared.ErrNotFound
	}

	idx := a.findCatalogLine(itemID)
	merged := deltaQty
	if idx >= 0 {
		merged += a.lines[idx].Qty
	}
	if item.Tracked() && merged > item.StockQty {
		return &inventory.OutOfStockError{ItemID: itemID, Requested: merged, Available: item.StockQty}
	}

	if idx >= 0 {
		a.lines[idx].Qty = merged
		a.lines[idx].Total = float64(merged) * a.lines[idx].UnitPrice
		return nil
	}
	a.lines = append(a.lines, OrderLine{
		CatalogItemID: &item.ID,
		Name:          item.Name,
		Qty:           deltaQty,
		UnitPrice:     item.UnitPrice,
		Total:         float64(deltaQty) * item.UnitPrice,
	})
	return nil
}

// AddCustomLine adds a free-form line. Invalid input is silently dropped:
// the dashboard submits half-filled custom rows and expects them ignored.
func (a *Assembler) AddCustomLine(name string, qty int64, price float64) {
	name = strings.TrimSpace(name)
	if name == "" || qty <= 0 || price <= 0 {
		return
	}
	a.lines = append(a.lines, OrderLine{
		Name:      name,
		Qty:       qty,
		UnitPrice: price,
		Total:     float64(qty) * price,
		IsCustom:  true,
	})
}

// RemoveLine drops the line at index. Out-of-range indexes are ignored.
func (a *Assembler) RemoveLine(index int) {
	if index < 0 || index >= len(a.lines) {
		return
	}
	a.lines = append(a.lines[:index], a.lines[index+1:]...)
}

// SetQuantity replaces the quantity of the line at index. A quantity of zero
// or less removes the line. Catalog lines re-run the advisory stock check.
func (a *Assembler) SetQuantity(index int, qty int64) error {
	if index < 0 || index >= len(a.lines) {
		return nil
	}
	if qty <= 0 {
		a.RemoveLine(index)
		return nil
	}
	line := &a.lines[index]
	if line.CatalogItemID != nil {
		if item, ok := a.items[*line.CatalogItemID]; ok && item.Tracked() && qty > item.StockQty {
			return &inventory.OutOfStockError{ItemID: item.ID, Requested: qty, Available: item.StockQty}
		}
	}
	line.Qty = qty
	line.Total = float64(qty) * line.UnitPrice
	return nil
}

// Lines returns a copy of the assembled lines.
func (a *Assembler) Lines() []OrderLine {
	out := make([]OrderLine, len(a.lines))
	copy(out, a.lines)
	return out
}

// Total recomputes the order total from the current lines. It is never
// cached across mutations.
func (a *Assembler) Total() float64 {
	var total float64
	for _, line := range a.lines {
		total += line.Total
	}
	return total
}

func (a *Assembler) findCatalogLine(itemID int64) int {
	for i := range a.lines {
		if a.lines[i].CatalogItemID != nil && *a.lines[i].CatalogItemID == itemID {
			return i
		}
	}
	return -1
}
