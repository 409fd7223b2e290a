package orders

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orderdesk/orderdesk/internal/catalog"
	"github.com/orderdesk/orderdesk/internal/inventory"
	"github.com/orderdesk/orderdesk/internal/shared"
)

func snapshotFixture() []catalog.CatalogItem {
	return []catalog.CatalogItem{
		{ID: 1, Name: "Detergent", Kind: catalog.KindProduct, UnitPrice: 10, StockQty: 5},
		{ID: 2, Name: "Pressing", Kind: catalog.KindService, UnitPrice: 25},
	}
}

func TestAddCatalogLineMergesDuplicates(t *testing.T) {
	asm := NewAssembler(snapshotFixture())

	require.NoError(t, asm.AddCatalogLine(1, 2))
	require.NoError(t, asm.AddCatalogLine(1, 1))

	lines := asm.Lines()
	require.Len(t, lines, 1)
	require.EqualValues(t, 3, lines[0].Qty)
	require.InDelta(t, 30, lines[0].Total, 1e-9)
	require.InDelta(t, 30, asm.Total(), 1e-9)
}

func TestAddCatalogLineAdvisoryStockCheck(t *testing.T) {
	asm := NewAssembler(snapshotFixture())

	require.NoError(t, asm.AddCatalogLine(1, 5))

	// The merged quantity exceeds the snapshot stock.
	err := asm.AddCatalogLine(1, 1)
	var oos *inventory.OutOfStockError
	require.ErrorAs(t, err, &oos)
	require.EqualValues(t, 6, oos.Requested)
	require.EqualValues(t, 5, oos.Available)

	// The rejected add left the line untouched.
	require.EqualValues(t, 5, asm.Lines()[0].Qty)
}

func TestServiceItemsSkipStockCheck(t *testing.T) {
	asm := NewAssembler(snapshotFixture())

	require.NoError(t, asm.AddCatalogLine(2, 100))
	require.InDelta(t, 2500, asm.Total(), 1e-9)
}

func TestAddCatalogLineUnknownItem(t *testing.T) {
	asm := NewAssembler(snapshotFixture())

	require.ErrorIs(t, asm.AddCatalogLine(99, 1), shared.ErrNotFound)
	require.Error(t, asm.AddCatalogLine(1, 0))
	require.Error(t, asm.AddCatalogLine(1, -2))
	require.Empty(t, asm.Lines())
}

func TestAddCustomLineDropsInvalidInput(t *testing.T) {
	asm := NewAssembler(nil)

	asm.AddCustomLine("", 1, 10)
	asm.AddCustomLine("   ", 1, 10)
	asm.AddCustomLine("Repair", 0, 10)
	asm.AddCustomLine("Repair", 1, 0)
	require.Empty(t, asm.Lines())

	asm.AddCustomLine("Repair", 2, 12.5)
	lines := asm.Lines()
	require.Len(t, lines, 1)
	require.True(t, lines[0].IsCustom)
	require.Nil(t, lines[0].CatalogItemID)
	require.InDelta(t, 25, asm.Total(), 1e-9)
}

func TestSetQuantityZeroRemovesLine(t *testing.T) {
	asm := NewAssembler(snapshotFixture())
	require.NoError(t, asm.AddCatalogLine(1, 2))
	asm.AddCustomLine("Repair", 1, 40)

	require.NoError(t, asm.SetQuantity(0, 0))
	lines := asm.Lines()
	require.Len(t, lines, 1)
	require.Equal(t, "Repair", lines[0].Name)
	require.InDelta(t, 40, asm.Total(), 1e-9)
}

func TestSetQuantityReRunsStockCheck(t *testing.T) {
	asm := NewAssembler(snapshotFixture())
	require.NoError(t, asm.AddCatalogLine(1, 2))

	var oos *inventory.OutOfStockError
	require.ErrorAs(t, asm.SetQuantity(0, 6), &oos)

	require.NoError(t, asm.SetQuantity(0, 4))
	require.InDelta(t, 40, asm.Total(), 1e-9)
}

func TestTotalInvariantUnderUnrelatedMutations(t *testing.T) {
	asm := NewAssembler(snapshotFixture())
	require.NoError(t, asm.AddCatalogLine(1, 2))
	before := asm.Total()

	asm.AddCustomLine("Repair", 1, 40)
	asm.RemoveLine(1)
	require.InDelta(t, before, asm.Total(), 1e-9)

	var sum float64
	for _, line := range asm.Lines() {
		sum += line.Total
	}
	require.InDelta(t, sum, asm.Total(), 1e-9)
}

func TestRemoveLineIgnoresOutOfRange(t *testing.T) {
	asm := NewAssembler(snapshotFixture())
	require.NoError(t, asm.AddCatalogLine(1, 1))

	asm.RemoveLine(-1)
	asm.RemoveLine(5)
	require.Len(t, asm.Lines(), 1)
}
