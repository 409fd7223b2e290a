package orders

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderRequestAllowsHalfFilledCustomRows(t *testing.T) {
	v := validator.New()
	itemID := int64(1)

	// A dashboard submission often carries an abandoned custom row next to a
	// real line. Struct validation must let it through so the assembler can
	// drop it, rather than rejecting the whole order.
	req := CreateOrderRequest{
		ClientID: 10,
		Kind:     KindSales,
		Lines: []LineRequest{
			{ItemID: &itemID, Qty: 2},
			{Name: "Repair", Qty: 0, IsCustom: true},
			{Qty: -1, IsCustom: true},
		},
		IdempotencyKey: uuid.NewString(),
	}
	require.NoError(t, v.Struct(req))
}

func TestCreateOrderRequestStillRejectsMissingEssentials(t *testing.T) {
	v := validator.New()

	req := CreateOrderRequest{
		Kind:           Kind("BOGUS"),
		Lines:          []LineRequest{},
		IdempotencyKey: "not-a-uuid",
	}
	err := v.Struct(req)
	require.Error(t, err)

	var fieldErrs validator.ValidationErrors
	require.ErrorAs(t, err, &fieldErrs)
	failed := make(map[string]bool, len(fieldErrs))
	for _, fe := range fieldErrs {
		failed[fe.Field()] = true
	}
	require.True(t, failed["ClientID"])
	require.True(t, failed["Kind"])
	require.True(t, failed["Lines"])
	require.True(t, failed["IdempotencyKey"])
}
