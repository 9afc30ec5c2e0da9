package revenue

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salonpos/backend/internal/store/memory"
)

func TestStorePosterIsIdempotentPerOrder(t *testing.T) {
	poster := NewStorePoster(memory.New())
	entry := Entry{
		OrderID:         "ord-1",
		LocationID:      "loc-1",
		PaymentMethodID: "pm-cash",
		TotalAmount:     decimal.RequireFromString("121.00"),
		Date:            time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		Note:            "order ord-1",
	}

	first, err := poster.Post(context.Background(), entry)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := poster.Post(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStorePosterRejectsMissingOrder(t *testing.T) {
	_, err := NewStorePoster(memory.New()).Post(context.Background(), Entry{})
	assert.Error(t, err)
}
