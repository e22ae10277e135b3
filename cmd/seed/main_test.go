package main

import (
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeart/internal/domain/order"
)

func TestGenerateOrders(t *testing.T) {
	orders := generateOrders(rand.New(rand.NewPCG(7, 7)), 200, 5, "EUR")
	require.Len(t, orders, 200)

	customers := map[string]bool{}
	statuses := map[order.Status]int{}
	for _, o := range orders {
		customers[o.Customer] = true
		statuses[o.Status]++
		assert.Equal(t, "EUR", o.Currency)
		assert.True(t, o.Total.GreaterThanOrEqual(decimal.NewFromInt(1)))
		assert.True(t, o.Validate(t.Context()).IsSatisfied())
	}

	assert.LessOrEqual(t, len(customers), 5)
	assert.Positive(t, statuses[order.StatusDraft])
	assert.Positive(t, statuses[order.StatusConfirmed])
}

func TestGenerateOrdersIsDeterministic(t *testing.T) {
	a := generateOrders(rand.New(rand.NewPCG(1, 1)), 10, 3, "USD")
	b := generateOrders(rand.New(rand.NewPCG(1, 1)), 10, 3, "USD")
	for i := range a {
		assert.Equal(t, a[i].Customer, b[i].Customer)
		assert.True(t, a[i].Total.Equal(b[i].Total))
	}
	assert.NotEqual(t, a[0].ID, b[0].ID)
}

func TestRunRejectsBadCounts(t *testing.T) {
	err := run(t.Context(), &seedOptions{count: 0, customers: 1})
	assert.Error(t, err)
}
