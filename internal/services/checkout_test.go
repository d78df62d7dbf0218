package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/agrichain/marketplace/internal/apperr"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkoutReq(customer string, lines ...models.CheckoutLine) models.CheckoutRequest {
	return models.CheckoutRequest{Customer: customer, Cart: lines}
}

func TestCheckoutScenario(t *testing.T) {
	f := newFixture(t)
	p := f.seedProduct(t, "Rice", "5", 10)
	ctx := context.Background()

	_, err := f.carts.ApplyDelta(ctx, f.customer.ID, p.ID, 3)
	require.NoError(t, err)

	order, err := f.checkout.Checkout(ctx, checkoutReq(f.customer.ID, models.CheckoutLine{ProductID: p.ID, Quantity: 3}))
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(15).Equal(order.TotalPrice))
	assert.Equal(t, models.OrderSuccess, order.Status)
	assert.Equal(t, 7, f.quantity(t, p.ID))

	cart, err := f.store.GetCart(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Empty(t, cart)

	require.Len(t, order.Lines, 1)
	assert.Equal(t, models.OrderLine{
		ProductID:     p.ID,
		ProductLineID: f.line.ID,
		FarmerID:      f.farmer.ID,
		Name:          "Rice",
		Unit:          "kg",
		Quantity:      3,
		Price:         p.Price,
	}, order.Lines[0])

	f.checkout.Wait()
	assert.Equal(t, []string{order.ID}, f.notifier.sent())
	assert.Equal(t, []string{order.ID}, f.events.published())
}

func TestCheckoutTotalsAndDecrements(t *testing.T) {
	f := newFixture(t)
	rice := f.seedProduct(t, "Rice", "2.35", 10)
	beans := f.seedProduct(t, "Beans", "0.10", 50)

	order, err := f.checkout.Checkout(context.Background(), checkoutReq(f.customer.ID,
		models.CheckoutLine{ProductID: rice.ID, Quantity: 3},
		models.CheckoutLine{ProductID: beans.ID, Quantity: 7},
	))
	require.NoError(t, err)

	want := decimal.Zero
	for _, l := range order.Lines {
		want = want.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	assert.True(t, want.Equal(order.TotalPrice))
	assert.Equal(t, "7.75", order.TotalPrice.StringFixed(2))
	assert.Equal(t, 7, f.quantity(t, rice.ID))
	assert.Equal(t, 43, f.quantity(t, beans.ID))
	f.checkout.Wait()
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	p := f.seedProduct(t, "Rice", "5", 10)

	_, err := f.checkout.Checkout(context.Background(), checkoutReq(f.customer.ID))
	assert.ErrorIs(t, err, apperr.ErrCartEmpty)

	orders, err := f.store.ListOrdersByCustomer(context.Background(), f.customer.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, 10, f.quantity(t, p.ID))
}

func TestCheckoutInsufficientStockChangesNothing(t *testing.T) {
	f := newFixture(t)
	rice := f.seedProduct(t, "Rice", "5", 10)
	beans := f.seedProduct(t, "Beans", "3", 2)
	ctx := context.Background()

	_, err := f.carts.ApplyDelta(ctx, f.customer.ID, rice.ID, 1)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, checkoutReq(f.customer.ID,
		models.CheckoutLine{ProductID: rice.ID, Quantity: 4},
		models.CheckoutLine{ProductID: beans.ID, Quantity: 3},
	))
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Beans")

	assert.Equal(t, 10, f.quantity(t, rice.ID))
	assert.Equal(t, 2, f.quantity(t, beans.ID))
	orders, err := f.store.ListOrdersByCustomer(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)

	cart, err := f.store.GetCart(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Len(t, cart, 1, "a failed checkout keeps the stored cart")
}

func TestCheckoutMissingProduct(t *testing.T) {
	f := newFixture(t)
	rice := f.seedProduct(t, "Rice", "5", 10)

	_, err := f.checkout.Checkout(context.Background(), checkoutReq(f.customer.ID,
		models.CheckoutLine{ProductID: rice.ID, Quantity: 1},
		models.CheckoutLine{ProductID: "gone", Quantity: 1},
	))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 10, f.quantity(t, rice.ID))
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	rice := f.seedProduct(t, "Rice", "5", 10)
	ctx := context.Background()

	_, err := f.checkout.Checkout(ctx, checkoutReq(f.customer.ID, models.CheckoutLine{ProductID: rice.ID, Quantity: 0}))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.checkout.Checkout(ctx, checkoutReq(f.customer.ID, models.CheckoutLine{Quantity: 1}))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.checkout.Checkout(ctx, checkoutReq(f.farmer.ID, models.CheckoutLine{ProductID: rice.ID, Quantity: 1}))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.checkout.Checkout(ctx, checkoutReq("ghost", models.CheckoutLine{ProductID: rice.ID, Quantity: 1}))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, 10, f.quantity(t, rice.ID))
}

func TestCheckoutMergesRepeatedProducts(t *testing.T) {
	f := newFixture(t)
	rice := f.seedProduct(t, "Rice", "5", 4)
	ctx := context.Background()

	_, err := f.checkout.Checkout(ctx, checkoutReq(f.customer.ID,
		models.CheckoutLine{ProductID: rice.ID, Quantity: 3},
		models.CheckoutLine{ProductID: rice.ID, Quantity: 3},
	))
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 4, f.quantity(t, rice.ID))

	order, err := f.checkout.Checkout(ctx, checkoutReq(f.customer.ID,
		models.CheckoutLine{ProductID: rice.ID, Quantity: 1},
		models.CheckoutLine{ProductID: rice.ID, Quantity: 2},
	))
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, 3, order.Lines[0].Quantity)
	assert.Equal(t, 1, f.quantity(t, rice.ID))
	f.checkout.Wait()
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t)
	rice := f.seedProduct(t, "Rice", "5", 10)

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.checkout.Checkout(context.Background(),
				checkoutReq(f.customer.ID, models.CheckoutLine{ProductID: rice.ID, Quantity: 1}))
			if err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()
	f.checkout.Wait()

	assert.Equal(t, int32(10), success.Load())
	assert.Equal(t, 0, f.quantity(t, rice.ID))
}

func TestOrderHistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	rice := f.seedProduct(t, "Rice", "5", 10)
	ctx := context.Background()

	first, err := f.checkout.Checkout(ctx, checkoutReq(f.customer.ID, models.CheckoutLine{ProductID: rice.ID, Quantity: 1}))
	require.NoError(t, err)
	second, err := f.checkout.Checkout(ctx, checkoutReq(f.customer.ID, models.CheckoutLine{ProductID: rice.ID, Quantity: 2}))
	require.NoError(t, err)
	f.checkout.Wait()

	orders, err := f.checkout.OrderHistory(ctx, f.customer.ID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)

	got, err := f.checkout.GetOrder(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, first.TotalPrice.Equal(got.TotalPrice))
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "cart_empty", failureReason(apperr.ErrCartEmpty))
	assert.Equal(t, "insufficient_stock", failureReason(&apperr.StockError{}))
	assert.Equal(t, "not_found", failureReason(apperr.NotFound("product", "x")))
	assert.Equal(t, "validation", failureReason(apperr.Validation("bad")))
	assert.Equal(t, "storage", failureReason(assert.AnError))
}
