package api

import (
	"net/http"

	"github.com/agrichain/marketplace/internal/middleware"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/gorilla/mux"
)

// customerFor resolves the customer a cart request acts on. An empty id
// means the caller.
func customerFor(r *http.Request, id string) (string, error) {
	if id == "" {
		if c, ok := middleware.ClaimsFromContext(r.Context()); ok {
			id = c.UserID
		}
	}
	if !middleware.CanActFor(r.Context(), id) {
		return "", forbidden("cannot act for customer %s", id)
	}
	return id, nil
}

// AddToCartHandler handles POST /customers/cart/add
func (a *App) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CartDeltaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	customerID, err := customerFor(r, req.Customer)
	if err != nil {
		writeError(w, r, err)
		return
	}

	cart, err := a.svc.Carts.ApplyDelta(r.Context(), customerID, req.Product, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Cart updated successfully", envelope{"cart": cart})
}

// RemoveFromCartHandler handles POST /customers/cart/remove
func (a *App) RemoveFromCartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CartRemoveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	customerID, err := customerFor(r, req.Customer)
	if err != nil {
		writeError(w, r, err)
		return
	}

	cart, err := a.svc.Carts.Remove(r.Context(), customerID, req.Product)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product removed from cart", envelope{"cart": cart})
}

// GetCartHandler handles GET /customers/cart/{customerId}
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	customerID, err := customerFor(r, mux.Vars(r)["customerId"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	cart, err := a.svc.Carts.Get(r.Context(), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Cart fetched successfully", envelope{"cart": cart})
}

// CheckoutHandler handles POST /checkout
func (a *App) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	customerID, err := customerFor(r, req.Customer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.Customer = customerID

	order, err := a.svc.Checkout.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Order placed successfully", envelope{"order": order})
}

// OrderHistoryHandler handles GET /orders/{customerId}
func (a *App) OrderHistoryHandler(w http.ResponseWriter, r *http.Request) {
	customerID, err := customerFor(r, mux.Vars(r)["customerId"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	orders, err := a.svc.Checkout.OrderHistory(r.Context(), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Orders fetched successfully", envelope{"orders": orders})
}

// GetOrderHandler handles GET /orders/detail/{orderId}
func (a *App) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := a.svc.Checkout.GetOrder(r.Context(), mux.Vars(r)["orderId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !middleware.CanActFor(r.Context(), order.CustomerID) {
		writeError(w, r, forbidden("order %s belongs to another customer", order.ID))
		return
	}
	writeSuccess(w, http.StatusOK, "Order fetched successfully", envelope{"order": order})
}
