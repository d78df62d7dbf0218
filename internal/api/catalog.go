package api

import (
	"context"
	"net/http"

	"github.com/agrichain/marketplace/internal/middleware"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// ============================================
// PRODUCTS
// ============================================

// ListProductsHandler handles GET /products
func (a *App) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := a.svc.Catalog.ListProducts(r.Context(), models.ProductFilter{
		Keyword:       q.Get("keyword"),
		FarmerID:      q.Get("farmer"),
		ProductLineID: q.Get("productLine"),
		ApprovedOnly:  true,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Products fetched successfully", envelope{"products": products})
}

// GetProductHandler handles GET /products/{id}
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	product, err := a.svc.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product fetched successfully", envelope{"product": product})
}

// CreateProductHandler handles POST /products
func (a *App) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	farmer, err := farmerFor(r.Context(), req.Farmer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.Farmer = farmer

	product, err := a.svc.Catalog.CreateProduct(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Product created successfully", envelope{"product": product})
}

// UpdatePriceHandler handles PUT /products/{id}/price
func (a *App) UpdatePriceHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	if err := a.requireProductOwner(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	product, err := a.svc.Catalog.UpdatePrice(r.Context(), id, req.Price)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Price updated successfully", envelope{"product": product})
}

// UpdateQuantityHandler handles PUT /products/{id}/quantity
func (a *App) UpdateQuantityHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	if err := a.requireProductOwner(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	product, err := a.svc.Catalog.UpdateQuantity(r.Context(), id, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Quantity updated successfully", envelope{"product": product})
}

// DeleteProductHandler handles DELETE /products/{id}
func (a *App) DeleteProductHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.requireProductOwner(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.svc.Catalog.DeleteProduct(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product deleted successfully", nil)
}

// requireProductOwner lets admins through and farmers only for their own products
func (a *App) requireProductOwner(ctx context.Context, productID string) error {
	product, err := a.svc.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !middleware.CanActFor(ctx, product.FarmerID) {
		return forbidden("product %s belongs to another farmer", productID)
	}
	return nil
}

// farmerFor defaults an empty farmer id to the caller and rejects acting
// for someone else
func farmerFor(ctx context.Context, id string) (string, error) {
	c, _ := middleware.ClaimsFromContext(ctx)
	if id == "" && c != nil {
		return c.UserID, nil
	}
	if !middleware.CanActFor(ctx, id) {
		return "", forbidden("cannot act for farmer %s", id)
	}
	return id, nil
}

// ============================================
// PRODUCT LINES
// ============================================

// ListProductLinesHandler handles GET /product-lines
func (a *App) ListProductLinesHandler(w http.ResponseWriter, r *http.Request) {
	lines, err := a.svc.Catalog.ListProductLines(r.Context(), r.URL.Query().Get("farmer"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product lines fetched successfully", envelope{"productLines": lines})
}

// CreateProductLineHandler handles POST /product-lines
func (a *App) CreateProductLineHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProductLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	farmer, err := farmerFor(r.Context(), req.Farmer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.Farmer = farmer

	line, err := a.svc.Catalog.CreateProductLine(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Product line submitted for approval", envelope{"productLine": line})
}

// GetProductLineHandler handles GET /product-lines/{id}
func (a *App) GetProductLineHandler(w http.ResponseWriter, r *http.Request) {
	line, err := a.svc.Catalog.GetProductLine(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product line fetched successfully", envelope{"productLine": line})
}

// GetProductLineByBatchHandler handles GET /product-lines/batch/{batchId}
func (a *App) GetProductLineByBatchHandler(w http.ResponseWriter, r *http.Request) {
	detail, err := a.svc.Catalog.GetProductLineByBatch(r.Context(), mux.Vars(r)["batchId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product line fetched successfully", envelope{
		"productLine": detail.ProductLine,
		"products":    detail.Products,
	})
}

// ApproveProductLineHandler handles PUT /product-lines/{id}/approve
func (a *App) ApproveProductLineHandler(w http.ResponseWriter, r *http.Request) {
	line, err := a.svc.Catalog.ApproveProductLine(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product line approved", envelope{"productLine": line})
}

// RejectProductLineHandler handles PUT /product-lines/{id}/reject
func (a *App) RejectProductLineHandler(w http.ResponseWriter, r *http.Request) {
	line, err := a.svc.Catalog.RejectProductLine(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product line rejected", envelope{"productLine": line})
}
