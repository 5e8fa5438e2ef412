package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/inventory/internal/models"
	"github.com/Skotchmaster/inventory/internal/service"
	"github.com/Skotchmaster/inventory/internal/transport"
	"github.com/Skotchmaster/inventory/internal/util"
	"github.com/Skotchmaster/inventory/pkg/logging"
)

type CatalogHTTP struct {
	Svc *service.CatalogService
}

func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id is not a positive integer")
	}
	return uint(id), nil
}

func parsePrice(raw, name string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be a number")
	}
	return &v, nil
}

func catalogError(err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	case errors.Is(err, service.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "product already exists")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, fallback).SetInternal(err)
	}
}

func (h *CatalogHTTP) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.get_products")

	minPrice, err := parsePrice(c.QueryParam("minPrice"), "minPrice")
	if err != nil {
		l.Warn("get_products_failed", "status", 400, "reason", "invalid minPrice")
		return err
	}
	maxPrice, err := parsePrice(c.QueryParam("maxPrice"), "maxPrice")
	if err != nil {
		l.Warn("get_products_failed", "status", 400, "reason", "invalid maxPrice")
		return err
	}

	page, err := h.Svc.ListProducts(ctx, service.ListQuery{
		Page:  util.ParseIntDefault(c.QueryParam("page"), util.DefaultPage),
		Limit: util.ParseIntDefault(c.QueryParam("limit"), util.DefaultPageSize),
		Filter: models.ProductFilter{
			Category: c.QueryParam("category"),
			MinPrice: minPrice,
			MaxPrice: maxPrice,
			Name:     c.QueryParam("name"),
		},
	})
	if err != nil {
		return catalogError(err, "cannot get products")
	}
	return c.JSON(http.StatusOK, page)
}

func (h *CatalogHTTP) SearchProducts(c echo.Context) error {
	ctx := c.Request().Context()

	page, err := h.Svc.SearchProducts(ctx,
		c.QueryParam("q"),
		util.ParseIntDefault(c.QueryParam("page"), util.DefaultPage),
		util.ParseIntDefault(c.QueryParam("limit"), util.DefaultPageSize),
	)
	if err != nil {
		return catalogError(err, "cannot search products")
	}
	return c.JSON(http.StatusOK, page)
}

func (h *CatalogHTTP) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.get_product")

	id, err := parseID(c)
	if err != nil {
		l.Warn("get_product_failed", "status", 400, "reason", "id is not an integer")
		return err
	}

	product, err := h.Svc.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			l.Warn("get_product_failed", "status", 404, "product_id", id)
		}
		return catalogError(err, "cannot get product")
	}
	return c.JSON(http.StatusOK, transport.OK("product fetched", product))
}

func (h *CatalogHTTP) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.create")

	var req transport.CreateProductRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_product_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	prod, err := h.Svc.CreateProduct(ctx, req)
	if err != nil {
		return catalogError(err, "cannot create product")
	}

	l.Info("create_product_success", "product_id", prod.ID)
	return c.JSON(http.StatusOK, transport.OK("product created", prod))
}

func (h *CatalogHTTP) UpdateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.update")

	id, err := parseID(c)
	if err != nil {
		l.Warn("update_product_failed", "status", 400, "reason", "id is not an integer")
		return err
	}

	var req transport.PatchProductRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_product_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	prod, err := h.Svc.UpdateProduct(ctx, id, req)
	if err != nil {
		return catalogError(err, "cannot update product")
	}

	l.Info("update_product_success", "product_id", id)
	return c.JSON(http.StatusOK, transport.OK("product updated", prod))
}

func (h *CatalogHTTP) DeleteProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.delete")

	id, err := parseID(c)
	if err != nil {
		l.Warn("delete_product_failed", "status", 400, "reason", "id is not an integer")
		return err
	}

	if err := h.Svc.DeleteProduct(ctx, id); err != nil {
		return catalogError(err, "cannot delete product")
	}

	l.Info("delete_product_success", "product_id", id)
	return c.JSON(http.StatusOK, transport.OK("product deleted", nil))
}

func (h *CatalogHTTP) Stats(c echo.Context) error {
	stats, err := h.Svc.Stats(c.Request().Context())
	if err != nil {
		return catalogError(err, "cannot compute stats")
	}
	return c.JSON(http.StatusOK, transport.OK("product stats", stats))
}
