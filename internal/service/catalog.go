package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/inventory/internal/models"
	"github.com/Skotchmaster/inventory/internal/search"
	"github.com/Skotchmaster/inventory/internal/transport"
	"github.com/Skotchmaster/inventory/internal/util"
	"github.com/Skotchmaster/inventory/pkg/cache"
	"github.com/Skotchmaster/inventory/pkg/events"
	"github.com/Skotchmaster/inventory/pkg/logging"
)

const (
	DefaultProductCacheTTL = time.Hour

	listVersionKey    = "products:list:version"
	minProductNameLen = 6
)

type ProductStore interface {
	GetProduct(ctx context.Context, id uint) (*models.Product, error)
	GetProducts(ctx context.Context, f models.ProductFilter, offset, limit int) (int64, []models.Product, error)
	CreateProduct(ctx context.Context, prod *models.Product) error
	PatchProduct(ctx context.Context, id uint, fields map[string]any) (*models.Product, error)
	DeleteProduct(ctx context.Context, id uint) error
	ProductStats(ctx context.Context) ([]models.CategoryStats, error)
}

type CatalogService struct {
	Store  ProductStore
	Cache  cache.Cache
	Search search.Index
	Events events.Publisher
	TTL    time.Duration
}

func (s *CatalogService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultProductCacheTTL
	}
	return s.TTL
}

type ListQuery struct {
	Page   int
	Limit  int
	Filter models.ProductFilter
}

func detailKey(id uint) string { return fmt.Sprintf("products:detail:%d", id) }

// canonicalFilter renders f with sorted keys so that equivalent filters share
// a cache key.
func canonicalFilter(f models.ProductFilter) string {
	v := url.Values{}
	if f.Category != "" {
		v.Set("category", f.Category)
	}
	if f.MinPrice != nil {
		v.Set("minPrice", strconv.FormatFloat(*f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice != nil {
		v.Set("maxPrice", strconv.FormatFloat(*f.MaxPrice, 'f', -1, 64))
	}
	if name := strings.ToLower(strings.TrimSpace(f.Name)); name != "" {
		v.Set("name", name)
	}
	return v.Encode()
}

func listKey(version int64, page, limit int, f models.ProductFilter) string {
	return fmt.Sprintf("products:list:v%d:%d:%d:%s", version, page, limit, canonicalFilter(f))
}

// listVersion reports false when the cache is unusable.
func (s *CatalogService) listVersion(ctx context.Context) (int64, bool) {
	raw, err := s.Cache.Get(ctx, listVersionKey)
	if errors.Is(err, cache.ErrMiss) {
		return 0, true
	}
	if err != nil {
		logging.FromContext(ctx).Warn("cache_read_failed", "key", listVersionKey, "error", err)
		return 0, false
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (s *CatalogService) invalidateLists(ctx context.Context) {
	if _, err := s.Cache.Incr(ctx, listVersionKey); err != nil {
		logging.FromContext(ctx).Warn("cache_write_failed", "key", listVersionKey, "error", err)
	}
}

func (s *CatalogService) cacheJSON(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.Cache.Set(ctx, key, b, s.ttl()); err != nil {
		logging.FromContext(ctx).Warn("cache_write_failed", "key", key, "error", err)
	}
}

func (s *CatalogService) ListProducts(ctx context.Context, q ListQuery) (*transport.ProductPage, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.list")

	offset, limit := util.Calculate(q.Page, q.Limit)
	page := offset/limit + 1

	version, cacheOK := s.listVersion(ctx)
	key := listKey(version, page, limit, q.Filter)
	if cacheOK {
		raw, err := s.Cache.Get(ctx, key)
		switch {
		case err == nil:
			var cached transport.ProductPage
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return &cached, nil
			}
		case !errors.Is(err, cache.ErrMiss):
			l.Warn("cache_read_failed", "key", key, "error", err)
			cacheOK = false
		}
	}

	total, items, err := s.Store.GetProducts(ctx, q.Filter, offset, limit)
	if err != nil {
		l.Error("list_products_failed", "status", 500, "error", err)
		return nil, storeErr(err)
	}

	resp := &transport.ProductPage{
		Data: items,
		Metadata: transport.ListMetadata{
			TotalProducts: total,
			TotalPages:    util.TotalPages(total, limit),
		},
		CurrentPage: page,
	}
	if cacheOK {
		s.cacheJSON(ctx, key, resp)
	}
	return resp, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.get", "product_id", id)

	raw, err := s.Cache.Get(ctx, detailKey(id))
	switch {
	case err == nil:
		var cached models.Product
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return &cached, nil
		}
	case !errors.Is(err, cache.ErrMiss):
		l.Warn("cache_read_failed", "error", err)
	}

	prod, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	s.cacheJSON(ctx, detailKey(id), prod)
	return prod, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) < minProductNameLen {
		return "", validationf("name must be at least %d characters", minProductNameLen)
	}
	return name, nil
}

func validateText(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", validationf("%s is required", field)
	}
	return v, nil
}

func validateCreate(req transport.CreateProductRequest) (*models.Product, error) {
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	desc, err := validateText("description", req.Description)
	if err != nil {
		return nil, err
	}
	category, err := validateText("category", req.Category)
	if err != nil {
		return nil, err
	}
	if req.Price == nil || *req.Price < 0 {
		return nil, validationf("price must be a number >= 0")
	}
	if req.Stock == nil || *req.Stock < 0 {
		return nil, validationf("stock must be an integer >= 0")
	}
	return &models.Product{
		Name:        name,
		Description: desc,
		Price:       *req.Price,
		Category:    category,
		Stock:       *req.Stock,
	}, nil
}

// patchFields returns the column updates for the supplied fields only.
func patchFields(req transport.PatchProductRequest) (map[string]any, error) {
	if req.Empty() {
		return nil, validationf("no fields to update")
	}
	fields := make(map[string]any, 5)
	if req.Name != nil {
		name, err := validateName(*req.Name)
		if err != nil {
			return nil, err
		}
		fields["name"] = name
	}
	if req.Description != nil {
		desc, err := validateText("description", *req.Description)
		if err != nil {
			return nil, err
		}
		fields["description"] = desc
	}
	if req.Category != nil {
		category, err := validateText("category", *req.Category)
		if err != nil {
			return nil, err
		}
		fields["category"] = category
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, validationf("price must be a number >= 0")
		}
		fields["price"] = *req.Price
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, validationf("stock must be an integer >= 0")
		}
		fields["stock"] = *req.Stock
	}
	return fields, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, req transport.CreateProductRequest) (*models.Product, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.create")

	prod, err := validateCreate(req)
	if err != nil {
		return nil, err
	}

	if err := s.Store.CreateProduct(ctx, prod); err != nil {
		err = storeErr(err)
		if !errors.Is(err, ErrConflict) {
			l.Error("create_product_failed", "status", 500, "error", err)
		}
		return nil, err
	}

	s.cacheJSON(ctx, detailKey(prod.ID), prod)
	s.afterMutation(ctx, events.ProductCreated, prod.ID, prod)
	return prod, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id uint, req transport.PatchProductRequest) (*models.Product, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.update", "product_id", id)

	fields, err := patchFields(req)
	if err != nil {
		return nil, err
	}

	prod, err := s.Store.PatchProduct(ctx, id, fields)
	if err != nil {
		err = storeErr(err)
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConflict) {
			l.Error("update_product_failed", "status", 500, "error", err)
		}
		return nil, err
	}

	s.cacheJSON(ctx, detailKey(id), prod)
	s.afterMutation(ctx, events.ProductUpdated, id, prod)
	return prod, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id uint) error {
	l := logging.FromContext(ctx).With("svc", "catalog.delete", "product_id", id)

	if err := s.Store.DeleteProduct(ctx, id); err != nil {
		err = storeErr(err)
		if !errors.Is(err, ErrNotFound) {
			l.Error("delete_product_failed", "status", 500, "error", err)
		}
		return err
	}

	if err := s.Cache.Delete(ctx, detailKey(id)); err != nil {
		l.Warn("cache_write_failed", "key", detailKey(id), "error", err)
	}
	s.afterMutation(ctx, events.ProductDeleted, id, nil)
	return nil
}

func (s *CatalogService) Stats(ctx context.Context) ([]models.CategoryStats, error) {
	stats, err := s.Store.ProductStats(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return stats, nil
}

func (s *CatalogService) SearchProducts(ctx context.Context, q string, page, limit int) (*transport.ProductPage, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, validationf("q is required")
	}
	offset, limit := util.Calculate(page, limit)
	page = offset/limit + 1

	total, items, err := s.Search.Search(ctx, q, offset, limit)
	if err != nil {
		logging.FromContext(ctx).Error("search_products_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return &transport.ProductPage{
		Data: items,
		Metadata: transport.ListMetadata{
			TotalProducts: total,
			TotalPages:    util.TotalPages(total, limit),
		},
		CurrentPage: page,
	}, nil
}

// afterMutation drops cached pages, syncs the search index and publishes.
// None of these steps fail the mutation.
func (s *CatalogService) afterMutation(ctx context.Context, eventType string, id uint, prod *models.Product) {
	l := logging.FromContext(ctx)

	s.invalidateLists(ctx)

	if s.Search != nil {
		var err error
		if prod != nil {
			err = s.Search.Index(ctx, *prod)
		} else {
			err = s.Search.Remove(ctx, id)
		}
		if err != nil {
			l.Warn("search_sync_failed", "product_id", id, "error", err)
		}
	}

	payload := map[string]any{"productId": id}
	if prod != nil {
		payload["name"] = prod.Name
		payload["category"] = prod.Category
		payload["price"] = prod.Price
		payload["stock"] = prod.Stock
	}
	publish(ctx, s.Events, events.TopicProducts, strconv.FormatUint(uint64(id), 10), events.New(eventType, payload))
}
