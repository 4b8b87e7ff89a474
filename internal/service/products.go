package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/sale"
)

const maxNameLength = 60

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) LowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx, s.threshold(ctx))
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	product := domain.Product{
		SKU:           req.SKU,
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Size:          req.Size,
		Color:         req.Color,
		Price:         req.Price,
		Cost:          req.Cost,
		StockQuantity: req.StockQuantity,
		MinStock:      req.MinStock,
		ImageURL:      req.ImageURL,
		Active:        true,
	}
	if err := normalizeProduct(&product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidate(ctx)
	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("sku=%s,price=%d,stock=%d", created.SKU, created.Price, created.StockQuantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.SKU != nil {
		updated.SKU = *req.SKU
	}
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.Category != nil {
		updated.Category = *req.Category
	}
	if req.Size != nil {
		updated.Size = *req.Size
	}
	if req.Color != nil {
		updated.Color = *req.Color
	}
	if req.Price != nil {
		updated.Price = *req.Price
	}
	if req.Cost != nil {
		updated.Cost = *req.Cost
	}
	if req.StockQuantity != nil {
		updated.StockQuantity = *req.StockQuantity
	}
	if req.MinStock != nil {
		updated.MinStock = *req.MinStock
	}
	if req.ImageURL != nil {
		updated.ImageURL = *req.ImageURL
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if err := normalizeProduct(&updated); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated, req.StockQuantity != nil)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidate(ctx)
	if existing.Price != saved.Price {
		s.logAudit(ctx, "product_price_change", "product", saved.ID, fmt.Sprintf("old=%d,new=%d", existing.Price, saved.Price))
	}
	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("sku=%s,stock=%d,active=%t", saved.SKU, saved.StockQuantity, saved.Active))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func normalizeProduct(p *domain.Product) error {
	p.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.ToLower(strings.TrimSpace(p.Category))
	p.Description = strings.TrimSpace(p.Description)
	p.Size = strings.TrimSpace(p.Size)
	p.Color = strings.TrimSpace(p.Color)
	p.ImageURL = strings.TrimSpace(p.ImageURL)

	switch {
	case p.SKU == "":
		return invalidf("sku is required")
	case p.Name == "":
		return invalidf("name is required")
	case utf8.RuneCountInString(p.Name) > maxNameLength:
		return invalidf("name must be at most %d characters", maxNameLength)
	case p.Category == "":
		return invalidf("category is required")
	case p.Price < 0:
		return invalidf("price must not be negative")
	case p.Cost < 0:
		return invalidf("cost must not be negative")
	case p.Price > sale.MaxAmount || p.Cost > sale.MaxAmount:
		return invalidf("price and cost must be at most %d", sale.MaxAmount)
	case p.StockQuantity < 0:
		return invalidf("stock quantity must not be negative")
	case p.MinStock < 0:
		return invalidf("minimum stock must not be negative")
	}
	return nil
}
