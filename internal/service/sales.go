package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/format"
	"magiainterna/backend/internal/sale"
	"magiainterna/backend/internal/store"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

var salePaymentMethods = map[string]bool{
	domain.PaymentCash:     true,
	domain.PaymentCard:     true,
	domain.PaymentTransfer: true,
}

var saleStatuses = map[string]bool{
	domain.SaleStatusCompleted: true,
	domain.SaleStatusPending:   true,
	domain.SaleStatusCancelled: true,
}

// QuoteSale prices a cart without persisting it. Stock problems are reported
// in the quote instead of failing.
func (s *Service) QuoteSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleQuote, error) {
	if err := validateAdjustments(req.TaxAmount, req.DiscountAmount, req.DeliveryFee); err != nil {
		return domain.SaleQuote{}, err
	}
	products, err := s.productSnapshot(ctx, req.Items)
	if err != nil {
		return domain.SaleQuote{}, err
	}
	draft := sale.FromInput(req.Items, req.TaxAmount, req.DiscountAmount, req.DeliveryFee, products)
	if err := draft.CheckAmounts(); err != nil {
		return domain.SaleQuote{}, fmt.Errorf("%w: %w", store.ErrInvalid, err)
	}
	return draft.Quote(products), nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if !salePaymentMethods[method] {
		return domain.Sale{}, invalidf("payment method must be efectivo, tarjeta or transferencia")
	}
	status, err := normalizeStatus(req.Status)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := validateAdjustments(req.TaxAmount, req.DiscountAmount, req.DeliveryFee); err != nil {
		return domain.Sale{}, err
	}
	saleDate, err := s.parseSaleDate(req.SaleDate)
	if err != nil {
		return domain.Sale{}, err
	}
	customer, err := s.resolveCustomer(ctx, req.CustomerID)
	if err != nil {
		return domain.Sale{}, err
	}

	products, err := s.productSnapshot(ctx, req.Items)
	if err != nil {
		return domain.Sale{}, err
	}
	draft := sale.FromInput(req.Items, req.TaxAmount, req.DiscountAmount, req.DeliveryFee, products)
	quote, err := draft.Compose(products)
	if errors.Is(err, sale.ErrAmountTooLarge) {
		return domain.Sale{}, fmt.Errorf("%w: %w", store.ErrInvalid, err)
	}
	if err != nil {
		return domain.Sale{}, err
	}
	if quote.TotalAmount < 0 {
		return domain.Sale{}, invalidf("discount exceeds the sale total")
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		CustomerID:     customer.ID,
		PaymentMethod:  method,
		DiscountAmount: quote.DiscountAmount,
		TaxAmount:      quote.TaxAmount,
		DeliveryFee:    quote.DeliveryFee,
		TotalAmount:    quote.TotalAmount,
		Status:         status,
		Notes:          strings.TrimSpace(req.Notes),
		SaleDate:       saleDate,
		Items:          quote.Items,
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			s.logger.Info("sale rejected by stock guard", zap.String("customer_id", customer.ID))
		}
		return domain.Sale{}, err
	}

	s.invalidate(ctx)
	s.logAudit(ctx, "sale_create", "sale", created.ID, fmt.Sprintf("customer=%s,total=%d,items=%d,method=%s", created.CustomerID, created.TotalAmount, len(created.Items), created.PaymentMethod))
	return *created, nil
}

func (s *Service) UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (domain.Sale, error) {
	existing, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}

	updated := *existing
	if req.CustomerID != nil {
		customer, err := s.resolveCustomer(ctx, *req.CustomerID)
		if err != nil {
			return domain.Sale{}, err
		}
		updated.CustomerID = customer.ID
	}
	if req.PaymentMethod != nil {
		method := strings.ToLower(strings.TrimSpace(*req.PaymentMethod))
		if !salePaymentMethods[method] {
			return domain.Sale{}, invalidf("payment method must be efectivo, tarjeta or transferencia")
		}
		updated.PaymentMethod = method
	}
	if req.Status != nil {
		status, err := normalizeStatus(*req.Status)
		if err != nil {
			return domain.Sale{}, err
		}
		updated.Status = status
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.SaleDate != nil {
		saleDate, err := s.parseSaleDate(*req.SaleDate)
		if err != nil {
			return domain.Sale{}, err
		}
		updated.SaleDate = saleDate
	}
	if req.TaxAmount != nil {
		updated.TaxAmount = *req.TaxAmount
	}
	if req.DiscountAmount != nil {
		updated.DiscountAmount = *req.DiscountAmount
	}
	if req.DeliveryFee != nil {
		updated.DeliveryFee = *req.DeliveryFee
	}
	if err := validateAdjustments(updated.TaxAmount, updated.DiscountAmount, updated.DeliveryFee); err != nil {
		return domain.Sale{}, err
	}

	subtotal := int64(0)
	for _, item := range existing.Items {
		subtotal += item.TotalPrice
	}
	if subtotal+updated.TaxAmount+updated.DeliveryFee > sale.MaxAmount {
		return domain.Sale{}, invalidf("sale total must be at most %d", sale.MaxAmount)
	}
	updated.TotalAmount = subtotal + updated.TaxAmount + updated.DeliveryFee - updated.DiscountAmount
	if updated.TotalAmount < 0 {
		return domain.Sale{}, invalidf("discount exceeds the sale total")
	}

	saved, err := s.repo.UpdateSale(ctx, updated)
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidate(ctx)
	s.logAudit(ctx, "sale_update", "sale", saved.ID, fmt.Sprintf("status=%s,total=%d", saved.Status, saved.TotalAmount))
	return *saved, nil
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteSale(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logAudit(ctx, "sale_delete", "sale", id, "stock restored")
	return nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	found, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *found, nil
}

// ListSales pages through sales newest first. page starts at 1.
func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter, page int, pageSize int) (domain.SaleListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	sales, total, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	return domain.SaleListResponse{Sales: sales, Total: total, Page: page, PageSize: pageSize}, nil
}

// resolveCustomer maps an empty id or "anonymous" to the walk-in sentinel.
func (s *Service) resolveCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.EqualFold(id, domain.CustomerTypeAnonymous) {
		return s.repo.EnsureAnonymousCustomer(ctx)
	}
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalidf("customer %s does not exist", id)
		}
		return nil, err
	}
	return customer, nil
}

func (s *Service) productSnapshot(ctx context.Context, items []domain.SaleItemInput) (map[string]domain.Product, error) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return s.repo.GetProductsByIDs(ctx, ids)
}

// parseSaleDate keeps the current time of day when the date is today.
func (s *Service) parseSaleDate(raw string) (time.Time, error) {
	now := s.now().UTC()
	if strings.TrimSpace(raw) == "" {
		return now, nil
	}
	day, err := format.ParseDate(raw)
	if err != nil {
		return time.Time{}, invalidf("sale date: %v", err)
	}
	if format.FormatDate(day) == format.FormatDate(now) {
		return now, nil
	}
	return day.UTC(), nil
}

func normalizeStatus(raw string) (string, error) {
	status := strings.ToLower(strings.TrimSpace(raw))
	if status == "" {
		return domain.SaleStatusCompleted, nil
	}
	if !saleStatuses[status] {
		return "", invalidf("unsupported sale status %s", status)
	}
	return status, nil
}

func validateAdjustments(tax int64, discount int64, delivery int64) error {
	if tax < 0 || discount < 0 || delivery < 0 {
		return invalidf("tax, discount and delivery fee must not be negative")
	}
	if tax > sale.MaxAmount || discount > sale.MaxAmount || delivery > sale.MaxAmount {
		return invalidf("tax, discount and delivery fee must be at most %d", sale.MaxAmount)
	}
	return nil
}
