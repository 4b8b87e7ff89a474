package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/store"
)

func sampleSale(productID string, customerID string, qty int) domain.Sale {
	return domain.Sale{
		CustomerID:    customerID,
		PaymentMethod: domain.PaymentCash,
		TotalAmount:   89000 * int64(qty),
		Status:        domain.SaleStatusCompleted,
		SaleDate:      time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
		Items: []domain.SaleItem{{
			ProductID:  productID,
			Quantity:   qty,
			UnitPrice:  89000,
			TotalPrice: 89000 * int64(qty),
		}},
	}
}

func TestCreateSaleDecrementsStockAndTracksPurchases(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, sampleSale("prod-blusa-elegante", "cust-laura-gomez", 2))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.CustomerName != "Laura Gómez" || len(sale.Items) != 1 || sale.Items[0].SaleID != sale.ID {
		t.Fatalf("unexpected sale: %+v", sale)
	}

	p, _ := s.GetProduct(ctx, "prod-blusa-elegante")
	if p.StockQuantity != 10 {
		t.Fatalf("expected stock 10, got %d", p.StockQuantity)
	}
	c, _ := s.GetCustomer(ctx, "cust-laura-gomez")
	if c.TotalPurchases != 178000 || c.LastPurchaseDate == nil {
		t.Fatalf("expected purchase totals, got %+v", c)
	}
}

func TestCreateSaleRejectsOversellWithoutPartialWrites(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale := sampleSale("prod-blusa-elegante", "cust-laura-gomez", 1)
	sale.Items = append(sale.Items, domain.SaleItem{ProductID: "prod-collar-luna", Quantity: 4, UnitPrice: 35000, TotalPrice: 140000})

	if _, err := s.CreateSale(ctx, sale); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	p, _ := s.GetProduct(ctx, "prod-blusa-elegante")
	if p.StockQuantity != 12 {
		t.Fatalf("expected untouched stock 12, got %d", p.StockQuantity)
	}
	_, total, _ := s.ListSales(ctx, domain.SaleFilter{})
	if total != 0 {
		t.Fatalf("expected no sales persisted, got %d", total)
	}
}

func TestCreateSaleSumsDuplicateLinesAgainstStock(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale := sampleSale("prod-collar-luna", "cust-laura-gomez", 2)
	sale.Items = append(sale.Items, domain.SaleItem{ProductID: "prod-collar-luna", Quantity: 2, UnitPrice: 35000, TotalPrice: 70000})
	if _, err := s.CreateSale(ctx, sale); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock for 4 of 3, got %v", err)
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CreateSale(ctx, sampleSale("prod-collar-luna", "cust-camila-rios", 1)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	p, _ := s.GetProduct(ctx, "prod-collar-luna")
	if succeeded != 3 || p.StockQuantity != 0 {
		t.Fatalf("expected 3 sales and empty stock, got sold=%d stock=%d", succeeded, p.StockQuantity)
	}
}

func TestDeleteSaleRestoresStockAndPurchases(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, sampleSale("prod-blusa-elegante", "cust-laura-gomez", 3))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if err := s.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}

	p, _ := s.GetProduct(ctx, "prod-blusa-elegante")
	if p.StockQuantity != 12 {
		t.Fatalf("expected stock 12, got %d", p.StockQuantity)
	}
	c, _ := s.GetCustomer(ctx, "cust-laura-gomez")
	if c.TotalPurchases != 0 {
		t.Fatalf("expected purchases reset, got %d", c.TotalPurchases)
	}
	if err := s.DeleteSale(ctx, sale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEnsureAnonymousCustomerCreatesOnce(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	first, err := s.EnsureAnonymousCustomer(ctx)
	if err != nil {
		t.Fatalf("ensure anonymous: %v", err)
	}
	second, err := s.EnsureAnonymousCustomer(ctx)
	if err != nil {
		t.Fatalf("ensure anonymous again: %v", err)
	}
	if first.ID != second.ID || second.Name != domain.AnonymousCustomerName {
		t.Fatalf("expected stable anonymous customer, got %+v and %+v", first, second)
	}
}

func TestEnsureAnonymousCustomerReactivatesExisting(t *testing.T) {
	s := New()
	ctx := context.Background()

	existing, err := s.CreateCustomer(ctx, domain.Customer{Name: domain.AnonymousCustomerName, CustomerType: domain.CustomerTypeRegular})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	got, err := s.EnsureAnonymousCustomer(ctx)
	if err != nil {
		t.Fatalf("ensure anonymous: %v", err)
	}
	if got.ID != existing.ID || !got.Active || got.CustomerType != domain.CustomerTypeAnonymous {
		t.Fatalf("expected reactivated sentinel, got %+v", got)
	}
}

func TestListSalesPaginatesNewestFirst(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	for range 3 {
		if _, err := s.CreateSale(ctx, sampleSale("prod-top-basico", "cust-camila-rios", 1)); err != nil {
			t.Fatalf("create sale: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	page, total, err := s.ListSales(ctx, domain.SaleFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if total != 3 || len(page) != 1 {
		t.Fatalf("expected total 3 and one row on page two, got total=%d rows=%d", total, len(page))
	}
	if page[0].Items != nil {
		t.Fatalf("expected list rows without items")
	}
}

func TestListSalesWithItemsFillsSnapshots(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.CreateSale(ctx, sampleSale("prod-blusa-elegante", "cust-laura-gomez", 1)); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	sales, err := s.ListSalesWithItems(ctx, from, from.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("expected one sale, got %d", len(sales))
	}
	item := sales[0].Items[0]
	if item.Category != "blusas" || item.UnitCost != 45000 {
		t.Fatalf("expected category and cost filled, got %+v", item)
	}
}

func TestProductSKUConflictAndReferencedDelete(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.CreateProduct(ctx, domain.Product{SKU: "blu-001", Name: "Duplicada"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected sku conflict, got %v", err)
	}
	if _, err := s.CreateSale(ctx, sampleSale("prod-blusa-elegante", "cust-laura-gomez", 1)); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if err := s.DeleteProduct(ctx, "prod-blusa-elegante"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict deleting sold product, got %v", err)
	}
}

func TestListLowStockProducts(t *testing.T) {
	s := NewSeeded()

	low, err := s.ListLowStockProducts(context.Background(), domain.DefaultLowStockThreshold)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 2 || low[0].ID != "prod-collar-luna" || low[1].ID != "prod-falda-plisada" {
		t.Fatalf("unexpected low stock list: %+v", low)
	}
}

func TestUsersAreNormalized(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateUser(ctx, domain.UserAccount{Username: " Admin ", Password: "hash", Role: domain.RoleAdmin, Active: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, domain.UserAccount{Username: "admin", Password: "hash"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := s.UpdateUserPassword(ctx, "ADMIN", "new-hash"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	users, _ := s.ListUsers(ctx)
	if len(users) != 1 || users[0].Password != "new-hash" {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestUpdateProductWritesStockOnlyWhenAsked(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	stale, err := s.GetProduct(ctx, "prod-collar-luna")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if _, err := s.CreateSale(ctx, sampleSale("prod-collar-luna", "cust-laura-gomez", 3)); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	stale.Name = "Collar Luna Dorado"
	renamed, err := s.UpdateProduct(ctx, *stale, false)
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if renamed.Name != "Collar Luna Dorado" || renamed.StockQuantity != 0 {
		t.Fatalf("expected rename with stock 0, got %q stock %d", renamed.Name, renamed.StockQuantity)
	}

	renamed.StockQuantity = 4
	restocked, err := s.UpdateProduct(ctx, *renamed, true)
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if restocked.StockQuantity != 4 {
		t.Fatalf("expected stock 4, got %d", restocked.StockQuantity)
	}

	restocked.StockQuantity = -1
	if _, err := s.UpdateProduct(ctx, *restocked, true); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid negative stock, got %v", err)
	}
}

func TestListSalesWithItemsKeepsCapturedZeroCost(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	gift := sampleSale("prod-blusa-elegante", "cust-laura-gomez", 1)
	gift.Items[0].CostCaptured = true
	if _, err := s.CreateSale(ctx, gift); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	sales, err := s.ListSalesWithItems(ctx, from, from.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 || sales[0].Items[0].UnitCost != 0 {
		t.Fatalf("expected captured zero cost to survive, got %+v", sales)
	}
}
