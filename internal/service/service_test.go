package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/format"
	"magiainterna/backend/internal/receipts"
	"magiainterna/backend/internal/sale"
	"magiainterna/backend/internal/store"
	"magiainterna/backend/internal/store/memory"
)

type memoryCache struct {
	values        map[string][]byte
	invalidations int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string, dst any) (bool, error) {
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context) error {
	c.invalidations++
	c.values = map[string][]byte{}
	return nil
}

type memoryReceipts struct {
	objects map[string][]byte
	types   map[string]string
}

func (r *memoryReceipts) Put(_ context.Context, body io.Reader, _ int64, contentType string) (string, error) {
	key, err := receipts.ObjectKey(time.Now(), contentType)
	if err != nil {
		return "", err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	r.objects[key] = raw
	r.types[key] = contentType
	return key, nil
}

func (r *memoryReceipts) Get(_ context.Context, key string) (*receipts.Object, error) {
	raw, ok := r.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &receipts.Object{Body: io.NopCloser(bytes.NewReader(raw)), ContentType: r.types[key], Size: int64(len(raw))}, nil
}

var fixedNow = time.Date(2026, time.October, 14, 10, 30, 0, 0, format.Location())

func newTestService(opts Options) (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return New(repo, opts), repo
}

func adminContext() context.Context {
	return WithSession(context.Background(), domain.Session{ID: "sess-admin", Username: "admin", Role: domain.RoleAdmin})
}

func staffContext() context.Context {
	return WithSession(context.Background(), domain.Session{ID: "sess-staff", Username: "ana", Role: domain.RoleStaff})
}

func sampleSale(customerID string) domain.SaleCreateRequest {
	return domain.SaleCreateRequest{
		CustomerID:     customerID,
		PaymentMethod:  "efectivo",
		TaxAmount:      15200,
		DiscountAmount: 5000,
		DeliveryFee:    12000,
		Items: []domain.SaleItemInput{
			{ProductID: "prod-top-basico", Quantity: 1},
			{ProductID: "prod-collar-luna", Quantity: 1},
		},
	}
}

func TestCreateSaleComputesTotalAndDecrementsStock(t *testing.T) {
	svc, repo := newTestService(Options{})
	ctx := staffContext()

	created, err := svc.CreateSale(ctx, sampleSale("cust-laura-gomez"))
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if created.TotalAmount != 102200 {
		t.Fatalf("expected total 102200, got %d", created.TotalAmount)
	}
	if created.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected completed status, got %s", created.Status)
	}
	if len(created.Items) != 2 || created.Items[0].UnitPrice != 45000 {
		t.Fatalf("expected catalog prices on items, got %+v", created.Items)
	}

	collar, err := repo.GetProduct(context.Background(), "prod-collar-luna")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if collar.StockQuantity != 2 {
		t.Fatalf("expected collar stock 2, got %d", collar.StockQuantity)
	}

	customer, err := repo.GetCustomer(context.Background(), "cust-laura-gomez")
	if err != nil {
		t.Fatalf("get customer failed: %v", err)
	}
	if customer.TotalPurchases != 102200 {
		t.Fatalf("expected purchases 102200, got %d", customer.TotalPurchases)
	}

	logs, err := svc.ListAuditLogs(adminContext(), "", 10)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "sale_create" || logs[0].ActorUsername != "ana" {
		t.Fatalf("expected one sale_create entry by ana, got %+v", logs)
	}
}

func TestCreateSaleRejectsOversell(t *testing.T) {
	svc, repo := newTestService(Options{})

	_, err := svc.CreateSale(staffContext(), domain.SaleCreateRequest{
		PaymentMethod: "tarjeta",
		Items: []domain.SaleItemInput{
			{ProductID: "prod-top-basico", Quantity: 2},
			{ProductID: "prod-collar-luna", Quantity: 4},
		},
	})
	var stockErr *sale.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	top, _ := repo.GetProduct(context.Background(), "prod-top-basico")
	if top.StockQuantity != 30 {
		t.Fatalf("expected untouched stock 30, got %d", top.StockQuantity)
	}
}

func TestCreateSaleWithoutCustomerUsesAnonymous(t *testing.T) {
	svc, _ := newTestService(Options{})
	ctx := staffContext()

	first, err := svc.CreateSale(ctx, sampleSale(""))
	if err != nil {
		t.Fatalf("first sale failed: %v", err)
	}
	second, err := svc.CreateSale(ctx, sampleSale("anonymous"))
	if err != nil {
		t.Fatalf("second sale failed: %v", err)
	}
	if first.CustomerID == "" || first.CustomerID != second.CustomerID {
		t.Fatalf("expected one anonymous customer, got %q and %q", first.CustomerID, second.CustomerID)
	}

	anonymous, err := svc.GetCustomer(ctx, first.CustomerID)
	if err != nil {
		t.Fatalf("get anonymous failed: %v", err)
	}
	if anonymous.CustomerType != domain.CustomerTypeAnonymous {
		t.Fatalf("expected anonymous type, got %s", anonymous.CustomerType)
	}
	name := "Otro nombre"
	if _, err := svc.UpdateCustomer(ctx, anonymous.ID, domain.CustomerUpdateRequest{Name: &name}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict editing anonymous customer, got %v", err)
	}
}

func TestCreateSaleValidation(t *testing.T) {
	svc, _ := newTestService(Options{})
	ctx := staffContext()

	cases := map[string]domain.SaleCreateRequest{
		"payment method": {PaymentMethod: "bitcoin", Items: []domain.SaleItemInput{{ProductID: "prod-top-basico", Quantity: 1}}},
		"status":         {PaymentMethod: "efectivo", Status: "refunded", Items: []domain.SaleItemInput{{ProductID: "prod-top-basico", Quantity: 1}}},
		"negative tax":   {PaymentMethod: "efectivo", TaxAmount: -1, Items: []domain.SaleItemInput{{ProductID: "prod-top-basico", Quantity: 1}}},
		"customer":       {PaymentMethod: "efectivo", CustomerID: "cust-missing", Items: []domain.SaleItemInput{{ProductID: "prod-top-basico", Quantity: 1}}},
		"date":           {PaymentMethod: "efectivo", SaleDate: "14/10/2026", Items: []domain.SaleItemInput{{ProductID: "prod-top-basico", Quantity: 1}}},
		"discount":       {PaymentMethod: "efectivo", DiscountAmount: 50000, Items: []domain.SaleItemInput{{ProductID: "prod-top-basico", Quantity: 1}}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.CreateSale(ctx, req); !errors.Is(err, store.ErrInvalid) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{PaymentMethod: "efectivo"}); !errors.Is(err, sale.ErrEmptyCart) {
		t.Fatalf("expected empty cart error, got %v", err)
	}
}

func TestUpdateSaleRecomputesTotal(t *testing.T) {
	svc, repo := newTestService(Options{})
	ctx := staffContext()

	created, err := svc.CreateSale(ctx, sampleSale("cust-camila-rios"))
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	delivery := int64(0)
	status := domain.SaleStatusCancelled
	updated, err := svc.UpdateSale(ctx, created.ID, domain.SaleUpdateRequest{DeliveryFee: &delivery, Status: &status})
	if err != nil {
		t.Fatalf("update sale failed: %v", err)
	}
	if updated.TotalAmount != 90200 {
		t.Fatalf("expected total 90200, got %d", updated.TotalAmount)
	}

	customer, _ := repo.GetCustomer(context.Background(), "cust-camila-rios")
	if customer.TotalPurchases != 0 {
		t.Fatalf("expected cancelled sale to drop purchases, got %d", customer.TotalPurchases)
	}
}

func TestDeleteSaleRestoresStock(t *testing.T) {
	svc, repo := newTestService(Options{})
	ctx := staffContext()

	created, err := svc.CreateSale(ctx, sampleSale("cust-laura-gomez"))
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if err := svc.DeleteSale(ctx, created.ID); err != nil {
		t.Fatalf("delete sale failed: %v", err)
	}
	collar, _ := repo.GetProduct(context.Background(), "prod-collar-luna")
	if collar.StockQuantity != 3 {
		t.Fatalf("expected restored stock 3, got %d", collar.StockQuantity)
	}
	if _, err := svc.GetSale(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestQuoteReportsStockIssuesWithoutFailing(t *testing.T) {
	svc, _ := newTestService(Options{})

	quote, err := svc.QuoteSale(context.Background(), domain.SaleCreateRequest{
		DeliveryFee: 8000,
		Items:       []domain.SaleItemInput{{ProductID: "prod-falda-plisada", Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if quote.Subtotal != 395000 || quote.TotalAmount != 403000 {
		t.Fatalf("unexpected quote totals %+v", quote)
	}
	if len(quote.StockIssues) != 1 || quote.StockIssues[0].Available != 4 {
		t.Fatalf("expected one stock issue, got %+v", quote.StockIssues)
	}
}

func TestDashboardUsesCacheUntilWrite(t *testing.T) {
	analyticsCache := newMemoryCache()
	svc, _ := newTestService(Options{Cache: analyticsCache})
	ctx := staffContext()

	if _, err := svc.CreateSale(ctx, sampleSale("cust-laura-gomez")); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	first, err := svc.Dashboard(ctx, 0)
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if first.Year != 2026 || first.Summary.TotalSales != 102200 || first.Summary.NetRevenue != 90200 {
		t.Fatalf("unexpected summary %+v", first.Summary)
	}
	if first.Summary.TotalCustomers != 3 {
		t.Fatalf("expected anonymous customer excluded, got %d", first.Summary.TotalCustomers)
	}
	if _, ok := analyticsCache.values["dashboard:2026"]; !ok {
		t.Fatalf("expected dashboard cached")
	}

	before := analyticsCache.invalidations
	if _, err := svc.CreateSale(ctx, sampleSale("")); err != nil {
		t.Fatalf("second sale failed: %v", err)
	}
	if analyticsCache.invalidations != before+1 {
		t.Fatalf("expected cache invalidated after sale")
	}

	second, err := svc.Dashboard(ctx, 2026)
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if second.Summary.TotalSales != 204400 {
		t.Fatalf("expected fresh totals after invalidation, got %d", second.Summary.TotalSales)
	}
}

func TestProfitReportByMonthExcludesDelivery(t *testing.T) {
	svc, _ := newTestService(Options{})
	ctx := staffContext()

	if _, err := svc.CreateSale(ctx, sampleSale("cust-laura-gomez")); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	report, err := svc.ProfitReport(ctx, ProfitQuery{Period: PeriodMonth, Year: 2026, Month: 10})
	if err != nil {
		t.Fatalf("profit report failed: %v", err)
	}
	if len(report.Buckets) != 31 || report.From != "2026-10-01" || report.To != "2026-10-31" {
		t.Fatalf("unexpected range %s..%s with %d buckets", report.From, report.To, len(report.Buckets))
	}
	day := report.Buckets[13]
	if day.Key != "2026-10-14" || day.Sales != 1 {
		t.Fatalf("expected sale on 2026-10-14, got %+v", day)
	}
	if report.Totals.Revenue != 90200 || report.Totals.Cost != 32000 || report.Totals.Profit != 38000 {
		t.Fatalf("unexpected totals %+v", report.Totals)
	}
	if report.Margin != 42 {
		t.Fatalf("expected margin 42, got %d", report.Margin)
	}

	if _, err := svc.ProfitReport(ctx, ProfitQuery{Period: "quarter"}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid period, got %v", err)
	}
	if _, err := svc.ProfitReport(ctx, ProfitQuery{Period: PeriodDay, From: "2026-10-20", To: "2026-10-01"}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid range, got %v", err)
	}
}

func TestBirthdaysUpcoming(t *testing.T) {
	svc, _ := newTestService(Options{})

	overview, err := svc.Birthdays(context.Background())
	if err != nil {
		t.Fatalf("birthdays failed: %v", err)
	}
	if overview.Today != "2026-10-14" {
		t.Fatalf("expected today 2026-10-14, got %s", overview.Today)
	}
	if overview.CurrentMonth.Month != 10 || len(overview.CurrentMonth.Customers) != 0 {
		t.Fatalf("expected empty october, got %+v", overview.CurrentMonth)
	}
	if len(overview.Upcoming) != 1 || overview.Upcoming[0].ID != "cust-camila-rios" {
		t.Fatalf("expected camila upcoming, got %+v", overview.Upcoming)
	}
	if overview.Upcoming[0].DaysUntil != 19 || overview.Upcoming[0].Age != 37 {
		t.Fatalf("unexpected upcoming entry %+v", overview.Upcoming[0])
	}
	if len(overview.ByMonth) != 3 || overview.ByMonth[0].Month != 3 {
		t.Fatalf("expected march, july and november, got %+v", overview.ByMonth)
	}
}

func TestPromotionRecipients(t *testing.T) {
	svc, _ := newTestService(Options{})
	ctx := staffContext()

	if _, err := svc.CreateSale(ctx, sampleSale("cust-laura-gomez")); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if _, err := svc.CreateSale(ctx, sampleSale("")); err != nil {
		t.Fatalf("anonymous sale failed: %v", err)
	}

	top, err := svc.PromotionRecipients(ctx, domain.PromotionRecipientsRequest{Filter: "top"})
	if err != nil {
		t.Fatalf("top recipients failed: %v", err)
	}
	if top.Count != 1 || top.Emails[0] != "laura.gomez@example.com" {
		t.Fatalf("expected laura as top customer, got %+v", top)
	}

	recent, err := svc.PromotionRecipients(ctx, domain.PromotionRecipientsRequest{Filter: "recent"})
	if err != nil {
		t.Fatalf("recent recipients failed: %v", err)
	}
	if len(recent.Audience) != 1 {
		t.Fatalf("expected one recent customer, got %+v", recent.Audience)
	}

	merged, err := svc.PromotionRecipients(ctx, domain.PromotionRecipientsRequest{
		CustomerIDs:  []string{"cust-camila-rios"},
		ManualEmails: "Nueva@Cliente.co; camila.rios@example.com\nsin-arroba, otra@correo.com",
	})
	if err != nil {
		t.Fatalf("merged recipients failed: %v", err)
	}
	want := []string{"camila.rios@example.com", "nueva@cliente.co", "otra@correo.com"}
	if strings.Join(merged.Emails, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, merged.Emails)
	}
	if len(merged.Audience) != 3 {
		t.Fatalf("expected full audience of 3, got %d", len(merged.Audience))
	}

	if _, err := svc.PromotionRecipients(ctx, domain.PromotionRecipientsRequest{Filter: "birthday"}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid filter, got %v", err)
	}
}

func TestPreviewPromotionEscapesHTML(t *testing.T) {
	svc, _ := newTestService(Options{})
	ctx := context.Background()

	preview, err := svc.PreviewPromotion(ctx, domain.PromotionPreviewRequest{
		Subject:   "Oferta <b>hoy</b>",
		Body:      "Hola\n\n<script>alert(1)</script>",
		PromoLink: "https://wa.link/i5fg5k",
	})
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if strings.Contains(preview.HTML, "<script>") || !strings.Contains(preview.HTML, "&lt;script&gt;") {
		t.Fatalf("expected escaped body, got %s", preview.HTML)
	}
	if !strings.Contains(preview.HTML, `href="https://wa.link/i5fg5k"`) {
		t.Fatalf("expected promo link button")
	}
	if preview.Text != "Hola\n\n<script>alert(1)</script>\n\nVisita: https://wa.link/i5fg5k" {
		t.Fatalf("unexpected text body %q", preview.Text)
	}

	fromTemplate, err := svc.PreviewPromotion(ctx, domain.PromotionPreviewRequest{TemplateID: "black-friday"})
	if err != nil {
		t.Fatalf("template preview failed: %v", err)
	}
	if fromTemplate.Subject != "¡Black Friday en Magia Interna! 🖤" {
		t.Fatalf("unexpected subject %q", fromTemplate.Subject)
	}

	if _, err := svc.PreviewPromotion(ctx, domain.PromotionPreviewRequest{TemplateID: "birthday", PromoLink: "javascript:alert(1)"}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid link, got %v", err)
	}
	if len(svc.EmailTemplates()) != 4 {
		t.Fatalf("expected four templates")
	}
}

func TestSettingsRequireAdmin(t *testing.T) {
	svc, _ := newTestService(Options{})
	threshold := 2
	req := domain.SettingsUpdateRequest{LowStockThreshold: &threshold}

	if _, err := svc.UpdateSettings(staffContext(), req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for staff, got %v", err)
	}
	if _, err := svc.ListAuditLogs(staffContext(), "", 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden audit for staff, got %v", err)
	}

	updated, err := svc.UpdateSettings(adminContext(), req)
	if err != nil {
		t.Fatalf("update settings failed: %v", err)
	}
	if updated.LowStockThreshold != 2 {
		t.Fatalf("expected threshold 2, got %d", updated.LowStockThreshold)
	}

	low, err := svc.LowStockProducts(context.Background())
	if err != nil {
		t.Fatalf("low stock failed: %v", err)
	}
	if len(low) != 1 || low[0].ID != "prod-falda-plisada" {
		t.Fatalf("expected only the skirt below its own minimum, got %+v", low)
	}

	badZone := "Mars/Olympus"
	if _, err := svc.UpdateSettings(adminContext(), domain.SettingsUpdateRequest{Timezone: &badZone}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid timezone, got %v", err)
	}
}

func TestExpenseReceipt(t *testing.T) {
	storage := &memoryReceipts{objects: map[string][]byte{}, types: map[string]string{}}
	svc, _ := newTestService(Options{Receipts: storage})
	ctx := adminContext()

	expense, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{
		Description: "Arriendo local",
		Amount:      1200000,
		Category:    "arriendo",
	})
	if err != nil {
		t.Fatalf("create expense failed: %v", err)
	}
	if expense.PaymentMethod != domain.PaymentCash {
		t.Fatalf("expected cash default, got %s", expense.PaymentMethod)
	}
	if _, err := svc.Receipt(ctx, expense.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no receipt yet, got %v", err)
	}

	content := []byte("%PDF-1.4 recibo")
	attached, err := svc.AttachReceipt(ctx, expense.ID, bytes.NewReader(content), int64(len(content)), "application/pdf")
	if err != nil {
		t.Fatalf("attach receipt failed: %v", err)
	}
	if !strings.HasPrefix(attached.ReceiptURL, "receipts/") {
		t.Fatalf("expected object key, got %s", attached.ReceiptURL)
	}

	object, err := svc.Receipt(ctx, expense.ID)
	if err != nil {
		t.Fatalf("receipt failed: %v", err)
	}
	defer object.Body.Close()
	got, _ := io.ReadAll(object.Body)
	if !bytes.Equal(got, content) || object.ContentType != "application/pdf" {
		t.Fatalf("unexpected receipt object")
	}

	if _, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{Description: "Nada", Amount: 0, Category: "otros"}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestProductLifecycle(t *testing.T) {
	svc, _ := newTestService(Options{})
	ctx := adminContext()

	created, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		SKU:           "bol-001",
		Name:          "Bolso Tejido",
		Category:      "Accesorios",
		Price:         99000,
		Cost:          40000,
		StockQuantity: 5,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if created.SKU != "BOL-001" || created.Category != "accesorios" {
		t.Fatalf("expected normalized sku and category, got %s %s", created.SKU, created.Category)
	}
	if _, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{SKU: "BOL-001", Name: "Otro", Category: "accesorios", Price: 1}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected sku conflict, got %v", err)
	}

	price := int64(105000)
	updated, err := svc.UpdateProduct(ctx, created.ID, domain.ProductUpdateRequest{Price: &price})
	if err != nil {
		t.Fatalf("update product failed: %v", err)
	}
	if updated.Price != 105000 || updated.Name != "Bolso Tejido" {
		t.Fatalf("expected partial update, got %+v", updated)
	}

	if _, err := svc.CreateSale(ctx, domain.SaleCreateRequest{PaymentMethod: "efectivo", Items: []domain.SaleItemInput{{ProductID: created.ID, Quantity: 1}}}); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if err := svc.DeleteProduct(ctx, created.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict deleting sold product, got %v", err)
	}
}

func TestCreateSaleRejectsOverflowingAmounts(t *testing.T) {
	svc, repo := newTestService(Options{})

	_, err := svc.CreateSale(staffContext(), domain.SaleCreateRequest{
		PaymentMethod: "efectivo",
		Items:         []domain.SaleItemInput{{ProductID: "prod-top-basico", Quantity: 5, UnitPrice: 3689348814741910324}},
	})
	if !errors.Is(err, store.ErrInvalid) || !errors.Is(err, sale.ErrAmountTooLarge) {
		t.Fatalf("expected invalid amount error, got %v", err)
	}
	if _, err := svc.QuoteSale(staffContext(), domain.SaleCreateRequest{
		Items: []domain.SaleItemInput{{ProductID: "prod-top-basico", Quantity: 5, UnitPrice: 3689348814741910324}},
	}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid quote, got %v", err)
	}

	top, _ := repo.GetProduct(context.Background(), "prod-top-basico")
	if top.StockQuantity != 30 {
		t.Fatalf("expected untouched stock 30, got %d", top.StockQuantity)
	}
	sales, _, err := repo.ListSales(context.Background(), domain.SaleFilter{Limit: 10})
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no persisted sale, got %d", len(sales))
	}
}

func TestUpdateSaleRejectsOverflowingAdjustments(t *testing.T) {
	svc, _ := newTestService(Options{})
	ctx := staffContext()

	created, err := svc.CreateSale(ctx, sampleSale("cust-laura-gomez"))
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	huge := sale.MaxAmount
	if _, err := svc.UpdateSale(ctx, created.ID, domain.SaleUpdateRequest{TaxAmount: &huge}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid total, got %v", err)
	}
}

// saleAfterReadRepo commits a sale right after the first GetProduct returns,
// between the read and the write of an update.
type saleAfterReadRepo struct {
	*memory.Store
	once    sync.Once
	between func()
}

func (r *saleAfterReadRepo) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := r.Store.GetProduct(ctx, id)
	r.once.Do(r.between)
	return product, err
}

func TestUpdateProductKeepsConcurrentStockDecrement(t *testing.T) {
	base := memory.NewSeeded()
	seller := New(base, Options{Now: func() time.Time { return fixedNow }})
	repo := &saleAfterReadRepo{Store: base}
	repo.between = func() {
		if _, err := seller.CreateSale(staffContext(), domain.SaleCreateRequest{
			PaymentMethod: "efectivo",
			Items:         []domain.SaleItemInput{{ProductID: "prod-collar-luna", Quantity: 3}},
		}); err != nil {
			t.Errorf("concurrent sale failed: %v", err)
		}
	}
	svc := New(repo, Options{Now: func() time.Time { return fixedNow }})

	name := "Collar Luna Dorado"
	updated, err := svc.UpdateProduct(adminContext(), "prod-collar-luna", domain.ProductUpdateRequest{Name: &name})
	if err != nil {
		t.Fatalf("update product failed: %v", err)
	}
	if updated.Name != name || updated.StockQuantity != 0 {
		t.Fatalf("expected renamed product with stock 0, got %q stock %d", updated.Name, updated.StockQuantity)
	}
	stored, _ := base.GetProduct(context.Background(), "prod-collar-luna")
	if stored.StockQuantity != 0 {
		t.Fatalf("expected sold units to stay deducted, got stock %d", stored.StockQuantity)
	}

	stock := 7
	restocked, err := svc.UpdateProduct(adminContext(), "prod-collar-luna", domain.ProductUpdateRequest{StockQuantity: &stock})
	if err != nil {
		t.Fatalf("restock failed: %v", err)
	}
	if restocked.StockQuantity != 7 {
		t.Fatalf("expected explicit stock 7, got %d", restocked.StockQuantity)
	}
}
