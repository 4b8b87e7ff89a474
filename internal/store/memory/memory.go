package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/store"
	"magiainterna/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	customers       map[string]domain.Customer
	sales           map[string]domain.Sale
	expenses        map[string]domain.Expense
	settings        domain.Settings
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// New returns an empty store.
func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		customers:       make(map[string]domain.Customer),
		sales:           make(map[string]domain.Sale),
		expenses:        make(map[string]domain.Expense),
		settings:        domain.DefaultSettings(),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store holding a small demo catalogue and customer base.
// It holds no user accounts: the admin is bootstrapped from configuration.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prod-blusa-elegante", SKU: "BLU-001", Name: "Blusa Elegante", Category: "blusas", Size: "M", Color: "blanco", Price: 89000, Cost: 45000, StockQuantity: 12, MinStock: 3},
		{ID: "prod-vestido-casual", SKU: "VES-001", Name: "Vestido Casual", Category: "vestidos", Size: "S", Color: "azul", Price: 129000, Cost: 68000, StockQuantity: 8, MinStock: 2},
		{ID: "prod-pantalon-formal", SKU: "PAN-001", Name: "Pantalón Formal", Category: "pantalones", Size: "L", Color: "negro", Price: 115000, Cost: 60000, StockQuantity: 15, MinStock: 4},
		{ID: "prod-falda-plisada", SKU: "FAL-001", Name: "Falda Plisada", Category: "faldas", Size: "M", Color: "beige", Price: 79000, Cost: 39000, StockQuantity: 4, MinStock: 5},
		{ID: "prod-chaqueta-jean", SKU: "CHA-001", Name: "Chaqueta Jean", Category: "chaquetas", Size: "M", Color: "azul", Price: 159000, Cost: 85000, StockQuantity: 6, MinStock: 2},
		{ID: "prod-top-basico", SKU: "TOP-001", Name: "Top Básico", Category: "blusas", Size: "S", Color: "negro", Price: 45000, Cost: 20000, StockQuantity: 30, MinStock: 6},
		{ID: "prod-collar-luna", SKU: "ACC-001", Name: "Collar Luna", Category: "accesorios", Price: 35000, Cost: 12000, StockQuantity: 3, MinStock: 2},
	}
	for _, p := range products {
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	customers := []domain.Customer{
		{ID: "cust-laura-gomez", Name: "Laura Gómez", Email: "laura.gomez@example.com", Phone: "3001234567", DocumentType: "CC", DocumentNumber: "1020304050", City: "Medellín", BirthDate: "1992-03-14", CustomerType: domain.CustomerTypeVIP},
		{ID: "cust-camila-rios", Name: "Camila Ríos", Email: "camila.rios@example.com", Phone: "3109876543", DocumentType: "CC", DocumentNumber: "1098765432", City: "Envigado", BirthDate: "1988-11-02", CustomerType: domain.CustomerTypePremium},
		{ID: "cust-valentina-mejia", Name: "Valentina Mejía", Email: "valen.mejia@example.com", City: "Medellín", BirthDate: "2000-07-21", CustomerType: domain.CustomerTypeRegular},
	}
	for _, c := range customers {
		c.Active = true
		c.CreatedAt = now
		c.UpdatedAt = now
		s.customers[c.ID] = c
	}

	return s
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.ActiveOnly && !p.Active {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(strings.ToLower(p.SKU), search) {
			continue
		}
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		if c := cmpString(a.Category, b.Category); c != 0 {
			return c
		}
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.StockQuantity < 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if strings.EqualFold(existing.SKU, product.SKU) {
			return nil, store.ErrConflict
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product, setStock bool) (*domain.Product, error) {
	if setStock && product.StockQuantity < 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, other := range s.products {
		if id != product.ID && strings.EqualFold(other.SKU, product.SKU) {
			return nil, store.ErrConflict
		}
	}
	if !setStock {
		product.StockQuantity = existing.StockQuantity
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, sale := range s.sales {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return store.ErrConflict
			}
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListLowStockProducts(_ context.Context, threshold int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, 8)
	for _, p := range s.products {
		if p.Active && p.LowStock(threshold) {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		if a.StockQuantity != b.StockQuantity {
			return a.StockQuantity - b.StockQuantity
		}
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) ListCustomers(_ context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if filter.CustomerType != "" && c.CustomerType != filter.CustomerType {
			continue
		}
		if filter.WithEmail && strings.TrimSpace(c.Email) == "" {
			continue
		}
		if filter.WithBirthDate && c.BirthDate == "" {
			continue
		}
		if search != "" && !customerMatches(c, search) {
			continue
		}
		result = append(result, cloneCustomer(c))
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cloned := cloneCustomer(c)
	return &cloned, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	now := time.Now().UTC()
	customer.CreatedAt = now
	customer.UpdatedAt = now
	s.customers[customer.ID] = cloneCustomer(customer)

	created := cloneCustomer(customer)
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Purchase totals are owned by sale writes.
	customer.TotalPurchases = existing.TotalPurchases
	customer.LastPurchaseDate = existing.LastPurchaseDate
	customer.CreatedAt = existing.CreatedAt
	customer.UpdatedAt = time.Now().UTC()
	s.customers[customer.ID] = cloneCustomer(customer)

	updated := cloneCustomer(customer)
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return store.ErrNotFound
	}
	for _, sale := range s.sales {
		if sale.CustomerID == id {
			return store.ErrConflict
		}
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) EnsureAnonymousCustomer(_ context.Context) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.customers {
		if c.Name != domain.AnonymousCustomerName {
			continue
		}
		if !c.Active || c.CustomerType != domain.CustomerTypeAnonymous {
			c.Active = true
			c.CustomerType = domain.CustomerTypeAnonymous
			c.UpdatedAt = time.Now().UTC()
			s.customers[id] = c
		}
		found := cloneCustomer(c)
		return &found, nil
	}

	now := time.Now().UTC()
	c := domain.Customer{
		ID:           xid.New("cust"),
		Name:         domain.AnonymousCustomerName,
		CustomerType: domain.CustomerTypeAnonymous,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.customers[c.ID] = c
	created := c
	return &created, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[sale.CustomerID]
	if !ok {
		return nil, store.ErrNotFound
	}

	requested := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalid
		}
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, store.ErrNotFound
		}
		requested[item.ProductID] += item.Quantity
	}
	for productID, qty := range requested {
		if s.products[productID].StockQuantity < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	for productID, qty := range requested {
		p := s.products[productID]
		p.StockQuantity -= qty
		p.UpdatedAt = now
		s.products[productID] = p
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = now
	}
	sale.CreatedAt = now
	sale.UpdatedAt = now
	sale.CustomerName = customer.Name
	for i := range sale.Items {
		sale.Items[i].SaleID = sale.ID
		if sale.Items[i].ID == "" {
			sale.Items[i].ID = xid.New("item")
		}
	}

	if countsTowardPurchases(sale.Status) {
		customer.TotalPurchases += sale.TotalAmount
		saleDate := sale.SaleDate
		if customer.LastPurchaseDate == nil || saleDate.After(*customer.LastPurchaseDate) {
			customer.LastPurchaseDate = &saleDate
		}
		customer.UpdatedAt = now
		s.customers[customer.ID] = customer
	}

	s.sales[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) UpdateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sales[sale.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer, ok := s.customers[sale.CustomerID]
	if !ok {
		return nil, store.ErrNotFound
	}

	if countsTowardPurchases(existing.Status) {
		s.adjustPurchases(existing.CustomerID, -existing.TotalAmount)
	}
	if countsTowardPurchases(sale.Status) {
		s.adjustPurchases(sale.CustomerID, sale.TotalAmount)
	}

	sale.Items = existing.Items
	sale.CreatedAt = existing.CreatedAt
	sale.UpdatedAt = time.Now().UTC()
	sale.CustomerName = customer.Name
	s.sales[sale.ID] = cloneSale(sale)

	updated := cloneSale(sale)
	return &updated, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return store.ErrNotFound
	}

	now := time.Now().UTC()
	for _, item := range sale.Items {
		p, ok := s.products[item.ProductID]
		if !ok {
			continue
		}
		p.StockQuantity += item.Quantity
		p.UpdatedAt = now
		s.products[item.ProductID] = p
	}
	if countsTowardPurchases(sale.Status) {
		s.adjustPurchases(sale.CustomerID, -sale.TotalAmount)
	}
	delete(s.sales, id)
	return nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cloned := cloneSale(sale)
	return &cloned, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if filter.From != nil && sale.SaleDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sale.SaleDate.Before(*filter.To) {
			continue
		}
		if filter.CustomerID != "" && sale.CustomerID != filter.CustomerID {
			continue
		}
		if filter.PaymentMethod != "" && sale.PaymentMethod != filter.PaymentMethod {
			continue
		}
		if search != "" {
			name := strings.ToLower(s.customers[sale.CustomerID].Name)
			if !strings.Contains(name, search) && !strings.Contains(strings.ToLower(sale.PaymentMethod), search) {
				continue
			}
		}
		listed := cloneSale(sale)
		listed.Items = nil
		matched = append(matched, listed)
	}
	slices.SortFunc(matched, func(a, b domain.Sale) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	total := len(matched)
	start := min(max(filter.Offset, 0), total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return matched[start:end], total, nil
}

func (s *Store) ListSalesWithItems(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if sale.SaleDate.Before(from) || !sale.SaleDate.Before(to) {
			continue
		}
		cloned := cloneSale(sale)
		for i, item := range cloned.Items {
			if p, ok := s.products[item.ProductID]; ok {
				if cloned.Items[i].Category == "" {
					cloned.Items[i].Category = p.Category
				}
				if !cloned.Items[i].CostCaptured {
					cloned.Items[i].UnitCost = p.Cost
				}
			}
		}
		result = append(result, cloned)
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		return a.SaleDate.Compare(b.SaleDate)
	})
	return result, nil
}

func (s *Store) ListExpenses(_ context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		if filter.From != nil && e.ExpenseDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !e.ExpenseDate.Before(*filter.To) {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Description), search) && !strings.Contains(strings.ToLower(e.Category), search) {
			continue
		}
		result = append(result, e)
	}
	slices.SortFunc(result, func(a, b domain.Expense) int {
		return b.ExpenseDate.Compare(a.ExpenseDate)
	})
	return result, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expenses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Description == "" || expense.Amount < 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	now := time.Now().UTC()
	expense.CreatedAt = now
	expense.UpdatedAt = now
	s.expenses[expense.ID] = expense

	created := expense
	return &created, nil
}

func (s *Store) UpdateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.expenses[expense.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	expense.CreatedAt = existing.CreatedAt
	expense.UpdatedAt = time.Now().UTC()
	s.expenses[expense.ID] = expense

	updated := expense
	return &updated, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expenses[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) SetExpenseReceipt(_ context.Context, id string, receiptURL string) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	e.ReceiptURL = receiptURL
	e.UpdatedAt = time.Now().UTC()
	s.expenses[id] = e

	updated := e
	return &updated, nil
}

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.UpdatedAt = time.Now().UTC()
	s.settings = settings
	return settings, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		result = append(result, u)
	}
	slices.SortFunc(result, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}

// adjustPurchases must be called with the write lock held.
func (s *Store) adjustPurchases(customerID string, delta int64) {
	c, ok := s.customers[customerID]
	if !ok {
		return
	}
	c.TotalPurchases += delta
	if c.TotalPurchases < 0 {
		c.TotalPurchases = 0
	}
	c.UpdatedAt = time.Now().UTC()
	s.customers[customerID] = c
}

func countsTowardPurchases(status string) bool {
	return status == "" || status == domain.SaleStatusCompleted
}

func customerMatches(c domain.Customer, search string) bool {
	return strings.Contains(strings.ToLower(c.Name), search) ||
		strings.Contains(strings.ToLower(c.Email), search) ||
		strings.Contains(c.Phone, search) ||
		strings.Contains(strings.ToLower(c.DocumentNumber), search)
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	if src.Items != nil {
		dst.Items = append([]domain.SaleItem(nil), src.Items...)
	}
	return dst
}

func cloneCustomer(src domain.Customer) domain.Customer {
	dst := src
	if src.LastPurchaseDate != nil {
		last := *src.LastPurchaseDate
		dst.LastPurchaseDate = &last
	}
	return dst
}
