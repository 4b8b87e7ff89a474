package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/store"
	"magiainterna/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, sku, name, description, category, size, color, price, cost, stock_quantity, min_stock, image_url, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.Size, &p.Color,
		&p.Price, &p.Cost, &p.StockQuantity, &p.MinStock, &p.ImageURL, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	var where conditions
	if filter.ActiveOnly {
		where.add("is_active = true")
	}
	if filter.Category != "" {
		where.add("category = $%d", filter.Category)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where.add("(name ILIKE $%[1]d OR sku ILIKE $%[1]d)", "%"+search+"%")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products`+where.sql()+` ORDER BY category, name`, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.StockQuantity < 0 {
		return nil, store.ErrInvalid
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}

	created, err := scanProduct(s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, sku, name, description, category, size, color, price, cost, stock_quantity, min_stock, image_url, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
		RETURNING `+productColumns,
		product.ID, product.SKU, product.Name, product.Description, product.Category, product.Size, product.Color,
		product.Price, product.Cost, product.StockQuantity, product.MinStock, product.ImageURL, product.Active))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product, setStock bool) (*domain.Product, error) {
	if setStock && product.StockQuantity < 0 {
		return nil, store.ErrInvalid
	}

	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET sku = $2, name = $3, description = $4, category = $5, size = $6, color = $7, price = $8, cost = $9,
		    stock_quantity = CASE WHEN $14 THEN $10 ELSE stock_quantity END,
		    min_stock = $11, image_url = $12, is_active = $13, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.SKU, product.Name, product.Description, product.Category, product.Size, product.Color,
		product.Price, product.Cost, product.StockQuantity, product.MinStock, product.ImageURL, product.Active, setStock))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapWriteError(err)
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err)
	}
	return expectAffected(res)
}

func (s *Store) ListLowStockProducts(ctx context.Context, threshold int) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_active = true AND (stock_quantity <= min_stock OR stock_quantity <= $1)
		ORDER BY stock_quantity ASC, name ASC
	`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

const customerColumns = `id, name, email, phone, document_type, document_number, address, city, postal_code, birth_date, customer_type, is_active, total_purchases, last_purchase_date, created_at, updated_at`

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	var birth sql.NullTime
	var lastPurchase sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.DocumentType, &c.DocumentNumber, &c.Address, &c.City,
		&c.PostalCode, &birth, &c.CustomerType, &c.Active, &c.TotalPurchases, &lastPurchase, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	if birth.Valid {
		c.BirthDate = birth.Time.Format(time.DateOnly)
	}
	if lastPurchase.Valid {
		last := lastPurchase.Time.UTC()
		c.LastPurchaseDate = &last
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func (s *Store) ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	var where conditions
	if filter.CustomerType != "" {
		where.add("customer_type = $%d", filter.CustomerType)
	}
	if filter.WithEmail {
		where.add("email <> ''")
	}
	if filter.WithBirthDate {
		where.add("birth_date IS NOT NULL")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where.add("(name ILIKE $%[1]d OR email ILIKE $%[1]d OR phone ILIKE $%[1]d OR document_number ILIKE $%[1]d)", "%"+search+"%")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers`+where.sql()+` ORDER BY name`, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalid
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}

	created, err := scanCustomer(s.db.QueryRowContext(ctx, `
		INSERT INTO customers (id, name, email, phone, document_type, document_number, address, city, postal_code, birth_date, customer_type, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
		RETURNING `+customerColumns,
		customer.ID, customer.Name, customer.Email, customer.Phone, customer.DocumentType, customer.DocumentNumber,
		customer.Address, customer.City, customer.PostalCode, nullIfEmpty(customer.BirthDate), customer.CustomerType, customer.Active))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	updated, err := scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $2, email = $3, phone = $4, document_type = $5, document_number = $6, address = $7, city = $8,
		    postal_code = $9, birth_date = $10, customer_type = $11, is_active = $12, updated_at = now()
		WHERE id = $1
		RETURNING `+customerColumns,
		customer.ID, customer.Name, customer.Email, customer.Phone, customer.DocumentType, customer.DocumentNumber,
		customer.Address, customer.City, customer.PostalCode, nullIfEmpty(customer.BirthDate), customer.CustomerType, customer.Active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapWriteError(err)
	}
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err)
	}
	return expectAffected(res)
}

func (s *Store) EnsureAnonymousCustomer(ctx context.Context) (*domain.Customer, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, customer_type, is_active, created_at, updated_at)
		SELECT $1, $2, $3, true, now(), now()
		WHERE NOT EXISTS (SELECT 1 FROM customers WHERE name = $2 OR customer_type = $3)
		ON CONFLICT DO NOTHING
	`, xid.New("cust"), domain.AnonymousCustomerName, domain.CustomerTypeAnonymous)
	if err != nil {
		return nil, err
	}

	c, err := scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET is_active = true, customer_type = $2, updated_at = now()
		WHERE id = (
			SELECT id FROM customers
			WHERE name = $1 OR customer_type = $2
			ORDER BY (customer_type = $2) DESC, created_at ASC
			LIMIT 1
		)
		RETURNING `+customerColumns,
		domain.AnonymousCustomerName, domain.CustomerTypeAnonymous))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &c, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalid
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, mapWriteError(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	var customerName string
	if err := pgTx.QueryRowContext(ctx, `SELECT name FROM customers WHERE id = $1`, sale.CustomerID).Scan(&customerName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapWriteError(err)
	}

	requested := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalid
		}
		requested[item.ProductID] += item.Quantity
	}

	// Stock is checked and decremented by the same statement.
	for _, productID := range sortedKeys(requested) {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $1, updated_at = now()
			WHERE id = $2 AND stock_quantity >= $1
		`, requested[productID], productID)
		if err != nil {
			return nil, mapWriteError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, mapWriteError(err)
		}
		if affected == 0 {
			var exists bool
			if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
				return nil, mapWriteError(err)
			}
			if !exists {
				return nil, store.ErrNotFound
			}
			return nil, store.ErrInsufficientStock
		}
	}

	now := time.Now().UTC()
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = now
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}
	sale.CreatedAt = now
	sale.UpdatedAt = now
	sale.CustomerName = customerName

	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, customer_id, payment_method, discount_amount, tax_amount, delivery_fee, total_amount, status, notes, sale_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
	`, sale.ID, sale.CustomerID, sale.PaymentMethod, sale.DiscountAmount, sale.TaxAmount, sale.DeliveryFee,
		sale.TotalAmount, sale.Status, sale.Notes, sale.SaleDate, now); err != nil {
		return nil, mapWriteError(err)
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		item.SaleID = sale.ID
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, product_name, category, quantity, unit_price, unit_cost, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, item.ID, item.SaleID, item.ProductID, item.ProductName, item.Category, item.Quantity,
			item.UnitPrice, capturedCost(*item), item.TotalPrice); err != nil {
			return nil, mapWriteError(err)
		}
	}

	if sale.Status == domain.SaleStatusCompleted {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE customers
			SET total_purchases = total_purchases + $2,
			    last_purchase_date = GREATEST(COALESCE(last_purchase_date, $3), $3),
			    updated_at = now()
			WHERE id = $1
		`, sale.CustomerID, sale.TotalAmount, sale.SaleDate); err != nil {
			return nil, mapWriteError(err)
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return &sale, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, mapWriteError(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	var oldCustomerID string
	var oldStatus string
	var oldTotal int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT customer_id, status, total_amount FROM sales WHERE id = $1 FOR UPDATE
	`, sale.ID).Scan(&oldCustomerID, &oldStatus, &oldTotal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapWriteError(err)
	}

	if oldStatus == domain.SaleStatusCompleted {
		if err := adjustPurchases(ctx, pgTx, oldCustomerID, -oldTotal); err != nil {
			return nil, mapWriteError(err)
		}
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE sales
		SET customer_id = $2, payment_method = $3, discount_amount = $4, tax_amount = $5, delivery_fee = $6,
		    total_amount = $7, status = $8, notes = $9, sale_date = $10, updated_at = now()
		WHERE id = $1
	`, sale.ID, sale.CustomerID, sale.PaymentMethod, sale.DiscountAmount, sale.TaxAmount, sale.DeliveryFee,
		sale.TotalAmount, sale.Status, sale.Notes, sale.SaleDate); err != nil {
		return nil, mapWriteError(err)
	}

	if sale.Status == domain.SaleStatusCompleted {
		if err := adjustPurchases(ctx, pgTx, sale.CustomerID, sale.TotalAmount); err != nil {
			return nil, mapWriteError(err)
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return s.GetSale(ctx, sale.ID)
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return mapWriteError(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	var customerID string
	var status string
	var total int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT customer_id, status, total_amount FROM sales WHERE id = $1 FOR UPDATE
	`, id).Scan(&customerID, &status, &total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return mapWriteError(err)
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE products p
		SET stock_quantity = p.stock_quantity + i.qty, updated_at = now()
		FROM (
			SELECT product_id, SUM(quantity) AS qty
			FROM sale_items
			WHERE sale_id = $1
			GROUP BY product_id
		) i
		WHERE p.id = i.product_id
	`, id); err != nil {
		return mapWriteError(err)
	}

	if status == domain.SaleStatusCompleted {
		if err := adjustPurchases(ctx, pgTx, customerID, -total); err != nil {
			return mapWriteError(err)
		}
	}

	if _, err := pgTx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id); err != nil {
		return mapWriteError(err)
	}
	return mapWriteError(pgTx.Commit())
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales s
		JOIN customers c ON c.id = s.customer_id
		WHERE s.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	itemsBySale, err := s.loadItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = itemsBySale[sale.ID]
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error) {
	var where conditions
	if filter.From != nil {
		where.add("s.sale_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		where.add("s.sale_date < $%d", *filter.To)
	}
	if filter.CustomerID != "" {
		where.add("s.customer_id = $%d", filter.CustomerID)
	}
	if filter.PaymentMethod != "" {
		where.add("s.payment_method = $%d", filter.PaymentMethod)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where.add("(c.name ILIKE $%[1]d OR s.payment_method ILIKE $%[1]d)", "%"+search+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM sales s JOIN customers c ON c.id = s.customer_id`+where.sql(),
		where.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit < 1 {
		limit = 1000
	}
	args := append(append([]any(nil), where.args...), limit, max(filter.Offset, 0))
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+saleColumns+`
		FROM sales s
		JOIN customers c ON c.id = s.customer_id`+where.sql()+`
		ORDER BY s.created_at DESC
		LIMIT $%d OFFSET $%d
	`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

func (s *Store) ListSalesWithItems(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales s
		JOIN customers c ON c.id = s.customer_id
		WHERE s.sale_date >= $1 AND s.sale_date < $2
		ORDER BY s.sale_date ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 128)
	ids := make([]string, 0, 128)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemsBySale, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = itemsBySale[sales[i].ID]
	}
	return sales, nil
}

const saleColumns = `s.id, s.customer_id, c.name, s.payment_method, s.discount_amount, s.tax_amount, s.delivery_fee, s.total_amount, s.status, s.notes, s.sale_date, s.created_at, s.updated_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.CustomerID, &sale.CustomerName, &sale.PaymentMethod, &sale.DiscountAmount,
		&sale.TaxAmount, &sale.DeliveryFee, &sale.TotalAmount, &sale.Status, &sale.Notes, &sale.SaleDate,
		&sale.CreatedAt, &sale.UpdatedAt)
	sale.SaleDate = sale.SaleDate.UTC()
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	return sale, err
}

// loadItems fills missing category and cost snapshots from the current product row.
func (s *Store) loadItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleItem, error) {
	result := make(map[string][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.sale_id, i.product_id, i.product_name,
		       COALESCE(NULLIF(i.category, ''), p.category, ''),
		       i.quantity, i.unit_price,
		       COALESCE(i.unit_cost, p.cost, 0),
		       i.total_price, i.unit_cost IS NOT NULL
		FROM sale_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.sale_id = ANY($1)
		ORDER BY i.sale_id, i.id
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.Category,
			&item.Quantity, &item.UnitPrice, &item.UnitCost, &item.TotalPrice, &item.CostCaptured); err != nil {
			return nil, err
		}
		result[item.SaleID] = append(result[item.SaleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const expenseColumns = `id, description, amount, category, payment_method, expense_date, notes, receipt_url, created_at, updated_at`

func scanExpense(row rowScanner) (domain.Expense, error) {
	var e domain.Expense
	err := row.Scan(&e.ID, &e.Description, &e.Amount, &e.Category, &e.PaymentMethod, &e.ExpenseDate,
		&e.Notes, &e.ReceiptURL, &e.CreatedAt, &e.UpdatedAt)
	e.ExpenseDate = e.ExpenseDate.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, err
}

func (s *Store) ListExpenses(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	var where conditions
	if filter.From != nil {
		where.add("expense_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		where.add("expense_date < $%d", *filter.To)
	}
	if filter.Category != "" {
		where.add("category = $%d", filter.Category)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		where.add("(description ILIKE $%[1]d OR category ILIKE $%[1]d)", "%"+search+"%")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses`+where.sql()+` ORDER BY expense_date DESC`, where.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 64)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	e, err := scanExpense(s.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Description == "" || expense.Amount < 0 {
		return nil, store.ErrInvalid
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}

	created, err := scanExpense(s.db.QueryRowContext(ctx, `
		INSERT INTO expenses (id, description, amount, category, payment_method, expense_date, notes, receipt_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		RETURNING `+expenseColumns,
		expense.ID, expense.Description, expense.Amount, expense.Category, expense.PaymentMethod,
		expense.ExpenseDate, expense.Notes, expense.ReceiptURL))
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &created, nil
}

func (s *Store) UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	updated, err := scanExpense(s.db.QueryRowContext(ctx, `
		UPDATE expenses
		SET description = $2, amount = $3, category = $4, payment_method = $5, expense_date = $6, notes = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+expenseColumns,
		expense.ID, expense.Description, expense.Amount, expense.Category, expense.PaymentMethod,
		expense.ExpenseDate, expense.Notes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapWriteError(err)
	}
	return &updated, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) SetExpenseReceipt(ctx context.Context, id string, receiptURL string) (*domain.Expense, error) {
	updated, err := scanExpense(s.db.QueryRowContext(ctx, `
		UPDATE expenses SET receipt_url = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+expenseColumns, id, receiptURL))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	var settings domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT company_name, company_email, company_phone, company_address, currency, language, timezone,
		       email_notifications, low_stock_alerts, sales_reports, low_stock_threshold, updated_at
		FROM shop_settings
		WHERE id = 1
	`).Scan(&settings.CompanyName, &settings.CompanyEmail, &settings.CompanyPhone, &settings.CompanyAddress,
		&settings.Currency, &settings.Language, &settings.Timezone, &settings.EmailNotifications,
		&settings.LowStockAlerts, &settings.SalesReports, &settings.LowStockThreshold, &settings.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DefaultSettings(), nil
		}
		return domain.Settings{}, err
	}
	settings.UpdatedAt = settings.UpdatedAt.UTC()
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO shop_settings (id, company_name, company_email, company_phone, company_address, currency, language, timezone,
		                           email_notifications, low_stock_alerts, sales_reports, low_stock_threshold, updated_at)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
		ON CONFLICT (id) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			company_email = EXCLUDED.company_email,
			company_phone = EXCLUDED.company_phone,
			company_address = EXCLUDED.company_address,
			currency = EXCLUDED.currency,
			language = EXCLUDED.language,
			timezone = EXCLUDED.timezone,
			email_notifications = EXCLUDED.email_notifications,
			low_stock_alerts = EXCLUDED.low_stock_alerts,
			sales_reports = EXCLUDED.sales_reports,
			low_stock_threshold = EXCLUDED.low_stock_threshold,
			updated_at = now()
		RETURNING updated_at
	`, settings.CompanyName, settings.CompanyEmail, settings.CompanyPhone, settings.CompanyAddress, settings.Currency,
		settings.Language, settings.Timezone, settings.EmailNotifications, settings.LowStockAlerts,
		settings.SalesReports, settings.LowStockThreshold).Scan(&settings.UpdatedAt)
	if err != nil {
		return domain.Settings{}, err
	}
	settings.UpdatedAt = settings.UpdatedAt.UTC()
	return settings, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalid
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalid
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func adjustPurchases(ctx context.Context, tx *sql.Tx, customerID string, delta int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET total_purchases = GREATEST(total_purchases + $2, 0), updated_at = now()
		WHERE id = $1
	`, customerID, delta)
	return err
}

// conditions collects WHERE clauses. Each clause holds a single %d verb for
// the placeholder index of its argument, or none when it takes no argument.
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) add(clause string, arg ...any) {
	if len(arg) == 0 {
		c.clauses = append(c.clauses, clause)
		return
	}
	c.args = append(c.args, arg[0])
	c.clauses = append(c.clauses, fmt.Sprintf(clause, len(c.args)))
}

func (c *conditions) sql() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503":
			return store.ErrConflict
		case "40001", "40P01":
			return fmt.Errorf("%w: concurrent write, retry the request", store.ErrConflict)
		case "23514", "22P02", "22007", "22008":
			return store.ErrInvalid
		}
	}
	return err
}

func capturedCost(item domain.SaleItem) any {
	if !item.CostCaptured {
		return nil
	}
	return item.UnitCost
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
