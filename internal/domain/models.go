package domain

import "time"

// Amounts are whole Colombian pesos.

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

const (
	CustomerTypeRegular   = "regular"
	CustomerTypePremium   = "premium"
	CustomerTypeVIP       = "vip"
	CustomerTypeAnonymous = "anonymous"

	AnonymousCustomerName = "Cliente Anónimo"
)

const (
	SaleStatusCompleted = "completed"
	SaleStatusPending   = "pending"
	SaleStatusCancelled = "cancelled"
)

const (
	PaymentCash        = "efectivo"
	PaymentCard        = "tarjeta"
	PaymentTransfer    = "transferencia"
	PaymentDirectDebit = "domiciliacion"
)

const DefaultLowStockThreshold = 5

type Product struct {
	ID            string    `json:"id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Category      string    `json:"category"`
	Size          string    `json:"size,omitempty"`
	Color         string    `json:"color,omitempty"`
	Price         int64     `json:"price"`
	Cost          int64     `json:"cost"`
	StockQuantity int       `json:"stock_quantity"`
	MinStock      int       `json:"min_stock"`
	ImageURL      string    `json:"image_url,omitempty"`
	Active        bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (p Product) LowStock(threshold int) bool {
	return p.StockQuantity <= p.MinStock || p.StockQuantity <= threshold
}

type ProductCreateRequest struct {
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	Size          string `json:"size"`
	Color         string `json:"color"`
	Price         int64  `json:"price"`
	Cost          int64  `json:"cost"`
	StockQuantity int    `json:"stock_quantity"`
	MinStock      int    `json:"min_stock"`
	ImageURL      string `json:"image_url"`
}

type ProductUpdateRequest struct {
	SKU           *string `json:"sku,omitempty"`
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	Category      *string `json:"category,omitempty"`
	Size          *string `json:"size,omitempty"`
	Color         *string `json:"color,omitempty"`
	Price         *int64  `json:"price,omitempty"`
	Cost          *int64  `json:"cost,omitempty"`
	StockQuantity *int    `json:"stock_quantity,omitempty"`
	MinStock      *int    `json:"min_stock,omitempty"`
	ImageURL      *string `json:"image_url,omitempty"`
	Active        *bool   `json:"is_active,omitempty"`
}

type ProductFilter struct {
	Search     string
	Category   string
	ActiveOnly bool
}

type Customer struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	DocumentType     string     `json:"document_type,omitempty"`
	DocumentNumber   string     `json:"document_number,omitempty"`
	Address          string     `json:"address,omitempty"`
	City             string     `json:"city,omitempty"`
	PostalCode       string     `json:"postal_code,omitempty"`
	BirthDate        string     `json:"birth_date,omitempty"`
	CustomerType     string     `json:"customer_type"`
	Active           bool       `json:"is_active"`
	TotalPurchases   int64      `json:"total_purchases"`
	LastPurchaseDate *time.Time `json:"last_purchase_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type CustomerCreateRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	Address        string `json:"address"`
	City           string `json:"city"`
	PostalCode     string `json:"postal_code"`
	BirthDate      string `json:"birth_date"`
	CustomerType   string `json:"customer_type"`
}

type CustomerUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	Email          *string `json:"email,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	DocumentType   *string `json:"document_type,omitempty"`
	DocumentNumber *string `json:"document_number,omitempty"`
	Address        *string `json:"address,omitempty"`
	City           *string `json:"city,omitempty"`
	PostalCode     *string `json:"postal_code,omitempty"`
	BirthDate      *string `json:"birth_date,omitempty"`
	CustomerType   *string `json:"customer_type,omitempty"`
	Active         *bool   `json:"is_active,omitempty"`
}

type CustomerFilter struct {
	Search        string
	CustomerType  string
	WithEmail     bool
	WithBirthDate bool
}

type Sale struct {
	ID             string     `json:"id"`
	CustomerID     string     `json:"customer_id"`
	CustomerName   string     `json:"customer_name,omitempty"`
	PaymentMethod  string     `json:"payment_method"`
	DiscountAmount int64      `json:"discount_amount"`
	TaxAmount      int64      `json:"tax_amount"`
	DeliveryFee    int64      `json:"delivery_fee"`
	TotalAmount    int64      `json:"total_amount"`
	Status         string     `json:"status"`
	Notes          string     `json:"notes,omitempty"`
	SaleDate       time.Time  `json:"sale_date"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Items          []SaleItem `json:"items,omitempty"`
}

type SaleItem struct {
	ID          string `json:"id"`
	SaleID      string `json:"sale_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Category    string `json:"category,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	UnitCost    int64  `json:"unit_cost"`
	TotalPrice  int64  `json:"total_price"`

	// CostCaptured is false for items stored without a cost snapshot.
	CostCaptured bool `json:"cost_captured"`
}

type SaleItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type SaleCreateRequest struct {
	CustomerID     string          `json:"customer_id"`
	PaymentMethod  string          `json:"payment_method"`
	DiscountAmount int64           `json:"discount_amount"`
	TaxAmount      int64           `json:"tax_amount"`
	DeliveryFee    int64           `json:"delivery_fee"`
	Status         string          `json:"status"`
	Notes          string          `json:"notes"`
	SaleDate       string          `json:"sale_date"`
	Items          []SaleItemInput `json:"items"`
}

type SaleUpdateRequest struct {
	CustomerID     *string `json:"customer_id,omitempty"`
	PaymentMethod  *string `json:"payment_method,omitempty"`
	DiscountAmount *int64  `json:"discount_amount,omitempty"`
	TaxAmount      *int64  `json:"tax_amount,omitempty"`
	DeliveryFee    *int64  `json:"delivery_fee,omitempty"`
	Status         *string `json:"status,omitempty"`
	Notes          *string `json:"notes,omitempty"`
	SaleDate       *string `json:"sale_date,omitempty"`
}

type StockIssue struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type SaleQuote struct {
	Items          []SaleItem   `json:"items"`
	Subtotal       int64        `json:"subtotal"`
	TaxAmount      int64        `json:"tax_amount"`
	DiscountAmount int64        `json:"discount_amount"`
	DeliveryFee    int64        `json:"delivery_fee"`
	TotalAmount    int64        `json:"total_amount"`
	StockIssues    []StockIssue `json:"stock_issues,omitempty"`
}

type SaleFilter struct {
	From          *time.Time
	To            *time.Time
	CustomerID    string
	PaymentMethod string
	Search        string
	Limit         int
	Offset        int
}

type SaleListResponse struct {
	Sales    []Sale `json:"sales"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

type Expense struct {
	ID            string    `json:"id"`
	Description   string    `json:"description"`
	Amount        int64     `json:"amount"`
	Category      string    `json:"category"`
	PaymentMethod string    `json:"payment_method"`
	ExpenseDate   time.Time `json:"expense_date"`
	Notes         string    `json:"notes,omitempty"`
	ReceiptURL    string    `json:"receipt_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ExpenseCreateRequest struct {
	Description   string `json:"description"`
	Amount        int64  `json:"amount"`
	Category      string `json:"category"`
	PaymentMethod string `json:"payment_method"`
	ExpenseDate   string `json:"expense_date"`
	Notes         string `json:"notes"`
}

type ExpenseUpdateRequest struct {
	Description   *string `json:"description,omitempty"`
	Amount        *int64  `json:"amount,omitempty"`
	Category      *string `json:"category,omitempty"`
	PaymentMethod *string `json:"payment_method,omitempty"`
	ExpenseDate   *string `json:"expense_date,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

type ExpenseFilter struct {
	From     *time.Time
	To       *time.Time
	Category string
	Search   string
}

type ProfitBucket struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Sales      int    `json:"sales"`
	GrossSales int64  `json:"gross_sales"`
	Revenue    int64  `json:"revenue"`
	Cost       int64  `json:"cost"`
	Profit     int64  `json:"profit"`
}

type ProfitReport struct {
	Period  string         `json:"period"`
	From    string         `json:"from"`
	To      string         `json:"to"`
	Buckets []ProfitBucket `json:"buckets"`
	Totals  ProfitBucket   `json:"totals"`
	Margin  int64          `json:"margin_percent"`
}

type CategoryUnits struct {
	Category string `json:"category"`
	Units    int    `json:"units"`
}

type CategoryUnitsMonth struct {
	Key        string          `json:"key"`
	Label      string          `json:"label"`
	Categories []CategoryUnits `json:"categories"`
}

type CategoryUnitsReport struct {
	Year       int                  `json:"year"`
	Categories []string             `json:"categories"`
	Months     []CategoryUnitsMonth `json:"months"`
}

type PaymentShare struct {
	Method     string `json:"method"`
	Count      int    `json:"count"`
	Percentage int64  `json:"percentage"`
}

type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type CategoryAmount struct {
	Category string `json:"category"`
	Amount   int64  `json:"amount"`
}

type AnalyticsSummary struct {
	TotalSales       int64 `json:"total_sales"`
	NetRevenue       int64 `json:"net_revenue"`
	TotalCost        int64 `json:"total_cost"`
	GrossProfit      int64 `json:"gross_profit"`
	TotalExpenses    int64 `json:"total_expenses"`
	NetProfit        int64 `json:"net_profit"`
	MarginPercent    int64 `json:"margin_percent"`
	TotalProducts    int   `json:"total_products"`
	TotalCustomers   int   `json:"total_customers"`
	LowStockProducts int   `json:"low_stock_products"`
}

type Dashboard struct {
	Year               int              `json:"year"`
	Summary            AnalyticsSummary `json:"summary"`
	Monthly            []ProfitBucket   `json:"monthly"`
	ProductsByCategory []NamedCount     `json:"products_by_category"`
	ExpensesByCategory []CategoryAmount `json:"expenses_by_category"`
	CustomerTypes      []NamedCount     `json:"customer_types"`
	PaymentMethods     []PaymentShare   `json:"payment_methods"`
	LowStock           []Product        `json:"low_stock"`
}

type BirthdayCustomer struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BirthDate    string `json:"birth_date"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	CustomerType string `json:"customer_type"`
	Age          int    `json:"age"`
	DaysUntil    int    `json:"days_until"`
}

type BirthdayMonth struct {
	Month     int                `json:"month"`
	Name      string             `json:"name"`
	Customers []BirthdayCustomer `json:"customers"`
}

type BirthdayOverview struct {
	Today        string             `json:"today"`
	CurrentMonth BirthdayMonth      `json:"current_month"`
	Upcoming     []BirthdayCustomer `json:"upcoming"`
	ByMonth      []BirthdayMonth    `json:"by_month"`
}

type EmailTemplate struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type PromotionPreviewRequest struct {
	TemplateID string `json:"template_id"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	PromoLink  string `json:"promo_link"`
}

type PromotionPreview struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

type PromotionRecipientsRequest struct {
	Filter       string   `json:"filter"`
	CustomerIDs  []string `json:"customer_ids"`
	ManualEmails string   `json:"manual_emails"`
}

type PromotionContact struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	TotalPurchases   int64      `json:"total_purchases"`
	LastPurchaseDate *time.Time `json:"last_purchase_date,omitempty"`
}

type PromotionRecipients struct {
	Audience []PromotionContact `json:"audience"`
	Emails   []string           `json:"emails"`
	Count    int                `json:"count"`
}

type Settings struct {
	CompanyName        string    `json:"company_name"`
	CompanyEmail       string    `json:"company_email"`
	CompanyPhone       string    `json:"company_phone"`
	CompanyAddress     string    `json:"company_address"`
	Currency           string    `json:"currency"`
	Language           string    `json:"language"`
	Timezone           string    `json:"timezone"`
	EmailNotifications bool      `json:"email_notifications"`
	LowStockAlerts     bool      `json:"low_stock_alerts"`
	SalesReports       bool      `json:"sales_reports"`
	LowStockThreshold  int       `json:"low_stock_threshold"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type SettingsUpdateRequest struct {
	CompanyName        *string `json:"company_name,omitempty"`
	CompanyEmail       *string `json:"company_email,omitempty"`
	CompanyPhone       *string `json:"company_phone,omitempty"`
	CompanyAddress     *string `json:"company_address,omitempty"`
	Currency           *string `json:"currency,omitempty"`
	Language           *string `json:"language,omitempty"`
	Timezone           *string `json:"timezone,omitempty"`
	EmailNotifications *bool   `json:"email_notifications,omitempty"`
	LowStockAlerts     *bool   `json:"low_stock_alerts,omitempty"`
	SalesReports       *bool   `json:"sales_reports,omitempty"`
	LowStockThreshold  *int    `json:"low_stock_threshold,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		CompanyName:        "Magia Interna",
		CompanyEmail:       "info@magiainterna.com",
		Currency:           "COP",
		Language:           "es",
		Timezone:           "America/Bogota",
		EmailNotifications: true,
		LowStockAlerts:     true,
		LowStockThreshold:  DefaultLowStockThreshold,
	}
}

// Session is the authenticated caller attached to a request context.
type Session struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
