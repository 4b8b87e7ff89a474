// Package sale composes a sale from editable line items. It recomputes line
// totals on every edit and validates the cart against a product snapshot
// before anything is persisted.
package sale

import (
	"errors"
	"fmt"

	"magiainterna/backend/internal/domain"
)

var (
	ErrEmptyCart      = errors.New("sale must contain at least one product")
	ErrMissingProduct = errors.New("every sale line must reference an active product")
	ErrLineOutOfRange = errors.New("sale line does not exist")
	ErrAmountTooLarge = errors.New("sale amount is out of range")
)

// MaxAmount bounds every peso amount a sale may carry: unit prices, each
// adjustment, the subtotal and the grand total. MaxQuantity bounds a line.
const (
	MaxAmount   int64 = 1_000_000_000_000
	MaxQuantity       = 100_000
)

type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

type Line struct {
	ProductID  string
	Quantity   int
	UnitPrice  int64
	TotalPrice int64
}

func (l *Line) recompute() {
	if l.Quantity < 1 {
		l.Quantity = 1
	}
	if l.UnitPrice < 0 {
		l.UnitPrice = 0
	}
	if l.Quantity > MaxQuantity || l.UnitPrice > MaxAmount {
		l.TotalPrice = 0
		return
	}
	l.TotalPrice = int64(l.Quantity) * l.UnitPrice
}

// Draft is the mutable state of a sale form.
type Draft struct {
	Lines          []Line
	TaxAmount      int64
	DiscountAmount int64
	DeliveryFee    int64
}

// FromInput builds a draft from request lines. A line without a unit price
// takes the current price of its product.
func FromInput(items []domain.SaleItemInput, tax, discount, delivery int64, products map[string]domain.Product) *Draft {
	d := &Draft{Lines: make([]Line, 0, len(items))}
	for _, item := range items {
		idx := d.AddLine()
		if product, ok := products[item.ProductID]; ok && item.UnitPrice <= 0 {
			_ = d.SelectProduct(idx, product)
		} else {
			d.Lines[idx].ProductID = item.ProductID
			_ = d.SetUnitPrice(idx, item.UnitPrice)
		}
		_ = d.SetQuantity(idx, item.Quantity)
	}
	d.SetTax(tax)
	d.SetDiscount(discount)
	d.SetDeliveryFee(delivery)
	return d
}

func (d *Draft) AddLine() int {
	d.Lines = append(d.Lines, Line{Quantity: 1})
	return len(d.Lines) - 1
}

func (d *Draft) RemoveLine(idx int) error {
	if idx < 0 || idx >= len(d.Lines) {
		return ErrLineOutOfRange
	}
	d.Lines = append(d.Lines[:idx], d.Lines[idx+1:]...)
	return nil
}

// SelectProduct points a line at product and resets its unit price to the list price.
func (d *Draft) SelectProduct(idx int, product domain.Product) error {
	if idx < 0 || idx >= len(d.Lines) {
		return ErrLineOutOfRange
	}
	d.Lines[idx].ProductID = product.ID
	d.Lines[idx].UnitPrice = product.Price
	d.Lines[idx].recompute()
	return nil
}

func (d *Draft) SetQuantity(idx int, qty int) error {
	if idx < 0 || idx >= len(d.Lines) {
		return ErrLineOutOfRange
	}
	d.Lines[idx].Quantity = qty
	d.Lines[idx].recompute()
	return nil
}

func (d *Draft) SetUnitPrice(idx int, price int64) error {
	if idx < 0 || idx >= len(d.Lines) {
		return ErrLineOutOfRange
	}
	d.Lines[idx].UnitPrice = price
	d.Lines[idx].recompute()
	return nil
}

func (d *Draft) SetTax(amount int64) { d.TaxAmount = clamp(amount) }
func (d *Draft) SetDiscount(amount int64) { d.DiscountAmount = clamp(amount) }
func (d *Draft) SetDeliveryFee(amount int64) { d.DeliveryFee = clamp(amount) }

func (d *Draft) Subtotal() int64 {
	subtotal := int64(0)
	for _, line := range d.Lines {
		subtotal += line.TotalPrice
	}
	return subtotal
}

// Total is lines + tax + delivery - discount.
func (d *Draft) Total() int64 {
	return d.Subtotal() + d.TaxAmount + d.DeliveryFee - d.DiscountAmount
}

// HasInsufficientStock reports whether line asks for more than stock holds.
// A line with no product never reports a shortage.
func HasInsufficientStock(line Line, stock map[string]int) bool {
	if line.ProductID == "" {
		return false
	}
	available, ok := stock[line.ProductID]
	if !ok {
		return false
	}
	return line.Quantity > available
}

// StockIssues lists every product whose requested quantity, summed over all
// lines, exceeds the snapshot stock.
func (d *Draft) StockIssues(products map[string]domain.Product) []domain.StockIssue {
	requested := make(map[string]int, len(d.Lines))
	order := make([]string, 0, len(d.Lines))
	for _, line := range d.Lines {
		if line.ProductID == "" {
			continue
		}
		if _, seen := requested[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		requested[line.ProductID] += line.Quantity
	}

	stock := stockOf(products)
	issues := make([]domain.StockIssue, 0)
	for _, productID := range order {
		combined := Line{ProductID: productID, Quantity: requested[productID]}
		if HasInsufficientStock(combined, stock) {
			issues = append(issues, domain.StockIssue{
				ProductID: productID,
				Requested: combined.Quantity,
				Available: stock[productID],
			})
		}
	}
	return issues
}

// CheckAmounts rejects drafts whose quantities or amounts leave the
// supported range. Once it passes, no total can overflow int64.
func (d *Draft) CheckAmounts() error {
	if d.TaxAmount > MaxAmount || d.DiscountAmount > MaxAmount || d.DeliveryFee > MaxAmount {
		return ErrAmountTooLarge
	}
	subtotal := int64(0)
	for _, line := range d.Lines {
		if line.Quantity > MaxQuantity || line.UnitPrice > MaxAmount {
			return ErrAmountTooLarge
		}
		subtotal += line.TotalPrice
		if subtotal > MaxAmount {
			return ErrAmountTooLarge
		}
	}
	if subtotal+d.TaxAmount+d.DeliveryFee > MaxAmount {
		return ErrAmountTooLarge
	}
	return nil
}

// Validate runs the pre-submit checks in order: empty cart, amount range,
// missing product, insufficient stock.
func (d *Draft) Validate(products map[string]domain.Product) error {
	if len(d.Lines) == 0 {
		return ErrEmptyCart
	}
	if err := d.CheckAmounts(); err != nil {
		return err
	}
	for _, line := range d.Lines {
		product, ok := products[line.ProductID]
		if line.ProductID == "" || !ok || !product.Active {
			return ErrMissingProduct
		}
	}
	if issues := d.StockIssues(products); len(issues) > 0 {
		first := issues[0]
		return &InsufficientStockError{ProductID: first.ProductID, Requested: first.Requested, Available: first.Available}
	}
	return nil
}

// Quote snapshots the draft into sale items. Unit cost, name and category are
// copied from the product so later price edits do not rewrite history.
func (d *Draft) Quote(products map[string]domain.Product) domain.SaleQuote {
	items := make([]domain.SaleItem, 0, len(d.Lines))
	for _, line := range d.Lines {
		item := domain.SaleItem{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			TotalPrice: line.TotalPrice,
		}
		if product, ok := products[line.ProductID]; ok {
			item.ProductName = product.Name
			item.Category = product.Category
			item.UnitCost = product.Cost
			item.CostCaptured = true
		}
		items = append(items, item)
	}
	return domain.SaleQuote{
		Items:          items,
		Subtotal:       d.Subtotal(),
		TaxAmount:      d.TaxAmount,
		DiscountAmount: d.DiscountAmount,
		DeliveryFee:    d.DeliveryFee,
		TotalAmount:    d.Total(),
		StockIssues:    d.StockIssues(products),
	}
}

// Compose validates the draft and returns its quote.
func (d *Draft) Compose(products map[string]domain.Product) (domain.SaleQuote, error) {
	if err := d.Validate(products); err != nil {
		return domain.SaleQuote{}, err
	}
	return d.Quote(products), nil
}

func stockOf(products map[string]domain.Product) map[string]int {
	stock := make(map[string]int, len(products))
	for id, product := range products {
		stock[id] = product.StockQuantity
	}
	return stock
}

func clamp(amount int64) int64 {
	if amount < 0 {
		return 0
	}
	return amount
}
