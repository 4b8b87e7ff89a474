// Package analytics turns persisted sales into profit rollups.
//
// Revenue is always net of the delivery fee. Gross sales keep the fee.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/format"
)

type SaleProfit struct {
	GrossSales int64
	Revenue    int64
	Cost       int64
	Profit     int64
}

type Aggregator struct {
	loc         *time.Location
	productCost map[string]int64
}

// New builds an aggregator. productCost is consulted for items stored without
// a unit cost snapshot.
func New(loc *time.Location, productCost map[string]int64) *Aggregator {
	if loc == nil {
		loc = format.Location()
	}
	if productCost == nil {
		productCost = map[string]int64{}
	}
	return &Aggregator{loc: loc, productCost: productCost}
}

// Profit is (total - delivery) - cost - discount - tax.
func (a *Aggregator) Profit(sale domain.Sale) SaleProfit {
	cost := int64(0)
	for _, item := range sale.Items {
		unitCost := item.UnitCost
		if !item.CostCaptured {
			unitCost = a.productCost[item.ProductID]
		}
		cost += int64(item.Quantity) * unitCost
	}
	revenue := sale.TotalAmount - sale.DeliveryFee
	return SaleProfit{
		GrossSales: sale.TotalAmount,
		Revenue:    revenue,
		Cost:       cost,
		Profit:     revenue - cost - sale.DiscountAmount - sale.TaxAmount,
	}
}

// Monthly always returns twelve buckets for year, January first.
func (a *Aggregator) Monthly(sales []domain.Sale, year int) []domain.ProfitBucket {
	buckets := make([]domain.ProfitBucket, 12)
	for m := time.January; m <= time.December; m++ {
		buckets[m-1] = domain.ProfitBucket{
			Key:   fmt.Sprintf("%04d-%02d", year, int(m)),
			Label: format.ShortMonthName(m),
		}
	}
	for _, sale := range sales {
		if !counts(sale) {
			continue
		}
		at := sale.SaleDate.In(a.loc)
		if at.Year() != year {
			continue
		}
		a.add(&buckets[at.Month()-1], sale)
	}
	return buckets
}

// Weekly returns one bucket per ISO week touching [from, to].
func (a *Aggregator) Weekly(sales []domain.Sale, from time.Time, to time.Time) []domain.ProfitBucket {
	start := a.day(from)
	start = start.AddDate(0, 0, -((int(start.Weekday()) + 6) % 7))
	end := a.day(to)
	if end.Before(start) {
		return []domain.ProfitBucket{}
	}

	buckets := make([]domain.ProfitBucket, 0, 8)
	index := make(map[string]int)
	for cursor := start; !cursor.After(end); cursor = cursor.AddDate(0, 0, 7) {
		key := weekKey(cursor)
		index[key] = len(buckets)
		buckets = append(buckets, domain.ProfitBucket{Key: key, Label: key})
	}

	last := end.AddDate(0, 0, 1)
	for _, sale := range sales {
		if !counts(sale) {
			continue
		}
		at := sale.SaleDate.In(a.loc)
		if at.Before(a.day(from)) || !at.Before(last) {
			continue
		}
		if i, ok := index[weekKey(at)]; ok {
			a.add(&buckets[i], sale)
		}
	}
	return buckets
}

// Daily returns one bucket per calendar day in [from, to].
func (a *Aggregator) Daily(sales []domain.Sale, from time.Time, to time.Time) []domain.ProfitBucket {
	start := a.day(from)
	end := a.day(to)
	if end.Before(start) {
		return []domain.ProfitBucket{}
	}

	buckets := make([]domain.ProfitBucket, 0, 31)
	index := make(map[string]int)
	for cursor := start; !cursor.After(end); cursor = cursor.AddDate(0, 0, 1) {
		key := cursor.Format(format.DateLayout)
		index[key] = len(buckets)
		buckets = append(buckets, domain.ProfitBucket{Key: key, Label: key})
	}

	for _, sale := range sales {
		if !counts(sale) {
			continue
		}
		key := sale.SaleDate.In(a.loc).Format(format.DateLayout)
		if i, ok := index[key]; ok {
			a.add(&buckets[i], sale)
		}
	}
	return buckets
}

func Totals(buckets []domain.ProfitBucket) domain.ProfitBucket {
	total := domain.ProfitBucket{Key: "total", Label: "Total"}
	for _, b := range buckets {
		total.Sales += b.Sales
		total.GrossSales += b.GrossSales
		total.Revenue += b.Revenue
		total.Cost += b.Cost
		total.Profit += b.Profit
	}
	return total
}

// CategoryUnitsByMonth counts units sold per product category for each month of year.
func (a *Aggregator) CategoryUnitsByMonth(sales []domain.Sale, year int) domain.CategoryUnitsReport {
	perMonth := make([]map[string]int, 12)
	for i := range perMonth {
		perMonth[i] = make(map[string]int)
	}
	seen := make(map[string]struct{})
	for _, sale := range sales {
		if !counts(sale) {
			continue
		}
		at := sale.SaleDate.In(a.loc)
		if at.Year() != year {
			continue
		}
		for _, item := range sale.Items {
			category := item.Category
			if category == "" {
				category = "sin categoría"
			}
			perMonth[at.Month()-1][category] += item.Quantity
			seen[category] = struct{}{}
		}
	}

	categories := make([]string, 0, len(seen))
	for category := range seen {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	report := domain.CategoryUnitsReport{Year: year, Categories: categories, Months: make([]domain.CategoryUnitsMonth, 12)}
	for m := time.January; m <= time.December; m++ {
		units := make([]domain.CategoryUnits, 0, len(categories))
		for _, category := range categories {
			units = append(units, domain.CategoryUnits{Category: category, Units: perMonth[m-1][category]})
		}
		report.Months[m-1] = domain.CategoryUnitsMonth{
			Key:        fmt.Sprintf("%04d-%02d", year, int(m)),
			Label:      format.ShortMonthName(m),
			Categories: units,
		}
	}
	return report
}

// PaymentMethodShare counts sales per payment method with a rounded share of
// the total count.
func PaymentMethodShare(sales []domain.Sale) []domain.PaymentShare {
	countByMethod := make(map[string]int)
	total := 0
	for _, sale := range sales {
		if !counts(sale) {
			continue
		}
		countByMethod[sale.PaymentMethod]++
		total++
	}

	shares := make([]domain.PaymentShare, 0, len(countByMethod))
	for method, count := range countByMethod {
		shares = append(shares, domain.PaymentShare{
			Method:     method,
			Count:      count,
			Percentage: Percent(int64(count), int64(total)),
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Count == shares[j].Count {
			return shares[i].Method < shares[j].Method
		}
		return shares[i].Count > shares[j].Count
	})
	return shares
}

// Percent is round(part / whole * 100), or 0 when whole is 0.
func Percent(part int64, whole int64) int64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(whole)).
		Round(0).
		IntPart()
}

func Margin(profit int64, revenue int64) int64 {
	return Percent(profit, revenue)
}

func (a *Aggregator) add(bucket *domain.ProfitBucket, sale domain.Sale) {
	p := a.Profit(sale)
	bucket.Sales++
	bucket.GrossSales += p.GrossSales
	bucket.Revenue += p.Revenue
	bucket.Cost += p.Cost
	bucket.Profit += p.Profit
}

func (a *Aggregator) day(t time.Time) time.Time {
	local := t.In(a.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, a.loc)
}

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func counts(sale domain.Sale) bool {
	return sale.Status == "" || sale.Status == domain.SaleStatusCompleted
}
