package analytics

import (
	"sort"

	"magiainterna/backend/internal/domain"
)

type SummaryInput struct {
	Sales             []domain.Sale
	Expenses          []domain.Expense
	Products          []domain.Product
	Customers         []domain.Customer
	LowStockThreshold int
}

func (a *Aggregator) Summary(in SummaryInput) domain.AnalyticsSummary {
	summary := domain.AnalyticsSummary{
		TotalProducts:  len(in.Products),
		TotalCustomers: len(in.Customers),
	}
	for _, sale := range in.Sales {
		if !counts(sale) {
			continue
		}
		p := a.Profit(sale)
		summary.TotalSales += p.GrossSales
		summary.NetRevenue += p.Revenue
		summary.TotalCost += p.Cost
		summary.GrossProfit += p.Profit
	}
	for _, expense := range in.Expenses {
		summary.TotalExpenses += expense.Amount
	}
	for _, product := range in.Products {
		if product.LowStock(in.LowStockThreshold) {
			summary.LowStockProducts++
		}
	}
	summary.NetProfit = summary.GrossProfit - summary.TotalExpenses
	summary.MarginPercent = Margin(summary.GrossProfit, summary.NetRevenue)
	return summary
}

func ProductsByCategory(products []domain.Product) []domain.NamedCount {
	counts := make(map[string]int)
	for _, product := range products {
		counts[product.Category]++
	}
	return sortedCounts(counts)
}

// CustomerTypes counts customers per type. A blank type counts as regular.
func CustomerTypes(customers []domain.Customer) []domain.NamedCount {
	counts := make(map[string]int)
	for _, customer := range customers {
		kind := customer.CustomerType
		if kind == "" {
			kind = domain.CustomerTypeRegular
		}
		counts[kind]++
	}
	return sortedCounts(counts)
}

func ExpensesByCategory(expenses []domain.Expense) []domain.CategoryAmount {
	totals := make(map[string]int64)
	for _, expense := range expenses {
		totals[expense.Category] += expense.Amount
	}
	result := make([]domain.CategoryAmount, 0, len(totals))
	for category, amount := range totals {
		result = append(result, domain.CategoryAmount{Category: category, Amount: amount})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Amount == result[j].Amount {
			return result[i].Category < result[j].Category
		}
		return result[i].Amount > result[j].Amount
	})
	return result
}

func sortedCounts(counts map[string]int) []domain.NamedCount {
	result := make([]domain.NamedCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, domain.NamedCount{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count == result[j].Count {
			return result[i].Name < result[j].Name
		}
		return result[i].Count > result[j].Count
	})
	return result
}
