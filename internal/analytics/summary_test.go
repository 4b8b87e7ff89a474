package analytics

import (
	"testing"

	"magiainterna/backend/internal/domain"
)

func TestSummaryNetsExpensesAgainstProfit(t *testing.T) {
	summary := newTestAggregator().Summary(SummaryInput{
		Sales: sampleSales()[:1],
		Expenses: []domain.Expense{
			{Amount: 15000, Category: "arriendo"},
			{Amount: 5000, Category: "servicios"},
		},
		Products: []domain.Product{
			{StockQuantity: 2, MinStock: 1},
			{StockQuantity: 40, MinStock: 10},
		},
		Customers:         []domain.Customer{{CustomerType: "vip"}},
		LowStockThreshold: 5,
	})

	if summary.TotalSales != 106000 || summary.NetRevenue != 103000 {
		t.Fatalf("unexpected sales totals %+v", summary)
	}
	if summary.GrossProfit != 40000 || summary.NetProfit != 20000 {
		t.Fatalf("expected gross 40000 and net 20000, got %+v", summary)
	}
	if summary.LowStockProducts != 1 || summary.TotalProducts != 2 || summary.TotalCustomers != 1 {
		t.Fatalf("unexpected counts %+v", summary)
	}
	if summary.MarginPercent != 39 {
		t.Fatalf("expected margin 39, got %d", summary.MarginPercent)
	}
}

func TestCustomerTypesDefaultsToRegular(t *testing.T) {
	types := CustomerTypes([]domain.Customer{{}, {CustomerType: "regular"}, {CustomerType: "vip"}})
	if len(types) != 2 || types[0].Name != "regular" || types[0].Count != 2 {
		t.Fatalf("unexpected customer types %+v", types)
	}
}

func TestExpensesByCategorySortsByAmount(t *testing.T) {
	result := ExpensesByCategory([]domain.Expense{
		{Category: "servicios", Amount: 100},
		{Category: "arriendo", Amount: 900},
		{Category: "servicios", Amount: 50},
	})
	if len(result) != 2 || result[0].Category != "arriendo" || result[1].Amount != 150 {
		t.Fatalf("unexpected grouping %+v", result)
	}
}

func TestProductsByCategory(t *testing.T) {
	result := ProductsByCategory([]domain.Product{{Category: "blusas"}, {Category: "blusas"}, {Category: "vestidos"}})
	if result[0].Name != "blusas" || result[0].Count != 2 {
		t.Fatalf("unexpected grouping %+v", result)
	}
}
