package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"magiainterna/backend/internal/analytics"
	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/format"
)

const (
	PeriodYear  = "year"
	PeriodMonth = "month"
	PeriodWeek  = "week"
	PeriodDay   = "day"

	maxRangeDays = 366
)

type ProfitQuery struct {
	Period string
	Year   int
	Month  int
	From   string
	To     string
}

func (s *Service) Dashboard(ctx context.Context, year int) (domain.Dashboard, error) {
	year = s.defaultYear(year)
	return cached(ctx, s, fmt.Sprintf("dashboard:%d", year), func() (domain.Dashboard, error) {
		from, to := yearRange(year)
		sales, err := s.repo.ListSalesWithItems(ctx, from, to)
		if err != nil {
			return domain.Dashboard{}, err
		}
		expenses, err := s.repo.ListExpenses(ctx, domain.ExpenseFilter{From: &from, To: &to})
		if err != nil {
			return domain.Dashboard{}, err
		}
		products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
		if err != nil {
			return domain.Dashboard{}, err
		}
		customers, err := s.repo.ListCustomers(ctx, domain.CustomerFilter{})
		if err != nil {
			return domain.Dashboard{}, err
		}
		customers = withoutAnonymous(customers)
		threshold := s.threshold(ctx)
		lowStock, err := s.repo.ListLowStockProducts(ctx, threshold)
		if err != nil {
			return domain.Dashboard{}, err
		}

		agg := analytics.New(format.Location(), productCosts(products))
		return domain.Dashboard{
			Year: year,
			Summary: agg.Summary(analytics.SummaryInput{
				Sales:             sales,
				Expenses:          expenses,
				Products:          products,
				Customers:         customers,
				LowStockThreshold: threshold,
			}),
			Monthly:            agg.Monthly(sales, year),
			ProductsByCategory: analytics.ProductsByCategory(products),
			ExpensesByCategory: analytics.ExpensesByCategory(expenses),
			CustomerTypes:      analytics.CustomerTypes(customers),
			PaymentMethods:     analytics.PaymentMethodShare(sales),
			LowStock:           lowStock,
		}, nil
	})
}

// ProfitReport buckets profit by month for a year, by day for a month, or
// by ISO week or day over an explicit range.
func (s *Service) ProfitReport(ctx context.Context, q ProfitQuery) (domain.ProfitReport, error) {
	period := strings.ToLower(strings.TrimSpace(q.Period))
	if period == "" {
		period = PeriodYear
	}

	var from, last time.Time
	switch period {
	case PeriodYear:
		q.Year = s.defaultYear(q.Year)
		from, _ = yearRange(q.Year)
		last = from.AddDate(1, 0, -1)
	case PeriodMonth:
		q.Year = s.defaultYear(q.Year)
		if q.Month == 0 {
			q.Month = int(s.now().In(format.Location()).Month())
		}
		if q.Month < 1 || q.Month > 12 {
			return domain.ProfitReport{}, invalidf("month must be between 1 and 12")
		}
		from = time.Date(q.Year, time.Month(q.Month), 1, 0, 0, 0, 0, format.Location())
		last = from.AddDate(0, 1, -1)
	case PeriodWeek, PeriodDay:
		var err error
		from, last, err = parseRange(q.From, q.To)
		if err != nil {
			return domain.ProfitReport{}, err
		}
	default:
		return domain.ProfitReport{}, invalidf("period must be year, month, week or day")
	}

	key := fmt.Sprintf("profit:%s:%s:%s", period, format.FormatDate(from), format.FormatDate(last))
	return cached(ctx, s, key, func() (domain.ProfitReport, error) {
		sales, err := s.repo.ListSalesWithItems(ctx, from, last.AddDate(0, 0, 1))
		if err != nil {
			return domain.ProfitReport{}, err
		}
		agg := analytics.New(format.Location(), nil)

		var buckets []domain.ProfitBucket
		switch period {
		case PeriodYear:
			buckets = agg.Monthly(sales, q.Year)
		case PeriodWeek:
			buckets = agg.Weekly(sales, from, last)
		default:
			buckets = agg.Daily(sales, from, last)
		}
		totals := analytics.Totals(buckets)
		return domain.ProfitReport{
			Period:  period,
			From:    format.FormatDate(from),
			To:      format.FormatDate(last),
			Buckets: buckets,
			Totals:  totals,
			Margin:  analytics.Margin(totals.Profit, totals.Revenue),
		}, nil
	})
}

func (s *Service) CategoryUnits(ctx context.Context, year int) (domain.CategoryUnitsReport, error) {
	year = s.defaultYear(year)
	return cached(ctx, s, fmt.Sprintf("category-units:%d", year), func() (domain.CategoryUnitsReport, error) {
		from, to := yearRange(year)
		sales, err := s.repo.ListSalesWithItems(ctx, from, to)
		if err != nil {
			return domain.CategoryUnitsReport{}, err
		}
		return analytics.New(format.Location(), nil).CategoryUnitsByMonth(sales, year), nil
	})
}

// PaymentShare defaults to the current year when no range is given.
func (s *Service) PaymentShare(ctx context.Context, fromRaw string, toRaw string) ([]domain.PaymentShare, error) {
	var from, last time.Time
	if strings.TrimSpace(fromRaw) == "" && strings.TrimSpace(toRaw) == "" {
		from, _ = yearRange(s.defaultYear(0))
		last = from.AddDate(1, 0, -1)
	} else {
		var err error
		from, last, err = parseRange(fromRaw, toRaw)
		if err != nil {
			return nil, err
		}
	}

	key := fmt.Sprintf("payment-share:%s:%s", format.FormatDate(from), format.FormatDate(last))
	return cached(ctx, s, key, func() ([]domain.PaymentShare, error) {
		sales, err := s.repo.ListSalesWithItems(ctx, from, last.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}
		return analytics.PaymentMethodShare(sales), nil
	})
}

func (s *Service) defaultYear(year int) int {
	if year < 1 {
		return s.now().In(format.Location()).Year()
	}
	return year
}

func yearRange(year int) (time.Time, time.Time) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, format.Location())
	return from, from.AddDate(1, 0, 0)
}

// parseRange returns the first and last calendar day of an inclusive range.
func parseRange(fromRaw string, toRaw string) (time.Time, time.Time, error) {
	from, err := format.ParseDate(fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, invalidf("from: %v", err)
	}
	last, err := format.ParseDate(toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, invalidf("to: %v", err)
	}
	if last.Before(from) {
		return time.Time{}, time.Time{}, invalidf("to must not be before from")
	}
	if last.Sub(from) > maxRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, invalidf("range must not exceed %d days", maxRangeDays)
	}
	return from, last, nil
}

func productCosts(products []domain.Product) map[string]int64 {
	costs := make(map[string]int64, len(products))
	for _, p := range products {
		costs[p.ID] = p.Cost
	}
	return costs
}

func withoutAnonymous(customers []domain.Customer) []domain.Customer {
	result := make([]domain.Customer, 0, len(customers))
	for _, c := range customers {
		if c.CustomerType == domain.CustomerTypeAnonymous {
			continue
		}
		result = append(result, c)
	}
	return result
}
