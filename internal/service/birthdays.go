package service

import (
	"context"
	"sort"
	"time"

	"magiainterna/backend/internal/domain"
	"magiainterna/backend/internal/format"
)

const upcomingBirthdayDays = 30

// Birthdays lists customers by birth month, the current month in full, and
// the birthdays falling within the next 30 days.
func (s *Service) Birthdays(ctx context.Context) (domain.BirthdayOverview, error) {
	customers, err := s.repo.ListCustomers(ctx, domain.CustomerFilter{WithBirthDate: true})
	if err != nil {
		return domain.BirthdayOverview{}, err
	}

	today := format.StartOfDay(s.now())
	byMonth := make(map[time.Month][]domain.BirthdayCustomer)
	upcoming := make([]domain.BirthdayCustomer, 0, 8)
	birthDays := make(map[string]int, len(customers))
	for _, c := range customers {
		if c.CustomerType == domain.CustomerTypeAnonymous || !c.Active {
			continue
		}
		birth, err := format.ParseDate(c.BirthDate)
		if err != nil {
			continue
		}
		entry := domain.BirthdayCustomer{
			ID:           c.ID,
			Name:         c.Name,
			BirthDate:    c.BirthDate,
			Email:        c.Email,
			Phone:        c.Phone,
			CustomerType: c.CustomerType,
			Age:          format.Age(birth, today),
			DaysUntil:    format.DaysUntilBirthday(birth, today),
		}
		birthDays[c.ID] = birth.Day()
		byMonth[birth.Month()] = append(byMonth[birth.Month()], entry)
		if entry.DaysUntil > 0 && entry.DaysUntil <= upcomingBirthdayDays {
			upcoming = append(upcoming, entry)
		}
	}

	byDay := func(list []domain.BirthdayCustomer) {
		sort.Slice(list, func(i, j int) bool {
			if birthDays[list[i].ID] != birthDays[list[j].ID] {
				return birthDays[list[i].ID] < birthDays[list[j].ID]
			}
			return list[i].Name < list[j].Name
		})
	}

	overview := domain.BirthdayOverview{
		Today:    format.FormatDate(today),
		Upcoming: upcoming,
		ByMonth:  make([]domain.BirthdayMonth, 0, len(byMonth)),
	}
	for m := time.January; m <= time.December; m++ {
		list, ok := byMonth[m]
		if !ok {
			continue
		}
		byDay(list)
		overview.ByMonth = append(overview.ByMonth, domain.BirthdayMonth{Month: int(m), Name: format.MonthName(m), Customers: list})
	}

	current := today.Month()
	currentList := byMonth[current]
	if currentList == nil {
		currentList = []domain.BirthdayCustomer{}
	}
	overview.CurrentMonth = domain.BirthdayMonth{Month: int(current), Name: format.MonthName(current), Customers: currentList}

	sort.Slice(overview.Upcoming, func(i, j int) bool {
		if overview.Upcoming[i].DaysUntil != overview.Upcoming[j].DaysUntil {
			return overview.Upcoming[i].DaysUntil < overview.Upcoming[j].DaysUntil
		}
		return overview.Upcoming[i].Name < overview.Upcoming[j].Name
	})
	return overview, nil
}
