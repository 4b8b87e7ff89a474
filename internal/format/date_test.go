package format

import (
	"testing"
	"time"
)

func TestParseDateKeepsCalendarDay(t *testing.T) {
	parsed, err := ParseDate("1990-07-15")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := FormatDate(parsed); got != "1990-07-15" {
		t.Fatalf("expected 1990-07-15, got %s", got)
	}
	if _, err := ParseDate("15/07/1990"); err == nil {
		t.Fatalf("expected error for non ISO date")
	}
}

func TestTodayUsesShopZone(t *testing.T) {
	// 03:00 UTC is still the previous evening in Bogotá.
	now := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	if got := Today(now); got != "2025-03-09" {
		t.Fatalf("expected 2025-03-09, got %s", got)
	}
}

func TestAgeBeforeAndAfterBirthday(t *testing.T) {
	birth, _ := ParseDate("1990-07-15")
	before, _ := ParseDate("2025-07-14")
	onDay, _ := ParseDate("2025-07-15")
	if got := Age(birth, before); got != 34 {
		t.Fatalf("expected 34 the day before, got %d", got)
	}
	if got := Age(birth, onDay); got != 35 {
		t.Fatalf("expected 35 on the birthday, got %d", got)
	}
}

func TestDaysUntilBirthdayRollsOver(t *testing.T) {
	birth, _ := ParseDate("1990-07-15")
	today, _ := ParseDate("2025-07-10")
	if got := DaysUntilBirthday(birth, today); got != 5 {
		t.Fatalf("expected 5 days, got %d", got)
	}
	onDay, _ := ParseDate("2025-07-15")
	if got := DaysUntilBirthday(birth, onDay); got != 0 {
		t.Fatalf("expected 0 on the day, got %d", got)
	}
	after, _ := ParseDate("2025-07-16")
	if got := DaysUntilBirthday(birth, after); got != 364 {
		t.Fatalf("expected 364 days after passing, got %d", got)
	}
}

func TestDaysUntilLeapDayBirthday(t *testing.T) {
	birth, _ := ParseDate("2000-02-29")
	today, _ := ParseDate("2025-02-27")
	if got := DaysUntilBirthday(birth, today); got != 2 {
		t.Fatalf("expected Mar 1 to be 2 days away, got %d", got)
	}
}

func TestMonthNames(t *testing.T) {
	if MonthName(time.January) != "Enero" || MonthName(time.December) != "Diciembre" {
		t.Fatalf("unexpected month names")
	}
	if ShortMonthName(time.August) != "ago" {
		t.Fatalf("unexpected short month name %q", ShortMonthName(time.August))
	}
}
