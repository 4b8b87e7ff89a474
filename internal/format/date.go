package format

import (
	"errors"
	"strings"
	"time"
	_ "time/tzdata"
)

const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

var shopLocation = loadLocation("America/Bogota")

var monthNames = [...]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

var shortMonthNames = [...]string{
	"ene", "feb", "mar", "abr", "may", "jun",
	"jul", "ago", "sep", "oct", "nov", "dic",
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Colombia has no DST.
		return time.FixedZone("COT", -5*60*60)
	}
	return loc
}

// SetLocation switches the shop time zone. Unknown names keep the current one.
func SetLocation(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return false
	}
	shopLocation = loc
	return true
}

func Location() *time.Location {
	return shopLocation
}

func FormatDate(t time.Time) string {
	return t.In(shopLocation).Format(DateLayout)
}

// ParseDate reads a calendar date as midnight in the shop time zone.
func ParseDate(raw string) (time.Time, error) {
	parsed, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), shopLocation)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return parsed, nil
}

func Today(now time.Time) string {
	return FormatDate(now)
}

// StartOfDay truncates t to midnight in the shop time zone.
func StartOfDay(t time.Time) time.Time {
	local := t.In(shopLocation)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, shopLocation)
}

func MonthName(month time.Month) string {
	if month < time.January || month > time.December {
		return ""
	}
	return monthNames[month-1]
}

func ShortMonthName(month time.Month) string {
	if month < time.January || month > time.December {
		return ""
	}
	return shortMonthNames[month-1]
}

// Age counts completed years between birth and today.
func Age(birth time.Time, today time.Time) int {
	today = StartOfDay(today)
	age := today.Year() - birth.Year()
	if today.Month() < birth.Month() || (today.Month() == birth.Month() && today.Day() < birth.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// DaysUntilBirthday is 0 on the birthday itself. Feb 29 birthdays fall on
// Mar 1 in common years.
func DaysUntilBirthday(birth time.Time, today time.Time) int {
	today = StartOfDay(today)
	next := birthdayIn(birth, today.Year())
	if next.Before(today) {
		next = birthdayIn(birth, today.Year()+1)
	}
	return int(next.Sub(today).Round(time.Hour).Hours() / 24)
}

func birthdayIn(birth time.Time, year int) time.Time {
	return time.Date(year, birth.Month(), birth.Day(), 0, 0, 0, 0, shopLocation)
}
