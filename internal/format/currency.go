package format

import (
	"strconv"
	"strings"
)

// FormatCOP renders whole pesos the way receipts print them: "$129.000".
func FormatCOP(amount int64) string {
	if amount < 0 {
		return "-$" + groupThousands(strconv.FormatInt(-amount, 10))
	}
	return "$" + groupThousands(strconv.FormatInt(amount, 10))
}

// ParseCOP is lenient: anything that is not a number after stripping the
// currency sign, spaces and thousands dots is 0.
func ParseCOP(raw string) int64 {
	cleaned := strings.NewReplacer("$", "", ".", "", " ", "", "\t", "", "\u00a0", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0
	}
	value, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

// FormatInputForDisplay echoes a typed amount back with dot grouping and no
// sign. Every non-digit is dropped first, so "-5" reads as 5.
func FormatInputForDisplay(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return ""
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		digits = "0"
	}
	return groupThousands(digits)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
