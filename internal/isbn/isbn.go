// file: internal/isbn/isbn.go
// version: 1.0.0
// guid: 3f8a1c2d-9b4e-4f6a-8d1c-7e2b5a9c0d4f

package isbn

import "strings"

// Normalize strips everything except digits and the letter X and uppercases.
// Returns "" for empty input.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'X' || r == 'x':
			b.WriteRune('X')
		}
	}
	return b.String()
}

// ToISBN13 converts a 10-digit ISBN to its 978-prefixed 13-digit form.
// Returns "" if the normalized input is not exactly 10 characters.
// The input's own check digit is not verified.
func ToISBN13(isbn10 string) string {
	normalized := Normalize(isbn10)
	if len(normalized) != 10 {
		return ""
	}

	base := "978" + normalized[:9]
	sum := 0
	for i := 0; i < 12; i++ {
		digit := int(base[i] - '0')
		if i%2 == 0 {
			sum += digit
		} else {
			sum += digit * 3
		}
	}
	check := (10 - sum%10) % 10
	return base + string(rune('0'+check))
}

// ToISBN10 converts a 978-prefixed 13-digit ISBN to its 10-digit form.
// Non-978 codes have no 10-digit equivalent and yield "".
func ToISBN10(isbn13 string) string {
	normalized := Normalize(isbn13)
	if len(normalized) != 13 {
		return ""
	}
	if !strings.HasPrefix(normalized, "978") {
		return ""
	}

	base := normalized[3:12]
	sum := 0
	for i := 0; i < 9; i++ {
		sum += int(base[i]-'0') * (10 - i)
	}
	remainder := (11 - sum%11) % 11
	if remainder == 10 {
		return base + "X"
	}
	return base + string(rune('0'+remainder))
}

// AllVariants normalizes each raw identifier and cross-derives its 10/13-digit
// counterpart. Each value is followed immediately by its derived form, with
// duplicates removed in first-seen order.
func AllVariants(raws ...string) []string {
	seen := make(map[string]bool)
	var variants []string

	add := func(v string) {
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		variants = append(variants, v)
	}

	for _, raw := range raws {
		normalized := Normalize(raw)
		if normalized == "" {
			continue
		}
		add(normalized)

		switch len(normalized) {
		case 10:
			add(ToISBN13(normalized))
		case 13:
			add(ToISBN10(normalized))
		}
	}

	return variants
}
