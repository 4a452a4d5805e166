package reports

import (
	"regexp"
	"sort"
	"strings"

	"querybot/internal/models"
)

// Parameters maps a placeholder name to the literal text extracted for it.
type Parameters map[string]string

var (
	datePattern    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	integerPattern = regexp.MustCompile(`\d+`)
	quotedPattern  = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	numericPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

	// {name}
	bracePlaceholder = regexp.MustCompile(`\{(\w+)\}`)
	// :name, but not ::cast or 10:30
	colonPlaceholder = regexp.MustCompile(`(^|[^:\w]):([A-Za-z_]\w*)`)
)

// ExtractParameters pulls ISO dates and integers out of free text and fans them
// out to the conventional placeholder names. The first date fills every date
// slot and the first integer fills every integer slot; integers inside dates count.
func ExtractParameters(text string) Parameters {
	params := Parameters{}

	dates := datePattern.FindAllString(text, -1)
	if len(dates) > 0 {
		params["date"] = dates[0]
		if len(dates) > 1 {
			params["start_date"] = dates[0]
			params["end_date"] = dates[1]
		}
	}

	numbers := integerPattern.FindAllString(text, -1)
	if len(numbers) > 0 {
		for _, name := range []string{"value", "class_id", "teacher_id", "student_id"} {
			params[name] = numbers[0]
		}
		if len(numbers) > 1 {
			params["min_value"] = numbers[0]
			params["max_value"] = numbers[1]
			params["min_balance"] = numbers[0]
			params["max_balance"] = numbers[1]
		}
	}

	return params
}

// resolveSlot extracts the value for a declared slot kind. Unlike the fan-out,
// numeric slots only consider integers that are not part of a date.
func resolveSlot(kind models.SlotKind, text string) (string, bool) {
	switch kind {
	case models.SlotDate:
		if d := datePattern.FindString(text); d != "" {
			return d, true
		}
	case models.SlotStartDate, models.SlotEndDate:
		dates := datePattern.FindAllString(text, 2)
		if len(dates) < 2 {
			return "", false
		}
		if kind == models.SlotStartDate {
			return dates[0], true
		}
		return dates[1], true
	case models.SlotNumber:
		if nums := bareIntegers(text); len(nums) > 0 {
			return nums[0], true
		}
	case models.SlotMinNumber, models.SlotMaxNumber:
		nums := bareIntegers(text)
		if len(nums) < 2 {
			return "", false
		}
		if kind == models.SlotMinNumber {
			return nums[0], true
		}
		return nums[1], true
	case models.SlotText:
		if m := quotedPattern.FindStringSubmatch(text); m != nil {
			if m[1] != "" {
				return m[1], true
			}
			return m[2], true
		}
	}
	return "", false
}

func bareIntegers(text string) []string {
	return integerPattern.FindAllString(datePattern.ReplaceAllString(text, " "), -1)
}

// NormalizePlaceholders rewrites :name placeholders into {name} form.
func NormalizePlaceholders(query string) string {
	return colonPlaceholder.ReplaceAllString(query, "${1}{${2}}")
}

// Placeholders returns the distinct placeholder names of query, sorted.
func Placeholders(query string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range bracePlaceholder.FindAllStringSubmatch(NormalizePlaceholders(query), -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// substitute fills every {name} occurrence. Numeric values go in bare, anything
// else is single quoted unless the placeholder sits inside a string literal of
// the template, as in '{date}' or LIKE '%{name}%'.
func substitute(query string, values map[string]string) string {
	var b strings.Builder
	last := 0
	for _, loc := range bracePlaceholder.FindAllStringSubmatchIndex(query, -1) {
		start, end := loc[0], loc[1]
		name := query[loc[2]:loc[3]]

		b.WriteString(query[last:start])
		last = end

		value, ok := values[name]
		if !ok {
			b.WriteString(query[start:end])
			continue
		}

		escaped := strings.ReplaceAll(value, "'", "''")
		switch {
		case insideLiteral(query[:start]), numericPattern.MatchString(value):
			b.WriteString(escaped)
		default:
			b.WriteString("'" + escaped + "'")
		}
	}
	b.WriteString(query[last:])
	return b.String()
}

// insideLiteral reports whether the text following prefix is inside a single
// quoted SQL string. A doubled '' escape counts twice, so parity still holds.
func insideLiteral(prefix string) bool {
	return strings.Count(prefix, "'")%2 == 1
}
