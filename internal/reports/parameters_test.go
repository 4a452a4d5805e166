package reports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractParameters(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Parameters
	}{
		{
			name: "nothing",
			text: "hello",
			want: Parameters{},
		},
		{
			name: "single date also yields integers",
			text: "on 2024-05-15",
			want: Parameters{
				"date": "2024-05-15", "value": "2024", "class_id": "2024", "teacher_id": "2024", "student_id": "2024",
				"min_value": "2024", "max_value": "05", "min_balance": "2024", "max_balance": "05",
			},
		},
		{
			name: "two integers",
			text: "between 10 and 20",
			want: Parameters{
				"value": "10", "class_id": "10", "teacher_id": "10", "student_id": "10",
				"min_value": "10", "max_value": "20", "min_balance": "10", "max_balance": "20",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractParameters(tt.text))
		})
	}
}

func TestExtractParameters_DateRange(t *testing.T) {
	p := ExtractParameters("from 2024-01-01 to 2024-01-31")
	assert.Equal(t, "2024-01-01", p["date"])
	assert.Equal(t, "2024-01-01", p["start_date"])
	assert.Equal(t, "2024-01-31", p["end_date"])
}

func TestNormalizePlaceholders(t *testing.T) {
	assert.Equal(t, "WHERE a = {x} AND b = {y}", NormalizePlaceholders("WHERE a = :x AND b = {y}"))
	assert.Equal(t, "SELECT d::date", NormalizePlaceholders("SELECT d::date"))
	assert.Equal(t, "WHERE t > '10:30'", NormalizePlaceholders("WHERE t > '10:30'"))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Placeholders("{b} {a} :b"))
	assert.Empty(t, Placeholders("SELECT 1"))
}

func TestSubstitute(t *testing.T) {
	values := map[string]string{"n": "42", "s": "x'y", "d": "2024-05-15"}

	assert.Equal(t, "a = 42", substitute("a = {n}", values))
	assert.Equal(t, "a = 'x''y'", substitute("a = {s}", values))
	assert.Equal(t, "a = '2024-05-15'", substitute("a = '{d}'", values))
	assert.Equal(t, "a = {missing}", substitute("a = {missing}", values))
}

func TestSubstitute_InsideStringLiteral(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   map[string]string
		want     string
	}{
		{"like pattern", "name LIKE '%{name}%'", map[string]string{"name": "Ann"}, "name LIKE '%Ann%'"},
		{"apostrophe escaped", "name LIKE '%{name}%'", map[string]string{"name": "O'Brien"}, "name LIKE '%O''Brien%'"},
		{"prefix pattern", "code LIKE '{p}%'", map[string]string{"p": "AB"}, "code LIKE 'AB%'"},
		{"number in literal", "ref = 'R-{n}'", map[string]string{"n": "12"}, "ref = 'R-12'"},
		{"after closed literal", "a = 'x' AND b = {s}", map[string]string{"s": "y"}, "a = 'x' AND b = 'y'"},
		{"after escaped quote", "a = 'it''s' AND b = {s}", map[string]string{"s": "y"}, "a = 'it''s' AND b = 'y'"},
		{"two in one literal", "d = '{y}-{m}'", map[string]string{"y": "2024", "m": "May"}, "d = '2024-May'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substitute(tt.template, tt.values))
		})
	}
}
