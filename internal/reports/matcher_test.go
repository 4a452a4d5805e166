package reports

import (
	"os"
	"path/filepath"
	"testing"

	"querybot/internal/common/logger"
	"querybot/internal/models"
	"querybot/pkg/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	reg := registry.New(
		&models.ReportTemplate{ID: "AT1201", Name: "Daily Attendance", Query: "SELECT * FROM t WHERE d='{date}'"},
		&models.ReportTemplate{ID: "AT1202", Name: "Attendance Range", Query: "SELECT * FROM t WHERE d BETWEEN :start_date AND :end_date"},
		&models.ReportTemplate{ID: "CL3301", Name: "Class Roster", Query: "SELECT * FROM students WHERE class_id = {class_id}"},
		&models.ReportTemplate{
			ID:         "FE4401",
			Name:       "Fee Balances",
			Query:      "SELECT * FROM fees WHERE due < {cutoff} AND balance BETWEEN {lo} AND {hi}",
			Parameters: map[string]models.SlotKind{"cutoff": models.SlotDate, "lo": models.SlotMinNumber, "hi": models.SlotMaxNumber},
		},
		&models.ReportTemplate{ID: "ST5501", Name: "Student Lookup", Query: "SELECT * FROM students WHERE name = {name}", Parameters: map[string]models.SlotKind{"name": models.SlotText}},
	)
	return NewMatcher(reg, nil)
}

func TestFindReportID(t *testing.T) {
	m := newTestMatcher(t)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"exact", "show AT1201 for 2024-05-15", "AT1201"},
		{"case insensitive", "run at1201 please", "AT1201"},
		{"store order wins", "CL3301 and AT1201", "AT1201"},
		{"not a whole word", "XAT1201 report", ""},
		{"suffix glued", "AT12015", ""},
		{"no id", "how many students are enrolled?", ""},
		{"punctuation boundary", "report:CL3301.", "CL3301"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.FindReportID(tt.text))
		})
	}
}

func TestFormatQuery_QuotedTemplate(t *testing.T) {
	m := newTestMatcher(t)

	q, ok := m.FormatQuery("AT1201", "show AT1201 for 2024-05-15")
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM t WHERE d='2024-05-15'", q)
	assert.Empty(t, m.MissingVariables("AT1201", "show AT1201 for 2024-05-15"))
}

func TestFormatQuery_ColonPlaceholders(t *testing.T) {
	m := newTestMatcher(t)

	q, ok := m.FormatQuery("AT1202", "AT1202 from 2024-01-01 to 2024-01-31")
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM t WHERE d BETWEEN '2024-01-01' AND '2024-01-31'", q)
}

func TestFormatQuery_IDDigitsIgnored(t *testing.T) {
	m := newTestMatcher(t)

	q, _ := m.FormatQuery("CL3301", "roster CL3301 class 7")
	assert.Equal(t, "SELECT * FROM students WHERE class_id = 7", q)

	assert.Equal(t, []string{"class_id"}, m.MissingVariables("CL3301", "roster CL3301"))
}

func TestFormatQuery_DeclaredSlots(t *testing.T) {
	m := newTestMatcher(t)

	text := "FE4401 due before 2024-06-30 balance 100 to 500"
	q, ok := m.FormatQuery("FE4401", text)
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM fees WHERE due < '2024-06-30' AND balance BETWEEN 100 AND 500", q)
	assert.Empty(t, m.MissingVariables("FE4401", text))

	assert.Equal(t, []string{"hi", "lo"}, m.MissingVariables("FE4401", "FE4401 due before 2024-06-30 over 100"))
}

func TestFormatQuery_TextSlotEscaped(t *testing.T) {
	m := newTestMatcher(t)

	q, _ := m.FormatQuery("ST5501", `find ST5501 for "O'Brien"`)
	assert.Equal(t, "SELECT * FROM students WHERE name = 'O''Brien'", q)
}

func TestFormatQuery_Idempotent(t *testing.T) {
	m := newTestMatcher(t)

	first, _ := m.FormatQuery("AT1202", "AT1202 from 2024-01-01 to 2024-01-31")
	second, _ := m.FormatQuery("AT1202", "AT1202 from 2024-01-01 to 2024-01-31")
	assert.Equal(t, first, second)
}

func TestFormatQuery_UnknownReport(t *testing.T) {
	m := newTestMatcher(t)

	_, ok := m.FormatQuery("NOPE", "anything")
	assert.False(t, ok)
	assert.Nil(t, m.MissingVariables("NOPE", "anything"))
}

func TestMissingVariables(t *testing.T) {
	m := newTestMatcher(t)

	assert.Equal(t, []string{"date"}, m.MissingVariables("AT1201", "show AT1201"))
	assert.Equal(t, []string{"end_date", "start_date"}, m.MissingVariables("AT1202", "AT1202 from 2024-01-01"))
}

func TestMissingVariablesMessage(t *testing.T) {
	m := newTestMatcher(t)
	tpl, ok := m.Template("AT1201")
	require.True(t, ok)

	assert.Equal(t,
		"Report AT1201 (Daily Attendance) requires additional information: date. Please include them in your question.",
		MissingVariablesMessage(tpl, []string{"date"}),
	)
}

func TestLogExecution(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.log")
	audit, err := logger.NewFile(path)
	require.NoError(t, err)

	reg := registry.New(&models.ReportTemplate{ID: "AT1201", Name: "Daily Attendance", Query: "SELECT 1"})
	m := NewMatcher(reg, audit)
	m.LogExecution("AT1201", "SELECT 1")
	m.LogExecution("ZZ0000", "SELECT 2")
	_ = audit.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"reportId":"AT1201"`)
	assert.Contains(t, string(data), `"reportName":"Daily Attendance"`)
	assert.Contains(t, string(data), `"reportName":"Unknown"`)
}

func TestFormatQuery_TextSlotInsideLikePattern(t *testing.T) {
	reg := registry.New(&models.ReportTemplate{
		ID:         "ST5502",
		Name:       "Student Search",
		Query:      "SELECT * FROM students WHERE name LIKE '%{name}%'",
		Parameters: map[string]models.SlotKind{"name": models.SlotText},
	})
	m := NewMatcher(reg, nil)

	q, ok := m.FormatQuery("ST5502", `ST5502 matching "O'Brien"`)
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM students WHERE name LIKE '%O''Brien%'", q)
}
