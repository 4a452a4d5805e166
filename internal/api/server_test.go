package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"querybot/internal/common/logger"
	"querybot/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	lastQuestion string
	lastFormat   string
	lastSession  string
	deadline     bool
}

func (f *fakeBot) Ask(ctx context.Context, question, formatInstruction, sessionID string) *models.QueryResult {
	f.lastQuestion, f.lastFormat, f.lastSession = question, formatInstruction, sessionID
	_, f.deadline = ctx.Deadline()
	res := models.NewQueryResult("There are 3 students.", []string{"SELECT COUNT(*) FROM students"})
	res.Outcome = models.OutcomeReasoned
	return res
}

func (f *fakeBot) GenerateReport(_ context.Context, description, formatType, sessionID string) *models.QueryResult {
	f.lastQuestion, f.lastFormat, f.lastSession = description, formatType, sessionID
	return models.NewQueryResult("report", nil)
}

func (f *fakeBot) Reports() []models.ReportSummary {
	return []models.ReportSummary{{ID: "AT1201", Name: "Daily Attendance"}}
}

func (f *fakeBot) Report(id string) (*models.ReportTemplate, bool) {
	if id != "AT1201" {
		return nil, false
	}
	return &models.ReportTemplate{ID: "AT1201", Name: "Daily Attendance", Query: "SELECT * FROM attendance WHERE date='{date}'"}, true
}

type pingFunc func(ctx context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func init() {
	gin.SetMode(gin.TestMode)
}

func newServer(t *testing.T, bot *fakeBot, checks map[string]Pinger) http.Handler {
	t.Helper()
	return NewServer(bot, checks, time.Minute, logger.NewTestLogger(t)).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAsk(t *testing.T) {
	bot := &fakeBot{}
	h := newServer(t, bot, nil)

	w := do(t, h, http.MethodPost, "/ask", `{"question":"How many students?","format_instruction":"one line","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "There are 3 students.", body["answer"])
	assert.Equal(t, []interface{}{"SELECT COUNT(*) FROM students"}, body["sql_queries"])
	assert.NotContains(t, body, "error")
	assert.NotContains(t, body, "Outcome")

	assert.Equal(t, "How many students?", bot.lastQuestion)
	assert.Equal(t, "one line", bot.lastFormat)
	assert.Equal(t, "s1", bot.lastSession)
	assert.True(t, bot.deadline)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	newServer(t, &fakeBot{}, nil).ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestAsk_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `question=hi`},
		{"missing question", `{"session_id":"s1"}`},
		{"blank question", `{"question":"  "}`},
		{"wrong type", `{"question":["a"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := &fakeBot{}
			w := do(t, newServer(t, bot, nil), http.MethodPost, "/ask", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "INVALID_REQUEST", resp.Code)
			assert.Empty(t, bot.lastQuestion)
		})
	}
}

func TestGenerateReport(t *testing.T) {
	bot := &fakeBot{}
	w := do(t, newServer(t, bot, nil), http.MethodPost, "/reports/generate", `{"description":"fees overdue","format_type":"csv"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fees overdue", bot.lastQuestion)
	assert.Equal(t, "csv", bot.lastFormat)
	assert.JSONEq(t, `{"answer":"report","sql_queries":[]}`, w.Body.String())
}

func TestReports(t *testing.T) {
	h := newServer(t, &fakeBot{}, nil)

	w := do(t, h, http.MethodGet, "/reports", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reports":[{"id":"AT1201","name":"Daily Attendance"}]}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/reports/AT1201", "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail ReportDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, []string{"date"}, detail.Variables)

	w = do(t, h, http.MethodGet, "/reports/ZZ0000", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "TEMPLATE_NOT_FOUND")
}

func TestHealthAndReady(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	w := do(t, newServer(t, &fakeBot{}, map[string]Pinger{"database": ok}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, newServer(t, &fakeBot{}, map[string]Pinger{"database": ok}), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready"`)

	w = do(t, newServer(t, &fakeBot{}, map[string]Pinger{"database": ok, "redis": down}), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetrics(t *testing.T) {
	w := do(t, newServer(t, &fakeBot{}, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
