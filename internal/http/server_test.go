package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
	"fintrack/internal/goals"
	"fintrack/internal/insights"
	"fintrack/internal/ledger/memory"
	"fintrack/internal/log"
	"fintrack/internal/metrics"
	"fintrack/internal/services"
)

var fixedNow = time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	store *memory.Store
}

func newTestEnv(t *testing.T, rpm int) *testEnv {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	store := memory.New()
	seq := 0
	ids := func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	engine := analytics.NewEngine(analytics.WithClock(clock))
	srv := NewServer(":0", Deps{
		Ledger: services.NewLedgerService(store,
			services.WithClock(clock),
			services.WithIDs(ids),
			services.WithLogger(log.Discard())),
		Goals: goals.NewService(store,
			goals.WithClock(clock),
			goals.WithIDs(ids),
			goals.WithLogger(log.Discard())),
		Engine:            engine,
		Insights:          insights.NewGenerator(engine, insights.WithLogger(log.Discard())),
		Metrics:           metrics.New(),
		Logger:            log.Discard(),
		RequestsPerMinute: rpm,
	})
	t.Cleanup(func() { srv.limiter.Stop() })
	return &testEnv{srv: srv, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ErrorBody](t, rec).Error
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, 0)
	if rec := env.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodPost, "/api/transactions",
		`{"type":"expense","category":"Food","amount":12.5,"date":"2026-10-03","note":"lunch"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	created := decode[core.Transaction](t, rec)
	if created.ID != "id-1" || created.Amount.Cents != 1250 {
		t.Fatalf("created = %+v", created)
	}
	if got := rec.Header().Get("Location"); got != "/api/transactions/id-1" {
		t.Errorf("Location = %q", got)
	}

	rec = env.do(t, http.MethodPut, "/api/transactions/id-1",
		`{"type":"expense","category":"Health","amount":40,"date":"2026-10-04"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rec.Code, rec.Body.String())
	}

	list := decode[[]core.Transaction](t, env.do(t, http.MethodGet, "/api/transactions", ""))
	if len(list) != 1 || list[0].Category != "Health" || list[0].Amount.Cents != 4000 {
		t.Fatalf("list = %+v", list)
	}

	if rec := env.do(t, http.MethodDelete, "/api/transactions/id-1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/transactions/id-1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", rec.Code)
	}

	if rec := env.do(t, http.MethodGet, "/api/transactions", ""); rec.Body.String() != "[]\n" {
		t.Errorf("empty list body = %q", rec.Body.String())
	}
}

func TestCreateTransactionDefaultsDateToToday(t *testing.T) {
	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodPost, "/api/transactions", `{"type":"income","category":"Salary","amount":1000}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[core.Transaction](t, rec).Date.String(); got != "2026-10-18" {
		t.Errorf("date = %s", got)
	}
}

func TestCreateTransactionRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, 0)
	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "malformed", body: `{"type":`, code: http.StatusBadRequest},
		{name: "empty", body: ``, code: http.StatusBadRequest},
		{name: "unknown field", body: `{"type":"expense","category":"Food","amount":1,"colour":"red"}`, code: http.StatusBadRequest},
		{name: "negative amount", body: `{"type":"expense","category":"Food","amount":-5}`, code: http.StatusBadRequest},
		{name: "bad kind", body: `{"type":"transfer","category":"Food","amount":5}`, code: http.StatusUnprocessableEntity},
		{name: "no category", body: `{"type":"expense","category":"  ","amount":5}`, code: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/transactions", tt.body)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.code, rec.Body.String())
			}
			if errorOf(t, rec) == "" {
				t.Error("missing error message")
			}
		})
	}
	if rec := env.do(t, http.MethodPut, "/api/transactions/nope", `{"type":"expense","category":"Food","amount":1}`); rec.Code != http.StatusNotFound {
		t.Errorf("update missing = %d", rec.Code)
	}
}

func TestCaptureTransaction(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodPost, "/api/transactions/capture", `{"text":"spent 250 taka on food yesterday"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("capture = %d %s", rec.Code, rec.Body.String())
	}
	tx := decode[core.Transaction](t, rec)
	if tx.Kind != core.Expense || tx.Category != "Food" || tx.Amount.Cents != 25000 || tx.Date.String() != "2026-10-17" {
		t.Errorf("captured = %+v", tx)
	}

	rec = env.do(t, http.MethodPost, "/api/transactions/capture", `{"text":"nothing to see here"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("capture without amount = %d", rec.Code)
	}
}

func seed(t *testing.T, env *testEnv) {
	t.Helper()
	for _, body := range []string{
		`{"type":"income","category":"Salary","amount":1000,"date":"2026-10-01"}`,
		`{"type":"expense","category":"Food","amount":500,"date":"2026-10-02"}`,
		`{"type":"expense","category":"Bills","amount":100,"date":"2026-09-15"}`,
	} {
		if rec := env.do(t, http.MethodPost, "/api/transactions", body); rec.Code != http.StatusCreated {
			t.Fatalf("seed %s = %d %s", body, rec.Code, rec.Body.String())
		}
	}
}

func TestAnalyticsEndpoints(t *testing.T) {
	env := newTestEnv(t, 0)
	seed(t, env)

	summary := decode[core.MonthlySummary](t, env.do(t, http.MethodGet, "/api/summary", ""))
	if summary.Income.Cents != 100000 || summary.Expenses.Cents != 50000 || summary.Savings.Cents != 50000 {
		t.Errorf("current summary = %+v", summary)
	}
	sept := decode[core.MonthlySummary](t, env.do(t, http.MethodGet, "/api/summary?month=2026-09", ""))
	if sept.Expenses.Cents != 10000 || sept.Savings.Cents != -10000 {
		t.Errorf("september summary = %+v", sept)
	}
	if rec := env.do(t, http.MethodGet, "/api/summary?month=2026-13", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad month = %d", rec.Code)
	}

	cats := decode[core.Breakdown](t, env.do(t, http.MethodGet, "/api/categories", ""))
	if total := cats.Total(); total.Cents != 60000 {
		t.Errorf("category total = %v", total)
	}

	trend := decode[[]core.MonthlySummary](t, env.do(t, http.MethodGet, "/api/trend?months=3", ""))
	if len(trend) != 3 || trend[2].Month.String() != "2026-10" || trend[1].Month.String() != "2026-09" {
		t.Errorf("trend = %+v", trend)
	}
	if rec := env.do(t, http.MethodGet, "/api/trend?months=0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("trend months=0 = %d", rec.Code)
	}

	patterns := decode[patternsResponse](t, env.do(t, http.MethodGet, "/api/patterns", ""))
	if len(patterns.Warnings) != 1 || !strings.Contains(patterns.Warnings[0], "High spending on Food") {
		t.Errorf("patterns = %+v", patterns)
	}
}

func TestInsightsEndpoints(t *testing.T) {
	env := newTestEnv(t, 0)
	seed(t, env)

	resp := decode[insightsResponse](t, env.do(t, http.MethodGet, "/api/insights", ""))
	if len(resp.Insights) == 0 || resp.ExternalEnabled {
		t.Fatalf("insights = %+v", resp)
	}
	if resp.Summary.Income.Cents != 100000 {
		t.Errorf("summary = %+v", resp.Summary)
	}

	prompt := decode[promptResponse](t, env.do(t, http.MethodGet, "/api/insights/prompt", ""))
	if !strings.Contains(prompt.Prompt, "Food") {
		t.Errorf("prompt = %q", prompt.Prompt)
	}
}

func TestQueryEndpoint(t *testing.T) {
	env := newTestEnv(t, 0)
	seed(t, env)

	rec := env.do(t, http.MethodPost, "/api/query", `{"question":"How much did I spend on food in October?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("query = %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[queryResponse](t, rec)
	if resp.Answer != "You spent 500৳ on food in October 2026." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.Intent.Category != "food" || resp.Intent.Month == nil {
		t.Errorf("intent = %+v", resp.Intent)
	}
}

func TestGoalEndpoints(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodPost, "/api/goals", `{"title":"Laptop","targetAmount":12000,"deadline":"2027-10-18"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create goal = %d %s", rec.Code, rec.Body.String())
	}
	created := decode[goalView](t, rec)
	if created.ID != "id-1" || created.Progress.Suggestion != "To reach this goal, save 1,000৳ per month." {
		t.Fatalf("created = %+v", created)
	}

	rec = env.do(t, http.MethodPost, "/api/goals/id-1/contributions", `{"amount":500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("contribute = %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[goalView](t, rec).CurrentAmount.Cents; got != 50000 {
		t.Errorf("current = %d", got)
	}
	if rec := env.do(t, http.MethodPost, "/api/goals/id-1/contributions", `{"amount":0}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("zero contribution = %d", rec.Code)
	}

	sugg := decode[suggestionResponse](t, env.do(t, http.MethodGet, "/api/goals/id-1/suggestion", ""))
	if sugg.Suggestion != "To reach this goal, save 959৳ per month." {
		t.Errorf("suggestion = %+v", sugg)
	}

	rec = env.do(t, http.MethodPost, "/api/goals", `{"title":"Past","targetAmount":100,"deadline":"2026-10-01"}`)
	past := decode[goalView](t, rec)
	if past.Progress.Suggestion != goals.MsgDeadlinePassed || !past.Progress.Overdue {
		t.Errorf("past goal = %+v", past.Progress)
	}

	if rec := env.do(t, http.MethodPost, "/api/goals", `{"title":"","targetAmount":100,"deadline":"2027-01-01"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("untitled goal = %d", rec.Code)
	}

	list := decode[[]goalView](t, env.do(t, http.MethodGet, "/api/goals", ""))
	if len(list) != 2 {
		t.Fatalf("goals = %+v", list)
	}

	if rec := env.do(t, http.MethodDelete, "/api/goals/id-1", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete goal = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/goals/id-1/suggestion", ""); rec.Code != http.StatusNotFound {
		t.Errorf("suggestion for deleted goal = %d", rec.Code)
	}
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t, 0)
	seed(t, env)

	rec := env.do(t, http.MethodGet, "/api/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="fintrack-backup-2026-10-18.json"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	exported := rec.Body.String()

	csv := env.do(t, http.MethodGet, "/api/export.csv", "")
	if !strings.HasPrefix(csv.Body.String(), "id,date,type,category,amount,note\n") {
		t.Errorf("csv = %q", csv.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/import", `not json`)
	if rec.Code != http.StatusBadRequest || errorOf(t, rec) != "Invalid JSON" {
		t.Fatalf("bad import = %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/import", `{"transactions":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear import = %d %s", rec.Code, rec.Body.String())
	}
	if list := decode[[]core.Transaction](t, env.do(t, http.MethodGet, "/api/transactions", "")); len(list) != 0 {
		t.Fatalf("after clear = %+v", list)
	}

	rec = env.do(t, http.MethodPost, "/api/import", exported)
	if rec.Code != http.StatusOK {
		t.Fatalf("restore = %d %s", rec.Code, rec.Body.String())
	}
	if list := decode[[]core.Transaction](t, env.do(t, http.MethodGet, "/api/transactions", "")); len(list) != 3 {
		t.Errorf("after restore = %d transactions", len(list))
	}
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	env := newTestEnv(t, 1)
	body := `{"type":"expense","category":"Food","amount":1}`

	if rec := env.do(t, http.MethodPost, "/api/transactions", body); rec.Code != http.StatusCreated {
		t.Fatalf("first POST = %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/transactions", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second POST = %d", rec.Code)
	}
	if errorOf(t, rec) == "" {
		t.Error("missing error body")
	}
	if rec := env.do(t, http.MethodGet, "/api/transactions", ""); rec.Code != http.StatusOK {
		t.Errorf("GET after limit = %d", rec.Code)
	}
}

func TestMiddlewareAndMetrics(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodGet, "/api/summary", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}

	if rec := env.do(t, http.MethodPatch, "/api/transactions", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PATCH = %d", rec.Code)
	}

	body := env.do(t, http.MethodGet, "/metrics", "").Body.String()
	if !strings.Contains(body, `fintrack_http_requests_total{code="200",method="GET",route="GET /api/summary"} 1`) {
		t.Errorf("metrics missing summary request:\n%s", body)
	}
}
