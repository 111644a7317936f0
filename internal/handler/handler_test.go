package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fanpoints/internal/config"
	"fanpoints/internal/game"
	"fanpoints/internal/infrastructure/dbtest"
	"fanpoints/internal/service"
	"fanpoints/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedDrawer struct{ value float64 }

func (f fixedDrawer) Draw() game.Draw { return game.Draw{Seed: 1, Value: f.value} }

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db := dbtest.New(t)
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{Ledger: "points.ledger"}},
		Ledger: config.LedgerConfig{
			InitialBalance: 3000,
			MaxAttempts:    5,
			PaymentMethods: []string{"card"},
		},
		Attendance: config.AttendanceConfig{Reward: 100, Timezone: "Asia/Seoul"},
		Game: config.GameConfig{Odds: map[string]config.OddsConfig{
			"even": {SuccessRate: 0.5, Odds: 2.0},
		}},
	}
	now := func() time.Time { return time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC) }

	svc, err := service.NewPointsService(db, nil, cfg, service.WithClock(now), service.WithDrawer(fixedDrawer{value: 0.3}))
	require.NoError(t, err)
	return SetupRouter(svc)
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

func do(t *testing.T, r http.Handler, method, path, user string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func TestRouter_RequiresUser(t *testing.T) {
	r := setupRouter(t)

	w, env := do(t, r, http.MethodGet, "/api/v1/points/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.CodeUnauthorized, env.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_Flow(t *testing.T) {
	r := setupRouter(t)

	w, _ := do(t, r, http.MethodPost, "/api/v1/accounts", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, r, http.MethodPost, "/api/v1/accounts", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.CodeAccountExists, env.Code)

	w, env = do(t, r, http.MethodPost, "/api/v1/attendance/check-in", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var att service.AttendanceResult
	require.NoError(t, json.Unmarshal(env.Data, &att))
	assert.Equal(t, int64(3100), att.Balance)
	assert.Equal(t, "2024-05-01", att.Date)

	w, env = do(t, r, http.MethodPost, "/api/v1/attendance/check-in", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.CodeAlreadyMarked, env.Code)

	w, env = do(t, r, http.MethodPost, "/api/v1/bet", "alice", PlaceBetRequest{Stake: 500, BettingType: "even"})
	require.Equal(t, http.StatusOK, w.Code)
	var bet service.BetResult
	require.NoError(t, json.Unmarshal(env.Data, &bet))
	assert.Equal(t, game.OutcomeWin, bet.Outcome)
	assert.Equal(t, int64(1000), bet.Payout)
	assert.Equal(t, int64(3600), bet.Balance)

	w, env = do(t, r, http.MethodPost, "/api/v1/donate", "alice", DonateRequest{Points: 5000})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, response.CodeInsufficientPoints, env.Code)

	w, env = do(t, r, http.MethodPost, "/api/v1/charge", "alice", ChargeRequest{Amount: 400, PaymentMethod: "card"})
	require.Equal(t, http.StatusOK, w.Code)
	var bal service.BalanceResult
	require.NoError(t, json.Unmarshal(env.Data, &bal))
	assert.Equal(t, int64(4000), bal.Balance)

	w, env = do(t, r, http.MethodGet, "/api/v1/ledger?limit=2", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ledger struct {
		List []struct {
			Kind         string `json:"kind"`
			BalanceAfter int64  `json:"balance_after"`
		} `json:"list"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ledger))
	require.Len(t, ledger.List, 2)
	assert.Equal(t, "CHARGE_CREDIT", ledger.List[0].Kind)
	assert.Equal(t, int64(4000), ledger.List[0].BalanceAfter)
	assert.Equal(t, "BET_PAYOUT", ledger.List[1].Kind)

	w, env = do(t, r, http.MethodGet, "/api/v1/ledger/audit", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report service.AuditReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.True(t, report.Consistent)
	assert.Equal(t, int64(4000), report.Replayed)

	w, env = do(t, r, http.MethodGet, "/api/v1/attendance/month?year=2024&month=5", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var month struct {
		Days []int `json:"days"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &month))
	assert.Equal(t, []int{1}, month.Days)

	// 不带参数时按服务端时钟取当月
	w, env = do(t, r, http.MethodGet, "/api/v1/attendance/month", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var current struct {
		Year  int   `json:"year"`
		Month int   `json:"month"`
		Days  []int `json:"days"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &current))
	assert.Equal(t, 2024, current.Year)
	assert.Equal(t, 5, current.Month)
	assert.Equal(t, []int{1}, current.Days)

	w, env = do(t, r, http.MethodGet, "/api/v1/bet/history", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), bet.TicketID)
}

func TestRouter_ErrorMapping(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   int
	}{
		{"unknown_account", http.MethodGet, "/api/v1/points/balance", nil, http.StatusNotFound, response.CodeAccountNotFound},
		{"bad_json", http.MethodPost, "/api/v1/charge", map[string]any{"amount": -1}, http.StatusBadRequest, response.CodeParamError},
		{"amount_over_cap", http.MethodPost, "/api/v1/charge", ChargeRequest{Amount: 1_000_000_000_001, PaymentMethod: "card"}, http.StatusBadRequest, response.CodeParamError},
		{"stake_over_cap", http.MethodPost, "/api/v1/bet", PlaceBetRequest{Stake: 1_000_000_000_001, BettingType: "even"}, http.StatusBadRequest, response.CodeParamError},
		{"bad_payment_method", http.MethodPost, "/api/v1/charge", ChargeRequest{Amount: 1, PaymentMethod: "gold"}, http.StatusBadRequest, response.CodeInvalidPaymentMethod},
		{"unknown_betting_type", http.MethodPost, "/api/v1/bet", PlaceBetRequest{Stake: 1, BettingType: "jackpot"}, http.StatusBadRequest, response.CodeUnknownBettingType},
		{"bad_limit", http.MethodGet, "/api/v1/ledger?limit=abc", nil, http.StatusBadRequest, response.CodeParamError},
		{"bad_month", http.MethodGet, "/api/v1/attendance/month?month=13", nil, http.StatusBadRequest, response.CodeParamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, r, tt.method, tt.path, "nobody", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, env.Code)
		})
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r := setupRouter(t)

	w, _ := do(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouter_OddsAndOptions(t *testing.T) {
	r := setupRouter(t)

	w, env := do(t, r, http.MethodGet, "/api/v1/bet/odds", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var odds map[string]game.Odds
	require.NoError(t, json.Unmarshal(env.Data, &odds))
	assert.Equal(t, game.Odds{SuccessRate: 0.5, Odds: 2.0}, odds["even"])

	w, _ = do(t, r, http.MethodOptions, "/api/v1/bet", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
