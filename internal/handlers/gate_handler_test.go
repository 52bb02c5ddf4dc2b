package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-system/internal/clock"
	"gate-system/internal/services/audit"
	"gate-system/internal/services/gate"
	"gate-system/internal/services/ledger"
	"gate-system/internal/services/replay"
	"gate-system/internal/services/secret"
	"gate-system/internal/services/token"
	"gate-system/internal/store"
	"gate-system/models"
)

type stubVerifier struct {
	result models.VerifyResult
	got    models.VerifyRequest
}

func (s *stubVerifier) Verify(ctx context.Context, req models.VerifyRequest) models.VerifyResult {
	s.got = req
	return s.result
}

func postVerify(e *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/gate/verify", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) models.VerifyResponse {
	t.Helper()
	var resp models.VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestVerifyTicket_StatusCodes(t *testing.T) {
	tests := []struct {
		reason models.Reason
		want   int
	}{
		{models.ReasonValid, http.StatusOK},
		{models.ReasonInvalidJWT, http.StatusOK},
		{models.ReasonInvalidClaims, http.StatusOK},
		{models.ReasonExpired, http.StatusOK},
		{models.ReasonInvalidTicket, http.StatusOK},
		{models.ReasonReplay, http.StatusOK},
		{models.ReasonMissingParameters, http.StatusBadRequest},
		{models.ReasonInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			stub := &stubVerifier{result: models.VerifyResult{Response: models.VerifyResponse{
				OK:      tt.reason == models.ReasonValid,
				Reason:  tt.reason,
				Message: "msg",
			}}}
			e := NewRouter(NewGateHandler(stub, nil), nil)

			rec := postVerify(e, `{"jwt":"a.b.c","gateId":"GATE-A","deviceId":"DEV-7","gatekeeperId":"keeper-1"}`)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.reason, decode(t, rec).Reason)
			assert.Equal(t, models.VerifyRequest{JWT: "a.b.c", GateID: "GATE-A", DeviceID: "DEV-7", GatekeeperID: "keeper-1"}, stub.got)
		})
	}
}

func TestVerifyTicket_UnreadableBody(t *testing.T) {
	stub := &stubVerifier{}
	e := NewRouter(NewGateHandler(stub, nil), nil)

	rec := postVerify(e, `{"jwt": `)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.False(t, resp.OK)
	assert.Equal(t, models.ReasonMissingParameters, resp.Reason)
}

func TestVerifyTicket_CORSHeaders(t *testing.T) {
	e := NewRouter(NewGateHandler(&stubVerifier{}, nil), nil)

	rec := postVerify(e, `{}`)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/gate/verify", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestVerifyTicket_RouteMiddleware(t *testing.T) {
	blocked := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"message": "Too many requests"})
		}
	}
	e := NewRouter(NewGateHandler(&stubVerifier{}, nil), nil, blocked)

	assert.Equal(t, http.StatusTooManyRequests, postVerify(e, `{}`).Code)
}

func TestHealth(t *testing.T) {
	db, mock := redismock.NewClientMock()
	e := NewRouter(NewGateHandler(&stubVerifier{}, db), nil)

	mock.ExpectPing().SetVal("PONG")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gate/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	mock.ExpectPing().SetErr(errors.New("connection refused"))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gate/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")

	assert.NoError(t, mock.ExpectationsWereMet())
}

// End to end through the real verification pipeline with in-memory stores.
func TestVerifyTicket_Pipeline(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 12, 21, 18, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now)

	params := secret.NewMemoryParameterStore()
	require.NoError(t, params.PutParameter(ctx, "/gate/jwt-secret", "pipeline-secret"))
	provider := secret.NewProvider(params, secret.ProviderConfig{Name: "/gate/jwt-secret"}, fake, nil)
	codec := token.NewCodec(provider, fake)

	kv := store.NewMemoryStore(fake)
	sales := ledger.NewKVLedger(kv)
	guard, err := replay.NewGuard(kv, replay.DefaultTTL, fake)
	require.NoError(t, err)
	sink := audit.NewMemorySink()

	verifier := gate.NewVerifier(codec, sales, guard, audit.NewRecorder(sink, time.Second, fake, nil), nil, fake, nil, gate.Config{})
	e := NewRouter(NewGateHandler(verifier, nil), nil)

	ticketID := uuid.NewString()
	require.NoError(t, sales.Put(ctx, models.SaleRecord{
		TicketID:   ticketID,
		HolderID:   "user-42",
		MatchID:    "CAN2025-M01",
		SeatNumber: "B-12",
		Status:     models.SaleStatusActive,
		Price:      decimal.RequireFromString("150.00"),
	}))
	raw, err := codec.Issue(ctx, "user-42", ticketID, nil, models.TicketClaims{MatchID: "CAN2025-M01", SeatNumber: "B-12"})
	require.NoError(t, err)

	body := `{"jwt":"` + raw + `","gateId":"GATE-A","deviceId":"DEV-7"}`

	rec := postVerify(e, body)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.True(t, resp.OK)
	assert.Equal(t, ticketID, resp.TicketID)
	assert.Equal(t, "B-12", resp.SeatNumber)

	rec = postVerify(e, body)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode(t, rec)
	assert.False(t, resp.OK)
	assert.Equal(t, models.ReasonReplay, resp.Reason)

	rec = postVerify(e, `{"jwt":"`+raw+`","gateId":"GATE-A"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Len(t, sink.Events(), 2)
}
