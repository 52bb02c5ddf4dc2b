package security

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
)

const testKey = "ratelimit:gate:10.0.0.7"

func newTestServer(limiter *RateLimiter) *echo.Echo {
	e := echo.New()
	e.Use(limiter.GateRateLimit())
	e.POST("/verify", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func doRequest(e *echo.Echo) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/verify", nil)
	req.Header.Set("X-Real-IP", "10.0.0.7")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func expectHit(mock redismock.ClientMock, count int64, ttlSet bool) {
	mock.ExpectTxPipeline()
	mock.ExpectIncr(testKey).SetVal(count)
	mock.ExpectExpireNX(testKey, time.Minute).SetVal(ttlSet)
	mock.ExpectTxPipelineExec()
}

func TestGateRateLimit_AllowsWithinBudget(t *testing.T) {
	db, mock := redismock.NewClientMock()
	e := newTestServer(NewRateLimiter(db, 2))

	expectHit(mock, 1, true)
	expectHit(mock, 2, false)

	assert.Equal(t, http.StatusOK, doRequest(e).Code)
	assert.Equal(t, http.StatusOK, doRequest(e).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGateRateLimit_RejectsOverBudget(t *testing.T) {
	db, mock := redismock.NewClientMock()
	e := newTestServer(NewRateLimiter(db, 2))

	expectHit(mock, 3, false)

	rec := doRequest(e)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"rate_limited"`)
	assert.Contains(t, rec.Body.String(), `"message":"Too many requests"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGateRateLimit_LostExpireIsRetried(t *testing.T) {
	db, mock := redismock.NewClientMock()
	e := newTestServer(NewRateLimiter(db, 2))

	// First window TTL fails to apply; the request still goes through.
	mock.ExpectTxPipeline()
	mock.ExpectIncr(testKey).SetVal(1)
	mock.ExpectExpireNX(testKey, time.Minute).SetErr(errors.New("i/o timeout"))

	// Every later hit sets the TTL again if the key has none.
	expectHit(mock, 2, true)

	assert.Equal(t, http.StatusOK, doRequest(e).Code)
	assert.Equal(t, http.StatusOK, doRequest(e).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGateRateLimit_FailsOpen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	e := newTestServer(NewRateLimiter(db, 2))

	mock.ExpectTxPipeline()
	mock.ExpectIncr(testKey).SetErr(errors.New("connection refused"))

	assert.Equal(t, http.StatusOK, doRequest(e).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGateRateLimit_Disabled(t *testing.T) {
	db, mock := redismock.NewClientMock()
	e := newTestServer(NewRateLimiter(db, 0))

	assert.Equal(t, http.StatusOK, doRequest(e).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
