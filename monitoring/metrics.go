package monitoring

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"gate-system/models"
	"gate-system/utils"
)

var (
	verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_verifications_total",
			Help: "Ticket verifications by gate and outcome reason",
		},
		[]string{"gate_id", "reason"},
	)

	verificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gate_verification_duration_seconds",
			Help:    "Duration of ticket verifications",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"reason"},
	)

	replayAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_replay_attempts_total",
			Help: "Replayed ticket tokens by gate",
		},
		[]string{"gate_id"},
	)

	alertDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_alert_deliveries_total",
			Help: "Security alert deliveries by transport and result",
		},
		[]string{"transport", "result"},
	)

	sideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_side_effect_failures_total",
			Help: "Failed best-effort side effects (audit, alert)",
		},
		[]string{"kind"},
	)

	secretFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_secret_fetches_total",
			Help: "Signing secret fetches from the parameter store by result",
		},
		[]string{"result"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gate_circuit_breaker_state",
			Help: "Store circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	redisUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gate_redis_up",
			Help: "Whether the last Redis health check succeeded",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

// Monitor records gate metrics. It satisfies the metrics interfaces of the
// gate, audit, alert and secret packages.
type Monitor struct {
	redis    redis.Cmdable
	breakers []*utils.CircuitBreaker
}

func NewMonitor(redisClient redis.Cmdable, breakers ...*utils.CircuitBreaker) *Monitor {
	return &Monitor{redis: redisClient, breakers: breakers}
}

// Run collects gauges every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect(ctx)
		}
	}
}

func (m *Monitor) collect(ctx context.Context) {
	if m.redis != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := utils.RedisHealthCheck(checkCtx, m.redis); err != nil {
			redisUp.Set(0)
		} else {
			redisUp.Set(1)
		}
		cancel()
	}

	for _, cb := range m.breakers {
		breakerState.WithLabelValues(cb.Name()).Set(float64(cb.State()))
	}

	goroutineCount.Set(float64(runtime.NumGoroutine()))
}

func (m *Monitor) TrackVerification(gateID string, reason models.Reason, elapsed time.Duration) {
	verifications.WithLabelValues(gateID, string(reason)).Inc()
	verificationDuration.WithLabelValues(string(reason)).Observe(elapsed.Seconds())
}

func (m *Monitor) TrackReplayAttempt(gateID string) {
	replayAttempts.WithLabelValues(gateID).Inc()
}

func (m *Monitor) TrackAlert(transport, result string) {
	alertDeliveries.WithLabelValues(transport, result).Inc()
}

func (m *Monitor) TrackSideEffectFailure(kind string) {
	sideEffectFailures.WithLabelValues(kind).Inc()
}

func (m *Monitor) TrackSecretFetch(result string) {
	secretFetches.WithLabelValues(result).Inc()
}
