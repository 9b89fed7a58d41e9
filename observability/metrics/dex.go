package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type DexMetrics struct {
	intents            *prometheus.CounterVec
	latency            *prometheus.HistogramVec
	swapVolume         *prometheus.CounterVec
	bookFills          *prometheus.CounterVec
	burned             *prometheus.CounterVec
	rewardsDistributed prometheus.Counter
	unbondClaims       *prometheus.CounterVec
}

var (
	dexOnce     sync.Once
	dexRegistry *DexMetrics
)

func Dex() *DexMetrics {
	dexOnce.Do(func() {
		dexRegistry = &DexMetrics{
			intents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "dex_intents_total",
				Help: "Count of engine invocations by intent and outcome.",
			}, []string{"intent", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "dex_intent_duration_seconds",
				Help:    "Wall time spent executing and settling an intent.",
				Buckets: prometheus.DefBuckets,
			}, []string{"intent"}),
			swapVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "dex_swap_volume_hub",
				Help: "Committed swap volume per pool, denominated in the hub asset.",
			}, []string{"pool"}),
			bookFills: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "dex_book_fills_total",
				Help: "Resting orders matched by takers per pool.",
			}, []string{"pool"}),
			burned: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "dex_burned_total",
				Help: "Amount burned by asset class (hub or secondary).",
			}, []string{"class"}),
			rewardsDistributed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "dex_rewards_distributed_total",
				Help: "Hub asset credited to pool reward accumulators.",
			}),
			unbondClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "dex_unbond_shares_total",
				Help: "Unbonded shares settled by outcome (claimed or restaked).",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(
			dexRegistry.intents,
			dexRegistry.latency,
			dexRegistry.swapVolume,
			dexRegistry.bookFills,
			dexRegistry.burned,
			dexRegistry.rewardsDistributed,
			dexRegistry.unbondClaims,
		)
	})
	return dexRegistry
}

func (m *DexMetrics) ObserveIntent(intent, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if intent == "" {
		intent = "unknown"
	}
	m.intents.WithLabelValues(intent, outcome).Inc()
	m.latency.WithLabelValues(intent).Observe(elapsed.Seconds())
}

func (m *DexMetrics) ObserveSwap(pool string, volume float64, fills int) {
	if m == nil {
		return
	}
	m.swapVolume.WithLabelValues(pool).Add(volume)
	if fills > 0 {
		m.bookFills.WithLabelValues(pool).Add(float64(fills))
	}
}

func (m *DexMetrics) ObserveBurn(class string, amount float64) {
	if m == nil {
		return
	}
	m.burned.WithLabelValues(class).Add(amount)
}

func (m *DexMetrics) ObserveRewardDistribution(amount float64) {
	if m == nil {
		return
	}
	m.rewardsDistributed.Add(amount)
}

func (m *DexMetrics) ObserveUnbond(outcome string, shares float64) {
	if m == nil {
		return
	}
	m.unbondClaims.WithLabelValues(outcome).Add(shares)
}
