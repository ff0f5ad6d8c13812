package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks allocator and reward-cascade activity.
type EngineMetrics struct {
	numbersIssued  prometheus.Counter
	stepUpAwards   *prometheus.CounterVec
	rippleAwards   prometheus.Counter
	duplicates     *prometheus.CounterVec
	counterRetries prometheus.Counter
	hookDispatches *prometheus.CounterVec
}

// WalletMetrics tracks ledger-append activity.
type WalletMetrics struct {
	ledgerEntries *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics

	walletMetricsOnce sync.Once
	walletRegistry    *WalletMetrics
)

// Engine returns the lazily-initialised metrics registry for the reward
// cascade.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			numbersIssued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "loyaltyd",
				Subsystem: "allocator",
				Name:      "global_numbers_issued_total",
				Help:      "Count of global numbers issued.",
			}),
			stepUpAwards: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loyaltyd",
				Subsystem: "stepup",
				Name:      "rewards_total",
				Help:      "Count of step-up rewards paid out segmented by multiplier.",
			}, []string{"multiplier"}),
			rippleAwards: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "loyaltyd",
				Subsystem: "ripple",
				Name:      "rewards_total",
				Help:      "Count of ripple rewards paid to referrers.",
			}),
			duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loyaltyd",
				Subsystem: "engine",
				Name:      "duplicates_suppressed_total",
				Help:      "Count of reward inserts rejected by uniqueness constraints.",
			}, []string{"engine"}),
			counterRetries: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "loyaltyd",
				Subsystem: "allocator",
				Name:      "counter_retries_total",
				Help:      "Count of allocation transactions retried after losing a storage race.",
			}),
			hookDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loyaltyd",
				Subsystem: "hooks",
				Name:      "dispatches_total",
				Help:      "Count of threshold hook invocations segmented by hook name and outcome.",
			}, []string{"hook", "outcome"}),
		}
		prometheus.MustRegister(
			engineRegistry.numbersIssued,
			engineRegistry.stepUpAwards,
			engineRegistry.rippleAwards,
			engineRegistry.duplicates,
			engineRegistry.counterRetries,
			engineRegistry.hookDispatches,
		)
	})
	return engineRegistry
}

// Wallet returns the metrics registry tracking ledger appends.
func Wallet() *WalletMetrics {
	walletMetricsOnce.Do(func() {
		walletRegistry = &WalletMetrics{
			ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loyaltyd",
				Subsystem: "wallet",
				Name:      "ledger_entries_total",
				Help:      "Count of ledger entries appended segmented by track and direction.",
			}, []string{"track", "direction"}),
		}
		prometheus.MustRegister(walletRegistry.ledgerEntries)
	})
	return walletRegistry
}

// RecordNumberIssued increments the global number issuance counter.
func (m *EngineMetrics) RecordNumberIssued() {
	if m == nil {
		return
	}
	m.numbersIssued.Inc()
}

// RecordStepUpAward increments the step-up payout counter for a multiplier.
func (m *EngineMetrics) RecordStepUpAward(multiplier string) {
	if m == nil {
		return
	}
	m.stepUpAwards.WithLabelValues(multiplier).Inc()
}

// RecordRippleAward increments the ripple payout counter.
func (m *EngineMetrics) RecordRippleAward() {
	if m == nil {
		return
	}
	m.rippleAwards.Inc()
}

// RecordDuplicateSuppressed counts an insert rejected by a uniqueness key.
func (m *EngineMetrics) RecordDuplicateSuppressed(engine string) {
	if m == nil {
		return
	}
	m.duplicates.WithLabelValues(engine).Inc()
}

// RecordCounterRetry counts an allocation retry after a lost storage race.
func (m *EngineMetrics) RecordCounterRetry() {
	if m == nil {
		return
	}
	m.counterRetries.Inc()
}

// RecordHookDispatch counts a threshold hook invocation.
func (m *EngineMetrics) RecordHookDispatch(hook string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	name := strings.TrimSpace(hook)
	if name == "" {
		name = "unknown"
	}
	m.hookDispatches.WithLabelValues(name, outcome).Inc()
}

// RecordLedgerEntry counts a ledger append.
func (m *WalletMetrics) RecordLedgerEntry(track, direction string) {
	if m == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(track, direction).Inc()
}
