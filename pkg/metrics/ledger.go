package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Accrual outcomes.
const (
	AccrualAccrued        = "accrued"
	AccrualAlreadyAccrued = "already_accrued"
	AccrualSkipped        = "skipped"
	AccrualFailed         = "failed"
)

// LedgerMetrics tracks accrual outcomes and payout transitions.
type LedgerMetrics struct {
	accruals          *prometheus.CounterVec
	commissionCents   *prometheus.CounterVec
	payoutTransitions *prometheus.CounterVec
	payoutAmount      *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	accruals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_accruals_total",
		Help: "Accrual attempts by outcome.",
	}, []string{"outcome"})
	commission := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_commission_cents_total",
		Help: "Commission accrued in minor units.",
	}, []string{"currency"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_transitions_total",
		Help: "Payout state transitions.",
	}, []string{"status"})
	amount := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payout_net_payable_cents",
		Help:    "Net payable of generated payouts in minor units.",
		Buckets: prometheus.ExponentialBuckets(100, 4, 10),
	}, []string{"currency"})
	reg.MustRegister(accruals, commission, transitions, amount)
	return &LedgerMetrics{
		accruals:          accruals,
		commissionCents:   commission,
		payoutTransitions: transitions,
		payoutAmount:      amount,
	}
}

// ObserveAccrual counts one accrual attempt.
func (m *LedgerMetrics) ObserveAccrual(outcome string, currency string, commissionCents int64) {
	if m == nil || m.accruals == nil {
		return
	}
	m.accruals.WithLabelValues(normalizeLabel(outcome)).Inc()
	if outcome == AccrualAccrued && commissionCents > 0 {
		m.commissionCents.WithLabelValues(normalizeLabel(currency)).Add(float64(commissionCents))
	}
}

// ObservePayoutTransition counts a payout entering status.
func (m *LedgerMetrics) ObservePayoutTransition(status string) {
	if m == nil || m.payoutTransitions == nil {
		return
	}
	m.payoutTransitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// ObservePayoutGenerated records the amount of a newly generated payout.
func (m *LedgerMetrics) ObservePayoutGenerated(currency string, netPayableCents int64) {
	if m == nil || m.payoutAmount == nil {
		return
	}
	m.payoutAmount.WithLabelValues(normalizeLabel(currency)).Observe(float64(netPayableCents))
	m.payoutTransitions.WithLabelValues("owed").Inc()
}
