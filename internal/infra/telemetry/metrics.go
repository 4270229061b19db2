package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the account-integrity core.
type Metrics struct {
	ConsumeTotal     *prometheus.CounterVec
	CreditsTotal     *prometheus.CounterVec
	CreditedPoints   *prometheus.CounterVec
	LoginBlocksTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers the domain collectors.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "acct"
	}

	consume := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "consume_total",
		Help:      "Point consumption attempts partitioned by tier used and outcome.",
	}, []string{"tier", "outcome"})

	credits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "credits_total",
		Help:      "Crediting pipeline outcomes partitioned by gateway and outcome.",
	}, []string{"gateway", "outcome"})

	creditedPoints := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "credited_points_total",
		Help:      "Points credited to ledgers partitioned by tier.",
	}, []string{"tier"})

	loginBlocks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "security",
		Name:      "login_blocks_total",
		Help:      "Login limiter events partitioned by kind.",
	}, []string{"kind"})

	for _, collector := range []prometheus.Collector{consume, credits, creditedPoints, loginBlocks} {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return &Metrics{
		ConsumeTotal:     consume,
		CreditsTotal:     credits,
		CreditedPoints:   creditedPoints,
		LoginBlocksTotal: loginBlocks,
	}, nil
}

// ObserveConsume records one consume attempt.
func (m *Metrics) ObserveConsume(tier, outcome string) {
	if m == nil || m.ConsumeTotal == nil {
		return
	}
	m.ConsumeTotal.WithLabelValues(tier, outcome).Inc()
}

// ObserveCredit records one crediting pipeline outcome.
func (m *Metrics) ObserveCredit(gateway, outcome string) {
	if m == nil || m.CreditsTotal == nil {
		return
	}
	m.CreditsTotal.WithLabelValues(gateway, outcome).Inc()
}

// ObserveCreditedPoints records points added to a tier.
func (m *Metrics) ObserveCreditedPoints(tier string, points int) {
	if m == nil || m.CreditedPoints == nil || points <= 0 {
		return
	}
	m.CreditedPoints.WithLabelValues(tier).Add(float64(points))
}

// ObserveLoginBlock records one limiter event.
func (m *Metrics) ObserveLoginBlock(kind string) {
	if m == nil || m.LoginBlocksTotal == nil {
		return
	}
	m.LoginBlocksTotal.WithLabelValues(kind).Inc()
}
