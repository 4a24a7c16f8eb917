package vault

import (
	"math/big"

	"github.com/bentousd/bento-vault/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "bentovault"
	subsystem = "vault"
)

type metrics struct {
	ops    *prometheus.CounterVec
	supply prometheus.Gauge
	minted prometheus.Counter
	burnt  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Number of vault operations by result.",
		}, []string{"op", "result"}),
		supply: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bentousd_supply",
			Help:      "BentoUSD in circulation.",
		}),
		minted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bentousd_minted_total",
			Help:      "BentoUSD minted by the vault.",
		}),
		burnt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bentousd_burnt_total",
			Help:      "BentoUSD burnt on redemption.",
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.ops, m.supply, m.minted, m.burnt} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *metrics) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ops.WithLabelValues(op, result).Inc()
}

// wadFloat converts 18-decimal amount to float for gauges.
func wadFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v.ToBig()), new(big.Float).SetInt(common.Wad.ToBig())).Float64()
	return f
}
