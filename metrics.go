package market

import (
	"github.com/prometheus/client_golang/prometheus"
)

// rejection reasons used as metric labels
const (
	reasonMalformed      = "malformed"
	reasonNotWhitelisted = "not_whitelisted"
	reasonExpired        = "expired"
	reasonBadSignature   = "invalid_signature"
	reasonArithmetic     = "arithmetic"
	reasonUnderpaid      = "insufficient_payment"
	reasonTransfer       = "transfer_failed"
	reasonRegistry       = "registry"
	reasonLedger         = "ledger"
)

type metrics struct {
	settlements prometheus.Counter
	rejections  *prometheus.CounterVec
}

// newMetrics builds the market's counters. With a nil registerer the
// counters still exist but are not exported anywhere.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fixedmarket",
			Name:      "settlements_total",
			Help:      "Completed swap settlements.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixedmarket",
			Name:      "settlement_rejections_total",
			Help:      "Settlement attempts rejected, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.settlements, m.rejections)
	}
	return m
}
