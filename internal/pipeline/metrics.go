package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"slimchain/internal/chainerr"
)

// Metrics is the set of counters the pipeline emits, grounded on
// spec.md §7's requirement that every discarded transaction leave an
// audit trail rather than silently vanish.
type Metrics struct {
	discardTx *prometheus.CounterVec
	blocksOut prometheus.Counter
}

// NewMetrics registers the pipeline's counters against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		discardTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slimchain",
			Subsystem: "pipeline",
			Name:      "discard_tx_total",
			Help:      "Transactions discarded during propose_block/verify_block, by reason.",
		}, []string{"reason"}),
		blocksOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slimchain",
			Subsystem: "pipeline",
			Name:      "blocks_committed_total",
			Help:      "Blocks committed via commit_block.",
		}),
	}
	reg.MustRegister(m.discardTx, m.blocksOut)
	return m
}

// DiscardTx records one discarded transaction under reason.
func (m *Metrics) DiscardTx(reason chainerr.DiscardReason) {
	if m == nil {
		return
	}
	m.discardTx.WithLabelValues(string(reason)).Inc()
}

// BlockCommitted records one successfully committed block.
func (m *Metrics) BlockCommitted() {
	if m == nil {
		return
	}
	m.blocksOut.Inc()
}
