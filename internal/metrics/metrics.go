package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LastSyncedBlock is the ledger checkpoint per chain.
	LastSyncedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "marginbot",
		Name:      "last_synced_block",
		Help:      "Last block committed to the position ledger.",
	}, []string{"chain_id"})

	// SyncErrors counts aborted sync passes.
	SyncErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marginbot",
		Name:      "sync_errors_total",
		Help:      "Sync passes aborted by an error.",
	})

	// PositionsSkipped counts margin events filtered by the currency
	// allow-list or a missing pool.
	PositionsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marginbot",
		Name:      "positions_skipped_total",
		Help:      "Margin events skipped during sync.",
	}, []string{"reason"})

	// LiquidationsSubmitted counts liquidation transactions by outcome.
	LiquidationsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marginbot",
		Name:      "liquidations_total",
		Help:      "Liquidation transactions by outcome.",
	}, []string{"result"})

	// LiquidationsSkipped counts groups abandoned by the economic gate.
	LiquidationsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marginbot",
		Name:      "liquidations_skipped_total",
		Help:      "Position groups skipped because gas exceeded proceeds.",
	})

	// ArbCycles counts arbitrage task evaluations by decision.
	ArbCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marginbot",
		Name:      "arb_cycles_total",
		Help:      "Arbitrage task evaluations by decision.",
	}, []string{"decision"})

	// ArbTrades counts submitted arbitrage transactions by outcome.
	ArbTrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marginbot",
		Name:      "arb_trades_total",
		Help:      "Arbitrage transactions by outcome.",
	}, []string{"result"})
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
