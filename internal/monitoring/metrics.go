package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rovernav"

var (
	// plannerRuns counts solves by outcome: ok, unreachable, iteration_limit, error.
	plannerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "planner",
		Name:      "runs_total",
		Help:      "Planner solves by outcome",
	}, []string{"outcome"})

	plannerExpansions = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "planner",
		Name:      "expansions",
		Help:      "Vertices expanded per solve",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})

	roverMoves = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rover",
		Name:      "moves_total",
		Help:      "Moves the rover has made",
	})

	goalsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rover",
		Name:      "goals_abandoned_total",
		Help:      "Goals dropped after repeated empty paths",
	})

	// discoveryRecords counts records by result: published, applied, malformed, ignored.
	discoveryRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "records_total",
		Help:      "Discovery records by result",
	}, []string{"result"})
)

// ObservePlannerRun records one solve.
func ObservePlannerRun(outcome string, expansions int) {
	plannerRuns.WithLabelValues(outcome).Inc()
	plannerExpansions.Observe(float64(expansions))
}

// CountMove records a successful rover move.
func CountMove() { roverMoves.Inc() }

// CountGoalAbandoned records a goal given up on.
func CountGoalAbandoned() { goalsAbandoned.Inc() }

// CountDiscovery records a discovery record with the given result.
func CountDiscovery(result string) {
	discoveryRecords.WithLabelValues(result).Inc()
}

// MetricsHandler serves the default registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
