package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(plannerRuns.WithLabelValues("unreachable"))
	ObservePlannerRun("unreachable", 12)
	if got := testutil.ToFloat64(plannerRuns.WithLabelValues("unreachable")); got != before+1 {
		t.Errorf("planner runs = %v, want %v", got, before+1)
	}

	moves := testutil.ToFloat64(roverMoves)
	CountMove()
	CountMove()
	if got := testutil.ToFloat64(roverMoves); got != moves+2 {
		t.Errorf("moves = %v, want %v", got, moves+2)
	}

	abandoned := testutil.ToFloat64(goalsAbandoned)
	CountGoalAbandoned()
	if got := testutil.ToFloat64(goalsAbandoned); got != abandoned+1 {
		t.Errorf("abandoned = %v, want %v", got, abandoned+1)
	}

	malformed := testutil.ToFloat64(discoveryRecords.WithLabelValues("malformed"))
	CountDiscovery("malformed")
	if got := testutil.ToFloat64(discoveryRecords.WithLabelValues("malformed")); got != malformed+1 {
		t.Errorf("malformed = %v, want %v", got, malformed+1)
	}
}

func TestMetricsHandler(t *testing.T) {
	CountMove()

	srv := httptest.NewServer(MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "rovernav_rover_moves_total") {
		t.Errorf("metrics output missing moves counter:\n%s", body)
	}
}
