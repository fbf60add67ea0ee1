package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nvandessel/conviction/internal/models"
	"github.com/nvandessel/conviction/internal/pipeline"
)

func TestObserveStep(t *testing.T) {
	m := New("")

	snap := pipeline.Snapshot{
		Step:         1,
		Statuses:     models.StatusCounts{models.StatusCandidate: 3, models.StatusActive: 1},
		Participants: 5,
		FundingPool:  420,
		TokenSupply:  1000,
		TokenPrice:   16,
		Sentiment:    0.6,
		Accepted:     []int{7},
		Failed:       []int{8, 9},
	}
	m.ObserveStep(snap, 2*time.Millisecond)
	m.ObserveStep(pipeline.Snapshot{Step: 2, FundingPool: 400, TokenPrice: 16.5}, time.Millisecond)

	if got := testutil.ToFloat64(m.StepsTotal); got != 2 {
		t.Errorf("steps_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.AcceptedTotal); got != 1 {
		t.Errorf("accepted_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("failed")); got != 2 {
		t.Errorf("outcomes_total{failed} = %v, want 2", got)
	}
	// Gauges reflect the latest step.
	if got := testutil.ToFloat64(m.FundingPool); got != 400 {
		t.Errorf("funding_pool = %v, want 400", got)
	}
	if got := testutil.ToFloat64(m.TokenPrice); got != 16.5 {
		t.Errorf("token_price = %v, want 16.5", got)
	}
	if got := testutil.ToFloat64(m.Proposals.WithLabelValues("candidate")); got != 0 {
		t.Errorf("proposals{candidate} = %v, want 0", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStep(pipeline.Snapshot{}, time.Second)
	m.ObserveError("run")
}

func TestHandler(t *testing.T) {
	m := New("test")
	m.ObserveStep(pipeline.Snapshot{Sentiment: 0.5}, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{"test_pipeline_steps_total 1", "test_commons_sentiment 0.5"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(""), New("")
	a.ObserveStep(pipeline.Snapshot{}, 0)
	if got := testutil.ToFloat64(b.StepsTotal); got != 0 {
		t.Errorf("second registry saw %v steps", got)
	}
}
