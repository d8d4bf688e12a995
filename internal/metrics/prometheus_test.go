package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.OrdersPlaced.Inc()
	prom.Metrics.OrdersFailed.Inc()
	prom.Metrics.OrdersCancelled.Inc()
	prom.Metrics.CancelsFailed.Inc()
	prom.Metrics.EventsDispatched.Inc()
	prom.Metrics.EventsDispatched.Inc()
	prom.Metrics.AlgoInterrupted.Inc()
	prom.Metrics.BookResyncs.Inc()

	assertCounter(t, prom.ordersPlaced, 1)
	assertCounter(t, prom.ordersFailed, 1)
	assertCounter(t, prom.ordersCancelled, 1)
	assertCounter(t, prom.cancelsFailed, 1)
	assertCounter(t, prom.eventsDispatched, 2)
	assertCounter(t, prom.algoInterrupted, 1)
	assertCounter(t, prom.bookResyncs, 1)
}

func TestPrometheusHandlerExposesNamespace(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.OrdersPlaced.Inc()
	rec := httptest.NewRecorder()
	prom.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "order_probe_orders_placed_total 1") {
		t.Fatalf("expected orders_placed_total in exposition, got %s", string(body))
	}
}

func TestNoopCounters(t *testing.T) {
	m := NewNoop()
	m.OrdersPlaced.Inc()
	m.AlgoInterrupted.Inc()
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
