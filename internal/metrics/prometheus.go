package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "order_probe"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry         *prometheus.Registry
	ordersPlaced     prometheus.Counter
	ordersFailed     prometheus.Counter
	ordersCancelled  prometheus.Counter
	cancelsFailed    prometheus.Counter
	eventsDispatched prometheus.Counter
	algoInterrupted  prometheus.Counter
	bookResyncs      prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	newCounter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
	}
	p := &Prometheus{
		registry:         registry,
		ordersPlaced:     newCounter("orders_placed_total", "Total number of orders accepted by the exchange."),
		ordersFailed:     newCounter("orders_failed_total", "Total number of order placement failures."),
		ordersCancelled:  newCounter("orders_cancelled_total", "Total number of cancel requests accepted by the exchange."),
		cancelsFailed:    newCounter("cancels_failed_total", "Total number of cancel request failures."),
		eventsDispatched: newCounter("events_dispatched_total", "Total number of stream events delivered to the algorithm."),
		algoInterrupted:  newCounter("algo_interrupted_total", "Total number of algorithm interrupts."),
		bookResyncs:      newCounter("book_resyncs_total", "Total number of order book resynchronisations after a sequence gap."),
	}
	registry.MustRegister(
		p.ordersPlaced,
		p.ordersFailed,
		p.ordersCancelled,
		p.cancelsFailed,
		p.eventsDispatched,
		p.algoInterrupted,
		p.bookResyncs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	p.Metrics = &Metrics{
		OrdersPlaced:     promCounter{p.ordersPlaced},
		OrdersFailed:     promCounter{p.ordersFailed},
		OrdersCancelled:  promCounter{p.ordersCancelled},
		CancelsFailed:    promCounter{p.cancelsFailed},
		EventsDispatched: promCounter{p.eventsDispatched},
		AlgoInterrupted:  promCounter{p.algoInterrupted},
		BookResyncs:      promCounter{p.bookResyncs},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
