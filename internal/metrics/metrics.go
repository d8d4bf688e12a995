package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OrdersPlaced     Counter
	OrdersFailed     Counter
	OrdersCancelled  Counter
	CancelsFailed    Counter
	EventsDispatched Counter
	AlgoInterrupted  Counter
	BookResyncs      Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OrdersPlaced:     n,
		OrdersFailed:     n,
		OrdersCancelled:  n,
		CancelsFailed:    n,
		EventsDispatched: n,
		AlgoInterrupted:  n,
		BookResyncs:      n,
	}
}
