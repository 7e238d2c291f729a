package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatpulse"

// Metrics holds every collector the client reports. All methods are safe on
// a nil receiver so components can run without metrics.
type Metrics struct {
	framesReceived   prometheus.Counter
	framesDropped    *prometheus.CounterVec
	callbackPanics   prometheus.Counter
	dispatchDuration prometheus.Histogram
	connState        *prometheus.GaugeVec
	transitions      *prometheus.CounterVec
	subscribers      prometheus.Gauge
	apiRequests      *prometheus.CounterVec
}

// States lists the label values used by the connection state gauge.
var States = []string{"disconnected", "connecting", "open", "errored"}

// MustNew creates the collectors and registers them with reg. Collectors that
// are already registered (a second client in the same process, tests) are
// reused instead of panicking.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "frames_received_total",
			Help:      "Inbound text frames read from the notification socket.",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped before dispatch.",
		}, []string{"reason"}),
		callbackPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "callback_panics_total",
			Help:      "Subscriber callbacks that panicked during dispatch.",
		}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "dispatch_duration_seconds",
			Help:      "Time to fan one envelope out to every subscriber.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		connState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "1 for the current connection state, 0 otherwise.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "transitions_total",
			Help:      "Connection state transitions.",
		}, []string{"from", "to"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "subscribers",
			Help:      "Live subscriptions in the callback registry.",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "REST requests by path and outcome.",
		}, []string{"path", "outcome"}),
	}

	m.framesReceived = register(reg, m.framesReceived)
	m.framesDropped = register(reg, m.framesDropped)
	m.callbackPanics = register(reg, m.callbackPanics)
	m.dispatchDuration = register(reg, m.dispatchDuration)
	m.connState = register(reg, m.connState)
	m.transitions = register(reg, m.transitions)
	m.subscribers = register(reg, m.subscribers)
	m.apiRequests = register(reg, m.apiRequests)

	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// FrameReceived counts one inbound frame.
func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

// FrameDropped counts a frame that never reached the registry.
func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

// CallbackPanic counts a recovered subscriber panic.
func (m *Metrics) CallbackPanic() {
	if m == nil {
		return
	}
	m.callbackPanics.Inc()
}

// ObserveDispatch records one fan-out.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(d.Seconds())
}

// SetSubscribers reports the registry size.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// Transition records a state change and moves the state gauge.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
	m.SetState(to)
}

// SetState moves the state gauge without counting a transition.
func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connState.WithLabelValues(s).Set(v)
	}
}

// APIRequest counts a REST call outcome ("ok", "error", "retry").
func (m *Metrics) APIRequest(path, outcome string) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(path, outcome).Inc()
}
