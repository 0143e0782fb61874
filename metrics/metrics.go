// Package metrics records Prometheus metrics for requests served through an
// owin.AppFunc.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iaconlabs/owinbridge/owin"
)

const namespace = "owinbridge"

// otherMethod labels every method outside knownMethods.
const otherMethod = "OTHER"

var knownMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodConnect: {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

func methodLabel(method string) string {
	if _, ok := knownMethods[method]; ok {
		return method
	}
	return otherMethod
}

// Metrics holds the request collectors.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New registers the request collectors on reg. A nil reg uses the default
// registerer. Collectors already registered by an earlier call are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Requests served, by method and response status.",
	}, []string{"method", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Time spent serving a request, by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	var err error
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &Metrics{requests: requests, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Instrument returns a middleware recording every request once the next
// delegate returns. Requests failing with an error count as status 500
// unless the delegate already set an error status. Methods outside the
// standard set share the "OTHER" label.
func (m *Metrics) Instrument() owin.Middleware {
	return func(next owin.AppFunc) owin.AppFunc {
		return func(env owin.Environment) error {
			start := time.Now()
			err := next(env)

			status := env.StatusCode()
			if err != nil && status < 400 {
				status = 500
			}
			method := methodLabel(env.Method())
			m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
			m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
