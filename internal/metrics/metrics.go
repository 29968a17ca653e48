// Package metrics exposes Prometheus metrics for lvm dispatches, volume
// operations and pool/volume capacity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jbweber/strata/internal/lvm"
)

const namespace = "strata"

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Recorder records operation outcomes. A nil *Recorder records nothing.
type Recorder struct {
	dispatches     *prometheus.CounterVec
	operations     *prometheus.CounterVec
	commitDuration *prometheus.HistogramVec
}

// NewRecorder creates a Recorder and registers its metrics with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lvm_dispatch_total",
				Help:      "Total number of lvm invocations by action and result",
			},
			[]string{"action", "result"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "volume_operations_total",
				Help:      "Total number of volume operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		commitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "volume_commit_duration_seconds",
				Help:      "Time taken to commit a volume snapshot into a new revision",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
	}

	for _, c := range []prometheus.Collector{r.dispatches, r.operations, r.commitDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// ObserveDispatch implements lvm.Observer.
func (r *Recorder) ObserveDispatch(action lvm.Action, err error) {
	if r == nil {
		return
	}
	r.dispatches.WithLabelValues(string(action), result(err)).Inc()
}

// ObserveOperation counts a volume operation.
func (r *Recorder) ObserveOperation(op string, err error) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(op, result(err)).Inc()
}

// ObserveCommit records the duration of a commit.
func (r *Recorder) ObserveCommit(d time.Duration, err error) {
	if r == nil {
		return
	}
	r.commitDuration.WithLabelValues(result(err)).Observe(d.Seconds())
}

// Handler returns the HTTP handler serving reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
