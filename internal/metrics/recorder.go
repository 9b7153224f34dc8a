// Package metrics exposes solve activity as Prometheus collectors fed by the solve hooks.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/plantopt/pkg/domain"
)

// Recorder owns the solve collectors.
type Recorder struct {
	assembled *prometheus.CounterVec
	solves    *prometheus.CounterVec
	inFlight  prometheus.Gauge
	duration  *prometheus.HistogramVec
	size      *prometheus.GaugeVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		assembled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plantopt_models_assembled_total",
			Help: "Number of assembled programs by formulation.",
		}, []string{"formulation"}),
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plantopt_solves_total",
			Help: "Number of finished solves by backend and status.",
		}, []string{"backend", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plantopt_solves_in_flight",
			Help: "Solves currently running.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plantopt_solve_duration_seconds",
			Help:    "Backend solve time.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"backend"}),
		size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plantopt_program_size",
			Help: "Size of the last assembled program.",
		}, []string{"dimension"}),
	}
	for _, c := range []prometheus.Collector{r.assembled, r.solves, r.inFlight, r.duration, r.size} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Hooks returns solve hooks that feed the collectors.
func (r *Recorder) Hooks() domain.SolveHooks {
	return domain.SolveHooks{
		OnAssemble: func(_ context.Context, e *domain.SolveEvent) {
			r.assembled.WithLabelValues(string(e.Formulation)).Inc()
			r.size.WithLabelValues("variables").Set(float64(e.Variables))
			r.size.WithLabelValues("constraints").Set(float64(e.Constraints))
		},
		OnSolveStart: func(context.Context, *domain.SolveEvent) {
			r.inFlight.Inc()
		},
		OnSolveEnd: func(_ context.Context, e *domain.SolveEvent) {
			r.inFlight.Dec()
			r.solves.WithLabelValues(e.Backend, string(e.Status)).Inc()
			r.duration.WithLabelValues(e.Backend).Observe(e.Elapsed.Seconds())
		},
	}
}
