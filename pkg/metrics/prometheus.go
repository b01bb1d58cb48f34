package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	stepDuration *prometheus.HistogramVec
	errorsTotal  *prometheus.CounterVec
	rowsAppended *prometheus.CounterVec
	regime       *prometheus.GaugeVec
	runsTotal    *prometheus.CounterVec
	lastSuccess  prometheus.Gauge
	now          func() time.Time
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		stepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketstate_pipeline_step_duration_seconds",
				Help:    "Duration of pipeline steps in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"step"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketstate_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		rowsAppended: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketstate_rows_appended_total",
				Help: "Rows appended to persisted artifacts",
			},
			[]string{"artifact"},
		),
		regime: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketstate_current_regime",
				Help: "1 for the latest regime of each classifier, 0 for the others seen",
			},
			[]string{"classifier", "regime"},
		),
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketstate_pipeline_runs_total",
				Help: "Pipeline runs by result",
			},
			[]string{"result"},
		),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "marketstate_pipeline_last_success_timestamp_seconds",
			Help: "Unix time of the last successful pipeline run",
		}),
		now: time.Now,
	}
}

func (r *Recorder) RecordStep(step string, seconds float64) {
	r.stepDuration.WithLabelValues(step).Observe(seconds)
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordRowsAppended(artifact string, n int) {
	r.rowsAppended.WithLabelValues(artifact).Add(float64(n))
}

// RecordRegime marks regime as current for classifier and clears the others.
func (r *Recorder) RecordRegime(classifier, regime string) {
	r.regime.DeletePartialMatch(prometheus.Labels{"classifier": classifier})
	r.regime.WithLabelValues(classifier, regime).Set(1)
}

func (r *Recorder) RecordRun(success bool) {
	if !success {
		r.runsTotal.WithLabelValues("error").Inc()
		return
	}
	r.runsTotal.WithLabelValues("ok").Inc()
	r.lastSuccess.Set(float64(r.now().Unix()))
}

// Noop discards all measurements.
type Noop struct{}

func (Noop) RecordStep(string, float64) {}
func (Noop) RecordError(string) {}
func (Noop) RecordRowsAppended(string, int) {}
func (Noop) RecordRegime(string, string) {}
func (Noop) RecordRun(bool) {}
