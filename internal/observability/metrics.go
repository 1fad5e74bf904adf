package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// nuffi-api metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nuffi_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"route", "method", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nuffi_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	ActiveRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nuffi_active_requests",
		Help: "Current in-flight requests",
	})

	// install run metrics
	InstallRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nuffi_install_runs_total",
		Help: "Finished install runs",
	}, []string{"outcome"})

	InstallRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nuffi_install_run_duration_seconds",
		Help:    "Install run duration from first step to terminal state",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"outcome"})

	ActiveRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nuffi_active_install_runs",
		Help: "Install runs in flight",
	})

	StepTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nuffi_step_total",
		Help: "Install step outcomes",
	}, []string{"step", "status"})

	StepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nuffi_step_duration_seconds",
		Help:    "Install step duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"step"})

	ItemTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nuffi_item_total",
		Help: "Installed item outcomes",
	}, []string{"kind", "status"})

	WorkspaceStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nuffi_workspace_state_transitions_total",
		Help: "Workspace state transition count",
	}, []string{"from", "to"})

	// executor metrics
	ExecutorActiveItems = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nuffi_executor_active_items",
		Help: "Items currently being installed",
	})

	ExecutorItemDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nuffi_executor_item_duration_seconds",
		Help:    "Executor item install duration",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
	}, []string{"kind"})

	ExecutorItemFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nuffi_executor_item_fail_total",
		Help: "Executor item failures",
	}, []string{"kind", "reason"})
)

func RegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, ActiveRequests,
		InstallRunsTotal, InstallRunDuration, ActiveRuns,
		StepTotal, StepDuration, ItemTotal, WorkspaceStateTransitions,
		ExecutorActiveItems, ExecutorItemDuration, ExecutorItemFailTotal,
	)
}
