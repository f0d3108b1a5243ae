package pool

import "github.com/prometheus/client_golang/prometheus"

// metrics bundles the Prometheus collectors a pool exposes. The pool
// never registers these itself — callers running more than one pool in
// a process would collide on metric names — instead Metrics() returns
// the collector set so the caller registers it against its own
// registry, the pattern client_golang itself documents and the one
// raft-recovery and lindb follow for their own subsystem metrics.
type Metrics struct {
	Workers       prometheus.Gauge
	IdleWorkers   prometheus.Gauge
	RunningTasks  prometheus.Gauge
	QueuedTasks   prometheus.Gauge
	Dispatched    prometheus.Counter
	Crashes       prometheus.Counter
	Aborts        prometheus.Counter
	ScaleUps      prometheus.Counter
	ScaleDowns    prometheus.Counter
}

func newMetrics(namespace string) *Metrics {
	return &Metrics{
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "workers", Help: "Current number of live workers.",
		}),
		IdleWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "idle_workers", Help: "Current number of idle workers.",
		}),
		RunningTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "running_tasks", Help: "Tasks currently dispatched to a worker.",
		}),
		QueuedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queued_tasks", Help: "Tasks waiting for a worker.",
		}),
		Dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dispatched_total", Help: "Tasks posted to a worker.",
		}),
		Crashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "worker_crashes_total", Help: "Worker error-handler firings.",
		}),
		Aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "task_aborts_total", Help: "Tasks that terminated via abort.",
		}),
		ScaleUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "scale_ups_total", Help: "Workers added by auto-grow.",
		}),
		ScaleDowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "scale_downs_total", Help: "Workers removed by auto-shrink.",
		}),
	}
}

// Collectors returns every collector in the set, for bulk registration:
// registry.MustRegister(m.Collectors()...).
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Workers, m.IdleWorkers, m.RunningTasks, m.QueuedTasks,
		m.Dispatched, m.Crashes, m.Aborts, m.ScaleUps, m.ScaleDowns,
	}
}
