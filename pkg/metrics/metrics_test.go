package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRecordsWorkers(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())

	r.WorkerSpawned(PoolBackground, 1, 1)
	r.WorkerSpawned(PoolBackground, 2, 2)
	r.WorkerExited(PoolBackground, 1)
	r.SetIdle(PoolBackground, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.WorkersSpawned.WithLabelValues(PoolBackground)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.WorkersExited.WithLabelValues(PoolBackground)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.WorkersAlive.WithLabelValues(PoolBackground)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.WorkersPeak.WithLabelValues(PoolBackground)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.WorkersIdle.WithLabelValues(PoolBackground)))
}

func TestRegistryEngineAndWatchdog(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())

	r.EngineAcquired("main", 3*time.Millisecond, 2)
	r.WatchdogPolled("main", false, false)
	r.WatchdogPolled("main", true, false)
	r.WatchdogPolled("main", true, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.ContextSwitches.WithLabelValues("main")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.EngineWaiting.WithLabelValues("main")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.WatchdogPolls.WithLabelValues("main")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.WatchdogStalls.WithLabelValues("main")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.WatchdogInterrupts.WithLabelValues("main")))
}

func TestRegistryNamespaceAndLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistryWithConfig(Config{
		Enabled:   true,
		Registry:  reg,
		Namespace: "script",
		Labels:    prometheus.Labels{"isolate": "main"},
	})
	require.NotNil(t, r)

	r.TimerScheduled("timers")
	r.TimerFired("timers")

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() == "script_timers_fired_total" {
			found = true
			labels := mf.GetMetric()[0].GetLabel()
			var names []string
			for _, l := range labels {
				names = append(names, l.GetName()+"="+l.GetValue())
			}
			assert.Contains(t, strings.Join(names, ","), "isolate=main")
		}
	}
	assert.True(t, found, "expected script_timers_fired_total to be gathered")
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry

	assert.NotPanics(t, func() {
		r.WorkerSpawned(PoolFiber, 1, 1)
		r.WorkerExited(PoolFiber, 0)
		r.SetIdle(PoolFiber, 0)
		r.TaskSubmitted(PoolFiber, 1)
		r.TaskDone(PoolFiber, time.Millisecond, nil, 0)
		r.EngineAcquired("main", 0, 0)
		r.WatchdogPolled("main", true, true)
		r.TimerScheduled("timers")
		r.TimerFired("timers")
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, DefaultNamespace, cfg.Namespace)
	assert.NotNil(t, cfg.Registry)
}
