package metrics

import "time"

// InstanceBuild records a finished build. path is "local" or "production";
// result is "ok" or an error code.
func InstanceBuild(path, result string, d time.Duration) {
	if !enabled {
		return
	}
	instanceBuildTotal.WithLabelValues(path, result).Inc()
	instanceBuildDuration.WithLabelValues(path).Observe(d.Seconds())
}

// KeyCache records a key cache operation ("load" or "save") and its result
// ("hit", "miss", "ok" or "error").
func KeyCache(op, result string) {
	if !enabled {
		return
	}
	keyCacheTotal.WithLabelValues(op, result).Inc()
}

// BindingTransition records a binding entering status.
func BindingTransition(status string) {
	if !enabled {
		return
	}
	bindingTransitionsTotal.WithLabelValues(status).Inc()
	for _, s := range bindingStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		bindingStatus.WithLabelValues(s).Set(v)
	}
}
