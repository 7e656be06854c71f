package scheduler

import "time"

// DefaultTaskSpecs enumerates the baseline task registrations spec.md
// §4.4 names. RegisterDefaults wires each spec to a concrete Run
// function supplied by the caller (diagnosis/evolution/router are built
// independently, so the composition root provides the closures).
type DefaultTaskSpecs struct {
	SystemHealthProbe     TaskFunc // 30min, priority 1
	EconomicReview        TaskFunc // 1h, priority 2
	Reflection            TaskFunc // 24h, priority 3
	ToolMaintenance       TaskFunc // 6h, priority 2
	EvolutionCheck        TaskFunc // 24h, priority 2
	SelfDiagnosis         TaskFunc // 6h, priority 3
	PerformanceSnapshot   TaskFunc // 1h, priority 2
	CapabilityDiscovery   TaskFunc // 48h, priority 3
	IntentPrediction      TaskFunc // 12h, priority 3
	EnvironmentExploration TaskFunc // 24h, priority 3
}

// RegisterDefaults registers the ten baseline tasks spec.md §4.4 names,
// skipping any left nil in specs (useful for tests that only care about
// a subset).
func (s *Scheduler) RegisterDefaults(specs DefaultTaskSpecs, now time.Time) {
	register := func(name string, interval time.Duration, priority int, fn TaskFunc) {
		if fn == nil {
			return
		}
		s.Register(&Task{Name: name, Priority: priority, Interval: interval, Run: fn}, now)
	}

	register("system_health_probe", 30*time.Minute, 1, specs.SystemHealthProbe)
	register("economic_review", 1*time.Hour, 2, specs.EconomicReview)
	register("reflection", 24*time.Hour, 3, specs.Reflection)
	register("tool_maintenance", 6*time.Hour, 2, specs.ToolMaintenance)
	register("evolution_check", 24*time.Hour, 2, specs.EvolutionCheck)
	register("self_diagnosis", 6*time.Hour, 3, specs.SelfDiagnosis)
	register("performance_snapshot", 1*time.Hour, 2, specs.PerformanceSnapshot)
	register("capability_discovery", 48*time.Hour, 3, specs.CapabilityDiscovery)
	register("intent_prediction", 12*time.Hour, 3, specs.IntentPrediction)
	register("environment_exploration", 24*time.Hour, 3, specs.EnvironmentExploration)
}
