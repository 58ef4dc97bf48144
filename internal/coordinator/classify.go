package coordinator

// Classification thresholds.
const (
	EmergencyWorkload       = 0.9
	EmergencyBottlenecks    = 3
	EmergencyCompletionRate = 0.5
	OptimizingWorkload      = 0.7
	PreventiveWorkload      = 0.6
)

// Classify decides the mode for a snapshot. It depends on nothing but its
// argument, so equal snapshots always yield the same mode.
func Classify(s Snapshot) Mode {
	switch {
	case s.AvgWorkload > EmergencyWorkload,
		s.UnresolvedBottlenecks > EmergencyBottlenecks,
		s.CompletionRate < EmergencyCompletionRate:
		return ModeEmergency
	case s.AvgWorkload > OptimizingWorkload, s.UnresolvedBottlenecks > 0:
		return ModeOptimizing
	default:
		return ModeNormal
	}
}
