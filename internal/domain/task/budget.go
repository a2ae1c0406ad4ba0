package task

// ResolveEstimatedSteps picks the step estimate for a new task: an explicit
// positive value wins, then the plan length, then fallback.
func ResolveEstimatedSteps(explicit int, plan []string, fallback int) int {
	if explicit > 0 {
		return explicit
	}
	if len(plan) > 0 {
		return len(plan)
	}
	if fallback > 0 {
		return fallback
	}
	return 1
}

// MaxIterationsFor returns min(2*estimatedSteps, hardCap). A non-positive
// hardCap disables the cap.
func MaxIterationsFor(estimatedSteps, hardCap int) int {
	if estimatedSteps < 1 {
		estimatedSteps = 1
	}
	limit := 2 * estimatedSteps
	if hardCap > 0 && limit > hardCap {
		return hardCap
	}
	return limit
}
