package react

// DefaultStuckThreshold is the number of consecutive identical dispatches
// that ends a task as stuck.
const DefaultStuckThreshold = 3

// stuckDetector remembers only the previous dispatch. A call identical to it
// extends the streak; anything else starts a new one.
type stuckDetector struct {
	threshold   int
	lastTool    string
	lastPrint   string
	repeatCount int
}

func newStuckDetector(threshold int) *stuckDetector {
	if threshold < 2 {
		threshold = DefaultStuckThreshold
	}
	return &stuckDetector{threshold: threshold}
}

// Observe records a dispatch and reports whether the streak reached the
// threshold.
func (d *stuckDetector) Observe(toolName, fingerprint string) bool {
	if d.repeatCount > 0 && toolName == d.lastTool && fingerprint == d.lastPrint {
		d.repeatCount++
	} else {
		d.lastTool = toolName
		d.lastPrint = fingerprint
		d.repeatCount = 1
	}
	return d.repeatCount >= d.threshold
}

// Streak is the length of the current run of identical calls.
func (d *stuckDetector) Streak() int { return d.repeatCount }
