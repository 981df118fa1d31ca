package simulate

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DrainPollInterval    = 50 * time.Millisecond
	PercentageMultiplier = 100
	FloatTolerance       = 1e-9
)

// Property ids written by the generator.
const (
	PropHealth   = "health"
	PropPosition = "position"
	PropState    = "state"
	PropScore    = "score"
)
