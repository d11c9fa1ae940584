// Monotonic clock. time.Since on a time.Time obtained from time.Now carries
// a monotonic reading internally, so deriving "now" from a single fixed
// epoch gives a monotonic millisecond counter without touching the wall
// clock directly.

package threadly

import (
	"time"
)

var processEpoch = time.Now()

// nowMillis returns monotonic milliseconds elapsed since process start.
func nowMillis() int64 {
	return time.Since(processEpoch).Milliseconds()
}
