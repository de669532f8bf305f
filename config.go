// Package eventuate provides the idempotent event-transformation core of a
// causally consistent event-sourcing platform: processors that consume an
// ordered durable source stream, apply a deterministic transformation, and
// republish results to a target stream without ever duplicating output
// across crashes, restarts, and retried writes.
package eventuate

import (
	"time"
)

// Process-wide defaults, overridable per processor instance.
const (
	DefaultReadTimeout    = 10 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultWriteBatchSize = 64
)
