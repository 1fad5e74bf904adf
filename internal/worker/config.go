package worker

import "time"

type Config struct {
	// RunTimeout bounds one install run. Zero means no bound.
	RunTimeout time.Duration
	// ShutdownGrace is how long Shutdown waits for runs before cancelling them.
	ShutdownGrace time.Duration
}
