package tasks

import "time"

// Config holds configuration for the task queue system. Attempts, backoff and
// retention are per queue, see the Config methods of the task types.
type Config struct {
	// Workers is the number of concurrent task workers. Default: 2
	Workers int

	// ReleaseAfter is when a claimed task is handed back to the queue. It must
	// exceed the longest task timeout. Default: 45m
	ReleaseAfter time.Duration

	// CleanupInterval is how often expired tasks are removed. Default: 1h
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:         2,
		ReleaseAfter:    45 * time.Minute,
		CleanupInterval: time.Hour,
	}
}
