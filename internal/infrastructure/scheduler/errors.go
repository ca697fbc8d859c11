package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when submitting work to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the sync queue cannot take more work
	ErrJobQueueFull = errors.New("sync queue is full")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
