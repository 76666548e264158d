package worker

import (
	"time"

	"github.com/mpislabs/draftflow/pkg/security"
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Concurrency       int
	PollInterval      time.Duration
	WorkerID          string
	Lease             time.Duration // how long a leased job stays owned without a heartbeat
	HeartbeatInterval time.Duration
	StorageRetry      *RetryConfig
	LeaseRetry        *RetryConfig
}

// Concurrency sets how many jobs the worker drives at once.
// Values are clamped to [1, MaxConcurrency].
func Concurrency(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.Concurrency = security.ClampConcurrency(n)
	})
}

// WithPollInterval sets how often the worker looks for leasable jobs.
func WithPollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// WithWorkerID sets the lease owner name. Defaults to a random UUID.
func WithWorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if id != "" {
			c.WorkerID = id
		}
	})
}

// WithLease sets the lease duration. The heartbeat runs at a third of it.
func WithLease(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.Lease = d
			c.HeartbeatInterval = d / 3
		}
	})
}

// WithStorageRetry sets the retry policy for storage writes.
func WithStorageRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StorageRetry = &cfg
	})
}
