package jobx

import "time"

// Options configures a Worker.
type Options struct {
	Queues          []string
	Concurrency     int
	MaxAttempts     int
	PopWait         time.Duration
	PromoteInterval time.Duration
	RetryBase       time.Duration
	RetryMax        time.Duration
	ShutdownTimeout time.Duration
}

func defaultOptions() Options {
	return Options{
		Queues:          []string{"default"},
		Concurrency:     2,
		MaxAttempts:     5,
		PopWait:         2 * time.Second,
		PromoteInterval: time.Second,
		RetryBase:       10 * time.Second,
		RetryMax:        10 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}
}

type Option func(*Options)

// WithQueues sets the queues the worker pops from, in priority order.
func WithQueues(queues ...string) Option {
	return func(o *Options) {
		if len(queues) > 0 {
			o.Queues = queues
		}
	}
}

func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxAttempts = n
		}
	}
}

// WithPopWait bounds how long a single pop blocks on an empty queue.
func WithPopWait(d time.Duration) Option {
	return func(o *Options) { o.PopWait = d }
}

func WithPromoteInterval(d time.Duration) Option {
	return func(o *Options) { o.PromoteInterval = d }
}

// WithRetryBackoff sets the first retry delay and its cap. Each further
// attempt doubles the delay.
func WithRetryBackoff(base, limit time.Duration) Option {
	return func(o *Options) {
		o.RetryBase = base
		o.RetryMax = limit
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Options) { o.ShutdownTimeout = d }
}
