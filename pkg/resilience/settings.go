package resilience

import (
	"time"

	"github.com/sony/gobreaker"
)

// Settings configures a circuit breaker.
type Settings struct {
	// Name identifies the breaker in logs and metrics.
	Name string
	// MaxRequests allowed through while half-open (0 means 1).
	MaxRequests uint32
	// Interval is the cyclic period for clearing counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// FailureThreshold is the consecutive-failure count that trips the breaker.
	FailureThreshold uint32
}

func (s Settings) toGobreaker(onStateChange func(name string, from, to gobreaker.State)) gobreaker.Settings {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	return gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: onStateChange,
	}
}

// DefaultSettings returns breaker settings suitable for a database dependency.
func DefaultSettings(name string) Settings {
	return Settings{
		Name:             name,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}
