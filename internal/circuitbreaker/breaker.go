// Package circuitbreaker guards external data sources so that a failing endpoint is
// skipped for a cool-down period instead of being hit on every analysis run.
package circuitbreaker

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ErrOpen is returned when a call is rejected because the breaker is open or the
// half-open trial budget is exhausted.
var ErrOpen = errors.New("circuit breaker open: source temporarily disabled")

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, calls are rejected
	StateHalfOpen              // Probing whether the source has recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Settings configures when a breaker trips and how it recovers.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that trips the breaker
	FailureThreshold uint32 `json:"failure_threshold" yaml:"failure_threshold"`

	// ResetDelay is how long the breaker stays open before probing again
	ResetDelay time.Duration `json:"reset_delay" yaml:"reset_delay"`

	// SuccessThreshold is the number of successful trial requests needed to close again
	SuccessThreshold uint32 `json:"success_threshold" yaml:"success_threshold"`
}

// DefaultSettings returns the settings used for registry, telemetry and price endpoints.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 3,
		ResetDelay:       5 * time.Minute,
		SuccessThreshold: 1,
	}
}

// CircuitBreaker wraps a gobreaker.CircuitBreaker with a resettable handle.
type CircuitBreaker struct {
	name     string
	settings Settings

	mu sync.RWMutex
	cb *gobreaker.CircuitBreaker

	// Event callback for monitoring/alerting
	onTrip func(name string, from, to State)
}

// New creates a closed breaker named name.
func New(name string, s Settings) *CircuitBreaker {
	d := DefaultSettings()
	if s.FailureThreshold == 0 {
		s.FailureThreshold = d.FailureThreshold
	}
	if s.ResetDelay <= 0 {
		s.ResetDelay = d.ResetDelay
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = d.SuccessThreshold
	}
	b := &CircuitBreaker{name: name, settings: s}
	b.cb = b.build()
	return b
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (b *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings.ResetDelay = delay
	b.cb = b.build()
	return b
}

// WithTripCallback sets a function called on every state change
func (b *CircuitBreaker) WithTripCallback(callback func(name string, from, to State)) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = callback
	return b
}

func (b *CircuitBreaker) build() *gobreaker.CircuitBreaker {
	threshold := b.settings.FailureThreshold
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.settings.SuccessThreshold,
		Timeout:     b.settings.ResetDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: b.stateChanged,
	})
}

func (b *CircuitBreaker) stateChanged(name string, from, to gobreaker.State) {
	entry := logrus.WithFields(logrus.Fields{
		"breaker": name,
		"from":    from.String(),
		"to":      to.String(),
	})
	if to == gobreaker.StateOpen {
		entry.Warn("Circuit breaker tripped")
	} else {
		entry.Info("Circuit breaker state changed")
	}

	// Read unlocked: gobreaker may report a transition while b.mu is held.
	if cb := b.onTrip; cb != nil {
		go cb(name, convert(from), convert(to))
	}
}

// Name returns the breaker name
func (b *CircuitBreaker) Name() string {
	return b.name
}

// Execute runs fn unless the breaker is open. A failure of fn counts towards tripping.
func (b *CircuitBreaker) Execute(fn func() error) error {
	b.mu.RLock()
	cb := b.cb
	b.mu.RUnlock()

	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// Do is Execute for functions that return a value.
func Do[T any](b *CircuitBreaker, fn func() (T, error)) (T, error) {
	var out T
	err := b.Execute(func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// GetState returns the current state of the circuit breaker
func (b *CircuitBreaker) GetState() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return convert(b.cb.State())
}

// Counts returns the failure counters of the current generation.
func (b *CircuitBreaker) Counts() gobreaker.Counts {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cb.Counts()
}

// Reset forcibly resets the circuit breaker to closed state
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cb = b.build()
	logrus.WithField("breaker", b.name).Info("Circuit breaker manually reset to closed state")
}

func convert(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Set is a named collection of breakers, one per external endpoint.
type Set struct {
	settings Settings
	onChange func(name string, from, to State)

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewSet creates an empty Set whose breakers use s.
func NewSet(s Settings) *Set {
	return &Set{settings: s, breakers: make(map[string]*CircuitBreaker)}
}

// OnStateChange registers a callback for breakers created after the call.
func (s *Set) OnStateChange(fn func(name string, from, to State)) *Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
	return s
}

// Get returns the breaker for name, creating it on first use.
func (s *Set) Get(name string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[name]; ok {
		return b
	}
	b := New(name, s.settings)
	if s.onChange != nil {
		b.WithTripCallback(s.onChange)
	}
	s.breakers[name] = b
	return b
}

// Status describes one breaker for status endpoints.
type Status struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	TotalFailures       uint32 `json:"total_failures"`
}

// Statuses returns the state of every breaker, sorted by name.
func (s *Set) Statuses() []Status {
	s.mu.Lock()
	list := make([]*CircuitBreaker, 0, len(s.breakers))
	for _, b := range s.breakers {
		list = append(list, b)
	}
	s.mu.Unlock()

	out := make([]Status, 0, len(list))
	for _, b := range list {
		counts := b.Counts()
		out = append(out, Status{
			Name:                b.Name(),
			State:               b.GetState().String(),
			ConsecutiveFailures: counts.ConsecutiveFailures,
			TotalFailures:       counts.TotalFailures,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResetAll closes every breaker in the set.
func (s *Set) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.breakers {
		b.Reset()
	}
}
