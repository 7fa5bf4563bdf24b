package query

import (
	"fmt"
	"sync"
	"time"

	"kusanagi/internal/textutil"
)

// Health is a point-in-time view of a backend's circuit.
type Health struct {
	Open         bool
	OpenUntil    time.Time
	LastOpenedAt time.Time
	LastError    string
	Trips        int
	Successes    int
}

// HealthReporter is implemented by backends that guard calls with a circuit
// breaker.
type HealthReporter interface {
	Health() Health
}

// breaker opens after threshold consecutive failures and fast-fails calls
// until the recovery window passes.
type breaker struct {
	mu sync.Mutex

	threshold    int
	recovery     time.Duration
	failureCount int
	openUntil    time.Time
	lastOpenedAt time.Time
	lastError    string
	tripCount    int
	successCount int
}

func newBreaker(threshold int, recovery time.Duration) *breaker {
	return &breaker{
		threshold: max(1, threshold),
		recovery:  max(time.Second, recovery),
	}
}

func (b *breaker) allow(now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isOpenLocked(now) {
		return fmt.Errorf("%w: circuit open for %s after: %s",
			ErrServiceUnavailable, b.openUntil.Sub(now).Round(time.Second), b.lastError)
	}
	return nil
}

func (b *breaker) isOpenLocked(now time.Time) bool {
	return !b.openUntil.IsZero() && now.Before(b.openUntil)
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.openUntil = time.Time{}
	b.lastError = ""
	b.successCount++
}

// recordFailure reports whether this failure tripped the circuit.
func (b *breaker) recordFailure(now time.Time, errorText string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastError = textutil.CompactSingleLine(errorText, 240)
	if b.failureCount >= b.threshold {
		b.tripCount++
		b.failureCount = 0
		b.lastOpenedAt = now.UTC()
		b.openUntil = now.Add(b.recovery).UTC()
		return true
	}
	return false
}

func (b *breaker) snapshot(now time.Time) Health {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Health{
		Open:         b.isOpenLocked(now),
		OpenUntil:    b.openUntil,
		LastOpenedAt: b.lastOpenedAt,
		LastError:    b.lastError,
		Trips:        b.tripCount,
		Successes:    b.successCount,
	}
}
