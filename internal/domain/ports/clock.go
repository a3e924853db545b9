package ports

import "time"

// Clock abstracts wall-clock time so time-driven components can be tested
// deterministically.
type Clock interface {
	// Now returns the current wall-clock time in UTC.
	Now() time.Time

	// NewTicker returns a ticker firing at the given interval.
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the components need.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock implements Clock using the time package.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewTicker returns a real ticker.
func (SystemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time {
	return s.t.C
}

func (s *systemTicker) Stop() {
	s.t.Stop()
}
