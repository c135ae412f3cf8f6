package statistic

import "time"

// Clock provides time for services.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

// Now returns current time in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
