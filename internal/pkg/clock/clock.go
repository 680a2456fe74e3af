package clock

import "time"

// Clock abstracts the current time so expiry logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// System is the production clock backed by time.Now.
type System struct{}

func New() System { return System{} }

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a test clock that always returns the same instant.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }
