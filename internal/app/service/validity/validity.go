package validity

import "time"

type State string

const (
	StateValid   State = "VALID"
	StateExpired State = "EXPIRED"
)

// Evaluate reports whether a paid purchase still grants access at now.
// The access window is [paidAt, paidAt+duration); the end is exclusive.
func Evaluate(paidAt time.Time, duration time.Duration, now time.Time) State {
	if now.Before(paidAt.Add(duration)) {
		return StateValid
	}
	return StateExpired
}

// ExpiresAt returns the exclusive end of the access window.
func ExpiresAt(paidAt time.Time, duration time.Duration) time.Time {
	return paidAt.Add(duration)
}
