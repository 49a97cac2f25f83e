package ascii

import (
	"time"
)

// Expiration is the exptime argument of a storage command: either a duration
// relative to now or an absolute point in time. The zero value never expires.
type Expiration struct {
	relative time.Duration
	absolute time.Time
}

// NoExpiration keeps the item until it is evicted.
var NoExpiration = Expiration{}

// ExpireIn expires the item d from now. Sub-second precision is dropped.
//
// d is sent unchanged as a number of seconds. Beyond MaxRelativeExpiration
// (30 days) the server reads the number as a Unix timestamp, which lies in
// the past, and the item expires immediately; use ExpireAt for longer
// lifetimes.
func ExpireIn(d time.Duration) Expiration {
	return Expiration{relative: d}
}

// ExpireAt expires the item at t.
func ExpireAt(t time.Time) Expiration {
	return Expiration{absolute: t}
}

// IsAbsolute reports whether the expiration was given as a point in time.
func (e Expiration) IsAbsolute() bool {
	return !e.absolute.IsZero()
}

// Seconds returns the exptime sent to the server: the relative duration in
// whole seconds, or the Unix epoch second of an absolute time.
func (e Expiration) Seconds() int64 {
	if e.IsAbsolute() {
		return e.absolute.Unix()
	}
	return int64(e.relative / time.Second)
}
