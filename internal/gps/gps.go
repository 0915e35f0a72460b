// Package gps translates between UTC wall-clock time and the GPS time
// scale used by the gpstime fields of the network-server protocol.
package gps

import (
	"fmt"
	"time"
)

var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// Leap seconds inserted since the GPS epoch. GPS time does not apply
// them, conversions against UTC must.
var leapSeconds = []time.Time{
	time.Date(1981, time.June, 30, 23, 59, 59, 0, time.UTC),
	time.Date(1982, time.June, 30, 23, 59, 59, 0, time.UTC),
	time.Date(1983, time.June, 30, 23, 59, 59, 0, time.UTC),
	time.Date(1985, time.June, 30, 23, 59, 59, 0, time.UTC),
	time.Date(1987, time.December, 31, 23, 59, 59, 0, time.UTC),
	time.Date(1989, time.December, 31, 23, 59, 59, 0, time.UTC),
	time.Date(1990, time.December, 31, 23, 59, 59, 0, time.UTC),
	time.Date(1992, time.June, 30, 23, 59, 59, 0, time.UTC),
	time.Date(1993, time.June, 30, 23, 59, 59, 0, time.UTC),
	time.Date(1994, time.June, 30, 23, 59, 59, 0, time.UTC),
	time.Date(1995, time.December, 31, 23, 59, 59, 0, time.UTC),
	time.Date(1997, time.June, 30, 23, 59, 59, 0, time.UTC),
	time.Date(1998, time.December, 31, 23, 59, 59, 0, time.UTC),
	time.Date(2005, time.December, 31, 23, 59, 59, 0, time.UTC),
	time.Date(2008, time.December, 31, 23, 59, 59, 0, time.UTC),
	time.Date(2012, time.June, 30, 23, 59, 59, 0, time.UTC),
	time.Date(2015, time.June, 30, 23, 59, 59, 0, time.UTC),
	time.Date(2016, time.December, 31, 23, 59, 59, 0, time.UTC),
}

// Time represents a moment on the GPS time scale.
type Time time.Time

// NewFromTimeSinceGPSEpoch returns a new Time given a duration since the
// GPS epoch and will apply the leap second correction.
func NewFromTimeSinceGPSEpoch(sinceEpoch time.Duration) Time {
	t := gpsEpoch.Add(sinceEpoch)
	for _, ls := range leapSeconds {
		if ls.Before(t) {
			t = t.Add(-time.Second)
		}
	}

	return Time(t)
}

// NewFromMicroseconds returns a new Time given a protocol gpstime value,
// microseconds since the GPS epoch.
func NewFromMicroseconds(us int64) Time {
	return NewFromTimeSinceGPSEpoch(time.Duration(us) * time.Microsecond)
}

// TimeSinceGPSEpoch returns the duration since the GPS epoch, corrected
// with the leap seconds.
func (t Time) TimeSinceGPSEpoch() time.Duration {
	var offset time.Duration
	for _, ls := range leapSeconds {
		if ls.Before(time.Time(t)) {
			offset += time.Second
		}
	}

	return time.Time(t).Sub(gpsEpoch) + offset
}

// Microseconds returns the protocol gpstime value, microseconds since
// the GPS epoch.
func (t Time) Microseconds() int64 {
	return t.TimeSinceGPSEpoch().Microseconds()
}

// String implements the Stringer interface.
func (t Time) String() string {
	return fmt.Sprintf("%s (%s since GPS epoch)", time.Time(t).String(), t.TimeSinceGPSEpoch().String())
}
