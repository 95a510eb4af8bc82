package schedule

import (
	"fmt"
	"time"

	"github.com/LabartaPablo/BUS-REALTIME/internal/reference"
)

// ClockTime is a GTFS service time in seconds since service-day midnight.
// Values of 24h and above belong to trips running past midnight.
type ClockTime int

// ParseClockTime parses HH:MM:SS. Hours may exceed 23.
func ParseClockTime(s string) (ClockTime, error) {
	d, err := reference.ParseServiceTime(s)
	if err != nil {
		return 0, err
	}
	return clockTimeFromDuration(d), nil
}

// ClockTimeOf returns the wall time of t in loc truncated to the minute. A nil
// loc uses t's own location.
func ClockTimeOf(t time.Time, loc *time.Location) ClockTime {
	if loc != nil {
		t = t.In(loc)
	}
	return ClockTime(t.Hour()*3600 + t.Minute()*60)
}

func clockTimeFromDuration(d time.Duration) ClockTime {
	return ClockTime(d / time.Second)
}

// Duration returns c as an offset from service-day midnight.
func (c ClockTime) Duration() time.Duration {
	return time.Duration(c) * time.Second
}

func (c ClockTime) String() string {
	s := int(c)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}
