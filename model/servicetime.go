package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Offset from the start of a service day, as given by a GTFS
// HH:MM:SS string. Hours may exceed 23 for trips running past
// midnight. Valid is false when the source value was missing or
// malformed; such values must be left out of aggregations rather
// than read as zero.
type ServiceTime struct {
	Seconds int
	Valid   bool
}

// Parses a GTFS time string. Never fails; malformed input yields an
// invalid ServiceTime.
func ParseServiceTime(s string) ServiceTime {
	secs, ok := ToSeconds(s)
	if !ok {
		return ServiceTime{}
	}
	return ServiceTime{Seconds: secs, Valid: true}
}

// Largest hour field for which HH:59:59 still fits in an int.
const maxHours = (math.MaxInt - 3599) / 3600

// Converts HH:MM:SS to seconds since start of service day.
func ToSeconds(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	split := strings.Split(s, ":")
	if len(split) != 3 {
		return 0, false
	}

	hms := [3]int{}
	for i, str := range split {
		if str == "" || (i > 0 && len(str) != 2) {
			return 0, false
		}
		for _, c := range str {
			if c < '0' || c > '9' {
				return 0, false
			}
		}
		j, err := strconv.Atoi(str)
		if err != nil {
			return 0, false
		}
		hms[i] = j
	}

	if hms[0] > maxHours || hms[1] > 59 || hms[2] > 59 {
		return 0, false
	}

	return hms[0]*3600 + hms[1]*60 + hms[2], true
}

// Converts HH:MM:SS to fractional minutes since start of service day.
func ToMinutes(s string) (float64, bool) {
	secs, ok := ToSeconds(s)
	if !ok {
		return 0, false
	}
	return float64(secs) / 60, true
}

func (t ServiceTime) Minutes() float64 {
	return float64(t.Seconds) / 60
}

// Hour component, possibly >= 24.
func (t ServiceTime) Hour() int {
	return t.Seconds / 3600
}

func (t ServiceTime) Duration() time.Duration {
	return time.Duration(t.Seconds) * time.Second
}

// Formats as HH:MM:SS, or "" when invalid.
func (t ServiceTime) String() string {
	if !t.Valid {
		return ""
	}
	return fmt.Sprintf("%02d:%02d:%02d", t.Seconds/3600, t.Seconds/60%60, t.Seconds%60)
}
