// Package pathname formats the UTC timestamp filenames shared by every
// on-disk artifact the pipeline produces: yyyyMMdd_HHmmss_fff.
package pathname

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp renders t (converted to UTC) as yyyyMMdd_HHmmss_fff.
func Timestamp(t time.Time) string {
	u := t.UTC()
	return fmt.Sprintf("%s_%03d", u.Format("20060102_150405"), u.Nanosecond()/1_000_000)
}

// ParseTimestamp parses the yyyyMMdd_HHmmss[_fff] prefix of name (the part
// before the first '.' or additional '_' beyond the millisecond group),
// used by crash-recovery directory scans. ok is false if name does not
// start with a well-formed timestamp.
func ParseTimestamp(name string) (time.Time, bool) {
	base := name
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return time.Time{}, false
	}
	datePart, timePart := parts[0], parts[1]
	if len(datePart) != 8 || len(timePart) != 6 {
		return time.Time{}, false
	}
	layout := "20060102150405"
	t, err := time.ParseInLocation(layout, datePart+timePart, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	if len(parts) >= 3 {
		if ms, err := strconv.Atoi(parts[2]); err == nil && len(parts[2]) == 3 {
			t = t.Add(time.Duration(ms) * time.Millisecond)
		}
	}
	return t, true
}
