package settings

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

var compactDuration = regexp.MustCompile(`^\s*(?:(\d+)y)?\s*(?:(\d+)w)?\s*(?:(\d+)d)?\s*(?:(\d+)h)?\s*(?:(\d+)m)?\s*(?:(\d+)s)?\s*$`)

var compactUnits = []struct {
	suffix string
	size   time.Duration
}{
	{"y", 365 * day},
	{"w", 7 * day},
	{"d", day},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

var errBadDuration = errors.New("unrecognized duration")

// ParseDuration accepts a bare number of seconds, the compact form
// "1y 2w 3d 4h 5m 6s" (any subset, in that order), or Go duration syntax.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errBadDuration
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}

	if m := compactDuration.FindStringSubmatch(s); m != nil {
		var total time.Duration
		for i, unit := range compactUnits {
			if m[i+1] == "" {
				continue
			}
			n, err := strconv.ParseInt(m[i+1], 10, 64)
			if err != nil {
				return 0, errBadDuration
			}
			total += time.Duration(n) * unit.size
		}
		return total, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errBadDuration
	}
	return d, nil
}

// FormatDuration renders d in the compact form, dropping sub-second
// precision. Zero renders as "0s".
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}

	parts := make([]string, 0, len(compactUnits))
	for _, unit := range compactUnits {
		if d < unit.size {
			continue
		}
		q := d / unit.size
		d -= q * unit.size
		parts = append(parts, strconv.FormatInt(int64(q), 10)+unit.suffix)
		if d < time.Second {
			break
		}
	}
	return strings.Join(parts, " ")
}
