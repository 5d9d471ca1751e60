package apikey

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
)

// ErrInvalidWindow is returned for a rate limit duration that does not parse
// or is not positive.
var ErrInvalidWindow = errors.New("apikey: invalid rate limit window")

// ParseWindow parses a rate limit duration such as "1h", "30m", "1d" or
// "1w2d". Units are s, m, h, d and w, plus the sub-second units accepted by
// time.ParseDuration. The result must be at least one second.
func ParseWindow(s string) (time.Duration, error) {
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "apikey: parsing window %q", s), ErrInvalidWindow)
	}
	if d < time.Second {
		return 0, errors.Wrapf(ErrInvalidWindow, "window %q is shorter than one second", s)
	}
	return d, nil
}

// FormatWindow is the inverse of ParseWindow.
func FormatWindow(d time.Duration) string {
	return str2duration.String(d)
}
