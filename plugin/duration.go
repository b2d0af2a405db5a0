package plugin

import "fmt"

// FormatDuration renders a millisecond count as "MM:SS (mm:ss)".
// Non-zero durations under a second are shown as one second.
func FormatDuration(ms int64) string {
	if ms <= 0 {
		return "00:00 (mm:ss)"
	}
	if ms < 1000 {
		return "00:01 (mm:ss)"
	}

	minutes := ms / 60000
	remainder := ms % 60000
	seconds := (remainder + 999) / 1000

	return fmt.Sprintf("%02d:%02d (mm:ss)", minutes, seconds)
}
