package utils

import (
	"time"
)

// UnixMillisToTime converts a Unix timestamp in milliseconds to UTC time.
// Zero maps to the zero time.
func UnixMillisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
