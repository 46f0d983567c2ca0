package units

import (
	"fmt"
	"time"
)

// DefaultTimezone is the zone session summaries are rendered in when no
// other zone is configured.
const DefaultTimezone = "Asia/Kolkata"

// IsTimezoneValid checks if the given timezone is valid by attempting to load it from the tz database
// This validates against the actual system tz database rather than a hardcoded list
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// ConvertTime converts a UTC time to the specified timezone
// Storage keeps all times in UTC, this function converts them for display
func ConvertTime(utcTime time.Time, targetTimezone string) (time.Time, error) {
	if targetTimezone == "UTC" {
		return utcTime, nil // No conversion needed
	}

	// Load the target timezone location from the tz database
	loc, err := time.LoadLocation(targetTimezone)
	if err != nil {
		return utcTime, fmt.Errorf("failed to load timezone %s: %w", targetTimezone, err)
	}

	// Convert UTC time to the target timezone
	return utcTime.In(loc), nil
}

// FormatTimestamp renders a time in the given timezone with millisecond
// precision and the zone abbreviation, the format used by session summaries.
func FormatTimestamp(t time.Time, targetTimezone string) (string, error) {
	local, err := ConvertTime(t, targetTimezone)
	if err != nil {
		return "", err
	}
	return local.Format("2006-01-02 15:04:05.000 MST"), nil
}

// FormatElapsed renders a duration as hh:mm:ss, truncating sub-second
// precision. Durations of a day or more keep accumulating hours.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
