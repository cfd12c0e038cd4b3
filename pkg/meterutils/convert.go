package meterutils

import (
	"strconv"
	"time"
)

// Raw sensor units count in steps of 0.01 of a cubic meter in the source
// scale. The same factor applies to absolute readings' deltas and every
// element of an interval batch.
const rawUnitScale = 0.01

// Reporting timezone is fixed UTC+8 with no daylight-saving rules.
var reportingZone = time.FixedZone("UTC+8", 8*60*60)

const civilTimeLayout = "2006-01-02 15:04:05"

// ToVolume converts raw sensor units to cubic meters.
// Negative and zero values are valid (meter reset / no-flow interval).
func ToVolume(raw float64) float64 {
	return raw / rawUnitScale
}

// ToLocalTime formats UTC epoch seconds as local civil time in the
// reporting zone. Negative epochs are accepted and format to pre-1970
// dates; no minimum bound is enforced.
func ToLocalTime(epochSeconds int64) string {
	return time.Unix(epochSeconds, 0).In(reportingZone).Format(civilTimeLayout)
}

// FormatVolume renders a volume with exactly 3 fractional digits, an
// invariant decimal point, no grouping and no exponent notation.
func FormatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
