package meterutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToVolume(t *testing.T) {
	assert.Equal(t, 5000.0, ToVolume(50))
	assert.Equal(t, 10000.0, ToVolume(100))
	assert.Equal(t, 0.0, ToVolume(0))
	assert.Equal(t, -200.0, ToVolume(-2))
}

func TestToLocalTimeAppliesFixedOffset(t *testing.T) {
	assert.Equal(t, "1970-01-01 08:00:00", ToLocalTime(0))
	assert.Equal(t, "1970-01-01 09:00:00", ToLocalTime(3600))
	assert.Equal(t, "1970-01-01 10:00:00", ToLocalTime(7200))
}

func TestToLocalTimeZeroPadding(t *testing.T) {
	// 2021-02-03 04:05:06 UTC -> 12:05:06 local
	assert.Equal(t, "2021-02-03 12:05:06", ToLocalTime(1612325106))
}

func TestToLocalTimeAcceptsNegativeEpoch(t *testing.T) {
	assert.Equal(t, "1970-01-01 07:59:59", ToLocalTime(-1))
	assert.Equal(t, "1969-12-31 08:00:00", ToLocalTime(-86400))
}

func TestFormatVolume(t *testing.T) {
	assert.Equal(t, "0.000", FormatVolume(0))
	assert.Equal(t, "5000.000", FormatVolume(5000))
	assert.Equal(t, "123.457", FormatVolume(123.4567))
	assert.Equal(t, "-42.100", FormatVolume(-42.1))
	// large values must never switch to exponent notation
	assert.Equal(t, "12345678901234.500", FormatVolume(12345678901234.5))
}
