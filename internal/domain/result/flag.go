package result

import "strconv"

// ComputeFlag applies the auto-flag rule used on every value write,
// instrument or manual: unparsable values are abnormal, otherwise the
// value is compared against the test's reference bounds.
func ComputeFlag(value string, minRef, maxRef *float64) string {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return FlagAbnormal
	}
	if minRef != nil && v < *minRef {
		return FlagLow
	}
	if maxRef != nil && v > *maxRef {
		return FlagHigh
	}
	return FlagNormal
}
