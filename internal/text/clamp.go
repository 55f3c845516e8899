package text

// Clamp bounds value into [lo, hi], inclusive on both ends.
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
