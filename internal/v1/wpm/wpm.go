// Package wpm provides the typing-speed formulas used for finish metrics.
// These functions are the sole authority for the numbers carried in Finish
// messages; nothing else in the codebase computes words-per-minute.
package wpm

// Gross returns gross words per minute: (chars/5) / (seconds/60).
// A "word" is the conventional five characters. Returns 0 when seconds
// is not positive; callers are expected to measure a real elapsed time.
func Gross(chars int, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return (float64(chars) / 5.0) / (seconds / 60.0)
}

// Net returns gross WPM minus the uncorrected-error penalty
// (errors * 60 / seconds), clamped at zero.
func Net(chars int, seconds float64, errors int) float64 {
	if seconds <= 0 {
		return 0
	}
	net := Gross(chars, seconds) - float64(errors)*60.0/seconds
	if net < 0 {
		return 0
	}
	return net
}

// Accuracy returns the percentage of correct characters out of total.
// By convention an empty sample is 100% accurate.
func Accuracy(correct, total int) float64 {
	if total == 0 {
		return 100.0
	}
	return float64(correct) / float64(total) * 100.0
}
