package rto

import "time"

func durationFromMillis(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func millisFromDuration(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
