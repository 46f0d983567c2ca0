package telemetry

import "time"

// ReconstructTimestamps assigns acquisition times to the group of
// samples decoded from one delivery. The transport stamps only the
// delivery as a whole, so per-sample times are reconstructed by stepping
// backwards from the arrival instant at the nominal interval: sample k
// of n gets arrival − (n−1−k)·interval, leaving the last sample on the
// arrival time itself.
//
// Anchoring is strictly per delivery. A batch assembled from several
// deliveries keeps each group's own anchor, which preserves correct
// relative spacing even though every group shares the bulk-arrival
// approximation. Timestamps within one group can predate the previous
// group's when deliveries bunch up; consumers order by sample position,
// not by reconstructed time.
func ReconstructTimestamps(samples []Sample, arrival time.Time, interval time.Duration) []TimestampedSample {
	n := len(samples)
	out := make([]TimestampedSample, n)
	for k, s := range samples {
		out[k] = TimestampedSample{
			Sample:    s,
			Timestamp: arrival.Add(-time.Duration(n-1-k) * interval),
		}
	}
	return out
}
