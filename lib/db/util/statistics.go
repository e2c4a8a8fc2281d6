package util

import "math"

// Stats summarizes a series of values.
type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// DistributionStats describes how evenly records are spread over shards.
// DistributionQuality is 1.0 for a perfectly balanced store and drops towards
// 0 as the coefficient of variation grows and the smallest shard shrinks
// relative to the largest.
type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats computes DistributionStats from per-shard record counts.
func NewDistributionStats(shardRecords []uint64) DistributionStats {
	if len(shardRecords) == 0 {
		return DistributionStats{}
	}

	// Welford's online mean/variance, population variance at the end
	var s Stats
	var m2 float64
	s.Min, s.Max = math.Inf(1), math.Inf(-1)
	for i, r := range shardRecords {
		v := float64(r)
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		delta := v - s.Mean
		s.Mean += delta / float64(i+1)
		m2 += delta * (v - s.Mean)
	}
	s.StdDeviation = math.Sqrt(m2 / float64(len(shardRecords)))

	s.MinMaxRatio = 1.0
	if s.Max > 0 {
		s.MinMaxRatio = s.Min / s.Max
	}

	var cv float64
	if s.Mean > 0 {
		cv = s.StdDeviation / s.Mean
	}
	return DistributionStats{
		Stats:               s,
		DistributionQuality: (1.0-math.Min(1.0, cv))*0.5 + s.MinMaxRatio*0.5,
	}
}
