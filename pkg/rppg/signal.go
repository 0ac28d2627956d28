package rppg

import (
	"math"
	"time"

	"github.com/teslashibe/go-biotracker/pkg/mathutil"
)

// Detrend subtracts the mean from values.
func Detrend(values []float64) []float64 {
	m := mathutil.Mean(values)
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v - m
	}
	return out
}

// GaussianSmooth convolves values with a Gaussian kernel of sigma samples,
// truncated at three sigma. Near the edges the kernel is renormalized over
// the samples that exist.
func GaussianSmooth(values []float64, sigma float64) []float64 {
	if sigma <= 0 || len(values) < 2 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}

	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}

	out := make([]float64, len(values))
	for i := range values {
		var sum, norm float64
		for k, w := range kernel {
			j := i + k - radius
			if j < 0 || j >= len(values) {
				continue
			}
			sum += w * values[j]
			norm += w
		}
		out[i] = sum / norm
	}
	return out
}

// FindPeaks returns the indices of local maxima that rise above an adaptive
// height and are at least minDistance apart. Of two peaks closer than
// minDistance the higher one is kept.
func FindPeaks(values []float64, times []time.Time, heightFactor float64, minDistance time.Duration) []int {
	if len(values) < 3 || len(values) != len(times) {
		return nil
	}

	median := mathutil.Quantile(values, 0.5)
	q3 := mathutil.Quantile(values, 0.75)
	threshold := median + heightFactor*(q3-median)

	var peaks []int
	for i := 1; i < len(values)-1; i++ {
		v := values[i]
		if v <= threshold || v <= values[i-1] || v < values[i+1] {
			continue
		}
		if n := len(peaks); n > 0 && times[i].Sub(times[peaks[n-1]]) < minDistance {
			if v > values[peaks[n-1]] {
				peaks[n-1] = i
			}
			continue
		}
		peaks = append(peaks, i)
	}
	return peaks
}

// RejectOutliers drops values outside the 1.5 IQR fences. Fewer than four
// values are returned unchanged, as is a result that would be empty.
func RejectOutliers(values []float64) []float64 {
	if len(values) < 4 {
		return values
	}
	q1 := mathutil.Quantile(values, 0.25)
	q3 := mathutil.Quantile(values, 0.75)
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr

	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= lo && v <= hi {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return values
	}
	return kept
}

// RecencyWeightedMean weights the i-th value by i+1 so newer values count
// more.
func RecencyWeightedMean(values []float64) float64 {
	weights := make([]float64, len(values))
	for i := range weights {
		weights[i] = float64(i + 1)
	}
	return mathutil.WeightedMean(values, weights)
}
