package rsam

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Band is a half-open frequency interval [Low, High) in Hz.
type Band struct {
	Low  float64 `toml:"low" json:"low"`
	High float64 `toml:"high" json:"high"`
}

func (b Band) String() string {
	return fmt.Sprintf("%g-%g", b.Low, b.High)
}

// DefaultBands are the SSAM bands used when a stream does not configure its own.
var DefaultBands = []Band{
	{Low: 0.5, High: 1},
	{Low: 1, High: 2},
	{Low: 2, High: 4},
	{Low: 4, High: 8},
	{Low: 8, High: 16},
}

// ValidateBands rejects empty or inverted bands.
func ValidateBands(bands []Band) error {
	for i, b := range bands {
		if b.Low < 0 || b.High <= b.Low {
			return fmt.Errorf("band %d (%s): low must be >= 0 and below high", i, b)
		}
	}
	return nil
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, x := range samples {
		sum += x
	}
	return sum / float64(len(samples))
}

// RSAM returns the mean absolute deviation of samples from their mean.
func RSAM(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	m := mean(samples)
	var sum float64
	for _, x := range samples {
		sum += math.Abs(x - m)
	}
	return sum / float64(len(samples))
}

// SSAM returns one mean spectral amplitude per band. Bands outside the
// Nyquist range report zero.
func SSAM(samples []float64, sampleRate float64, bands []Band) []float64 {
	result := make([]float64, len(bands))
	if len(samples) < 2 || sampleRate <= 0 {
		return result
	}

	amplitudes, df := amplitudeSpectrum(samples, sampleRate)
	for i, b := range bands {
		var sum float64
		var count int
		for k := 1; k < len(amplitudes); k++ {
			f := float64(k) * df
			if f >= b.Low && f < b.High {
				sum += amplitudes[k]
				count++
			}
		}
		if count > 0 {
			result[i] = sum / float64(count)
		}
	}
	return result
}

// amplitudeSpectrum returns the single-sided amplitude spectrum of the demeaned
// samples and its bin width in Hz. Any length is transformed directly; there is
// no padding to a power of two.
func amplitudeSpectrum(samples []float64, sampleRate float64) ([]float64, float64) {
	n := len(samples)
	m := mean(samples)
	demeaned := make([]float64, n)
	for i, x := range samples {
		demeaned[i] = x - m
	}

	coeffs := fourier.NewFFT(n).Coefficients(nil, demeaned)

	amplitudes := make([]float64, len(coeffs))
	scale := 2 / float64(n)
	for k, c := range coeffs {
		amplitudes[k] = cmplx.Abs(c) * scale
	}
	return amplitudes, sampleRate / float64(n)
}
