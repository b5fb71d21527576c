// Package rsam computes real-time seismic amplitude measurements.
//
// RSAM is the mean absolute amplitude of a demeaned window. SSAM splits the
// same window into frequency bands and reports the mean spectral amplitude of
// each band. Accumulator groups a stream's packets into fixed windows aligned
// to multiples of the window length and emits one Result per closed window.
package rsam
