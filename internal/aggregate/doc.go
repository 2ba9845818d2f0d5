// Package aggregate reduces one window of raw venue events into a single
// volume-weighted average price sample.
//
// The reduction is order independent. Large windows are split across
// goroutines and the partial sums combined; small windows use a plain fold.
package aggregate
