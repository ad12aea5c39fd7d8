// Package clockwrap implements overlap and membership tests against the
// device clock's 32-bit microsecond counter, which wraps roughly every 71
// minutes. Every comparison against device time must mask before compare;
// this package is the single place that does so.
package clockwrap

import "math"

// Mask32 truncates a signed microsecond value onto the device's 32-bit
// wrapping counter. Device time is unsigned and wraps at 2^32; wall-clock
// derived values must be masked before being compared against it.
func Mask32(us int64) uint32 {
	return uint32(uint64(us) & 0xFFFFFFFF)
}

// Window is a device-time span expressed in already-masked 32-bit bounds.
// Lo > Hi indicates the span crosses a wrap boundary.
type Window struct {
	Lo, Hi uint32
}

// Wrapped reports whether the window crosses the 32-bit wrap boundary.
func (w Window) Wrapped() bool { return w.Lo > w.Hi }

// Contains reports whether ts falls within the window, honoring wraparound:
// when Lo <= Hi this is a normal closed interval; when Lo > Hi the window
// covers [Lo, 2^32) union [0, Hi].
func (w Window) Contains(ts uint32) bool {
	if !w.Wrapped() {
		return ts >= w.Lo && ts <= w.Hi
	}
	return ts >= w.Lo || ts <= w.Hi
}

// Overlaps reports whether two windows share at least one device-time
// instant, handling the case where either or both cross the wrap boundary.
func Overlaps(a, b Window) bool {
	if !a.Wrapped() && !b.Wrapped() {
		return a.Lo <= b.Hi && b.Lo <= a.Hi
	}
	// If either window wraps, split it into its non-wrapping closed
	// pieces and test each piece against the other window.
	for _, pa := range a.pieces() {
		for _, pb := range b.pieces() {
			if pa.Lo <= pb.Hi && pb.Lo <= pa.Hi {
				return true
			}
		}
	}
	return false
}

// SessionWindowFromOffset computes a session's device-time window from
// its wall-clock bounds (milliseconds) and the average device/wall-clock
// offset measured for it (also milliseconds): device_us = (wall_ms -
// offset_ms) * 1000, masked onto the 32-bit wrapping device clock. Both
// the Data Linker and the Event Corrector derive a session's device
// window this same way, so it lives here rather than in either package.
func SessionWindowFromOffset(startMS, endMS int64, offsetMsAvg float64) Window {
	lo := Mask32(int64(math.Round((float64(startMS) - offsetMsAvg) * 1000)))
	hi := Mask32(int64(math.Round((float64(endMS) - offsetMsAvg) * 1000)))
	return Window{Lo: lo, Hi: hi}
}

// pieces decomposes a (possibly wrapped) window into one or two
// non-wrapping windows covering the same device-time instants.
func (w Window) pieces() []Window {
	if !w.Wrapped() {
		return []Window{w}
	}
	return []Window{
		{Lo: w.Lo, Hi: 0xFFFFFFFF},
		{Lo: 0, Hi: w.Hi},
	}
}
