// Package timeline places time-boxed items on a vertical day timeline.
//
// Everything here is pure: callers pass immutable values in and receive
// freshly allocated results. Nothing logs, blocks or returns an error;
// malformed input degrades to clamped or empty output.
package timeline

import (
	"fmt"
	"math"
)

const (
	// MinutesPerDay is the modulus used when formatting clock times.
	MinutesPerDay = 24 * 60

	// DefaultMinTouchPx is the minimum tappable height of a rendered item.
	DefaultMinTouchPx = 44

	DefaultStartHour   = 7
	DefaultEndHour     = 19
	DefaultSlotMinutes = 30
)

// WindowConfig describes the visible part of the day.
//
// SlotMinutes only controls grid density; it never changes placement.
type WindowConfig struct {
	StartHour   int `yaml:"start_hour" json:"start_hour"`
	EndHour     int `yaml:"end_hour" json:"end_hour"`
	SlotMinutes int `yaml:"slot_minutes" json:"slot_minutes"`
}

// DefaultWindow returns the 07:00–19:00 business-hours window.
func DefaultWindow() WindowConfig {
	return WindowConfig{
		StartHour:   DefaultStartHour,
		EndHour:     DefaultEndHour,
		SlotMinutes: DefaultSlotMinutes,
	}
}

// StartMinute is the window start in minutes since midnight.
func (c WindowConfig) StartMinute() int { return c.StartHour * 60 }

// EndMinute is the window end in minutes since midnight.
func (c WindowConfig) EndMinute() int { return c.EndHour * 60 }

// WindowMinutes is the window length, zero when EndHour <= StartHour.
func (c WindowConfig) WindowMinutes() int {
	return max(0, c.EndHour-c.StartHour) * 60
}

// Clamp pins m into [StartMinute, EndMinute].
func (c WindowConfig) Clamp(m int) int {
	return min(max(m, c.StartMinute()), c.EndMinute())
}

// ParseClock parses "H:MM" or "HH:MM" into minutes since midnight.
// The second result is false for any other shape or an out-of-range value.
func ParseClock(text string) (int, bool) {
	n := len(text)
	if n < 4 || n > 5 || text[n-3] != ':' {
		return 0, false
	}
	hour, ok := parseDigits(text[:n-3])
	if !ok {
		return 0, false
	}
	minute, ok := parseDigits(text[n-2:])
	if !ok {
		return 0, false
	}
	if hour > 23 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	v := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int(c-'0')
	}
	return v, true
}

// FormatClock formats minutes since midnight as zero-padded 24-hour "HH:MM".
// Totals past midnight (or negative) wrap modulo one day.
func FormatClock(minutes int) string {
	m := ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// PixelsPerMinute derives the fixed vertical scale from a baseline slot,
// e.g. a 30 minute slot drawn 36px tall. Both inputs are floored and lifted
// to at least 1.
func PixelsPerMinute(baselineSlotMinutes, baselineSlotPx float64) float64 {
	minutes := math.Max(1, math.Floor(baselineSlotMinutes))
	px := math.Max(1, math.Floor(baselineSlotPx))
	return px / minutes
}

// Scale bundles the pixel parameters for ComputeYAndHeight. Zero values
// select the defaults (44px touch target, device pixel ratio 1).
type Scale struct {
	PxPerMinute      float64
	MinTouchPx       float64
	DevicePixelRatio float64
}

func (s Scale) minTouch() float64 {
	if s.MinTouchPx <= 0 {
		return DefaultMinTouchPx
	}
	return math.Max(1, s.MinTouchPx)
}

func (s Scale) dpr() float64 {
	return math.Max(1, math.Floor(s.DevicePixelRatio))
}

// Geometry is the vertical placement of one item.
// StartMin and EndMin are clamped offsets from the window start.
type Geometry struct {
	Y        float64 `json:"y"`
	Height   float64 `json:"height"`
	StartMin int     `json:"start_min"`
	EndMin   int     `json:"end_min"`
}

// ComputeYAndHeight maps [startMin, endMin] (minutes since midnight) onto
// the window. An interval entirely before the window pins to y=0, one
// entirely after pins to the window end; callers filter those beforehand.
func ComputeYAndHeight(startMin, endMin int, cfg WindowConfig, s Scale) Geometry {
	windowStart := cfg.StartMinute()
	windowMinutes := cfg.WindowMinutes()

	startClamped := max(startMin, windowStart)
	endClamped := min(endMin, cfg.EndMinute())

	offStart := min(windowMinutes, max(0, startClamped-windowStart))
	offEnd := min(windowMinutes, max(offStart, endClamped-windowStart))

	rawY := float64(offStart) * s.PxPerMinute
	rawH := math.Max(s.minTouch(), float64(offEnd-offStart)*s.PxPerMinute)

	dpr := s.dpr()
	return Geometry{
		Y:        roundToDevicePixel(rawY, dpr),
		Height:   roundToDevicePixel(rawH, dpr),
		StartMin: offStart,
		EndMin:   offEnd,
	}
}

// roundToDevicePixel rounds half-up onto the device pixel grid.
func roundToDevicePixel(v, dpr float64) float64 {
	return math.Floor(v*dpr+0.5) / dpr
}

// MinutesToClockFromWindowStart turns an offset from the top of the window
// into a clock time, snapped to the nearest multiple of step minutes.
func MinutesToClockFromWindowStart(offset float64, cfg WindowConfig, step int) string {
	step = max(1, step)
	clamped := math.Max(0, math.Min(offset, float64(cfg.WindowMinutes())))
	snapped := int(math.Floor(clamped/float64(step)+0.5)) * step
	return FormatClock(cfg.StartMinute() + snapped)
}
