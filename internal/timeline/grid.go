package timeline

import "math"

// GridLine is a horizontal rule drawn behind the items.
type GridLine struct {
	Offset int     `json:"offset"` // minutes from window start
	Y      float64 `json:"y"`
	Hour   bool    `json:"hour"`
	Label  string  `json:"label,omitempty"`
}

// Grid returns the slot lines followed by the hour lines for cfg. Slot
// lines that coincide with an hour boundary are omitted.
func Grid(cfg WindowConfig, pxPerMinute float64) []GridLine {
	windowMinutes := cfg.WindowMinutes()
	step := max(1, cfg.SlotMinutes)

	lines := make([]GridLine, 0, windowMinutes/step+windowMinutes/60+1)
	for m := 0; m <= windowMinutes; m += step {
		if m%60 == 0 {
			continue
		}
		lines = append(lines, GridLine{Offset: m, Y: gridY(m, pxPerMinute)})
	}
	for m := 0; m <= windowMinutes; m += 60 {
		lines = append(lines, GridLine{
			Offset: m,
			Y:      gridY(m, pxPerMinute),
			Hour:   true,
			Label:  FormatClock(cfg.StartMinute() + m),
		})
	}
	return lines
}

func gridY(offset int, pxPerMinute float64) float64 {
	return math.Floor(float64(offset)*pxPerMinute + 0.5)
}
