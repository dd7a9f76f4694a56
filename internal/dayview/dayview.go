// Package dayview turns a day's tasks into a renderable timeline: vertical
// geometry and lanes from package timeline, plus the horizontal slice,
// colour and label each block is drawn with.
package dayview

import (
	"slices"
	"strconv"
	"strings"

	"dayplan/internal/config"
	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/timeline"
)

// Options fixes the window and pixel scale of a view.
type Options struct {
	Window              timeline.WindowConfig
	BaselineSlotMinutes float64
	BaselineSlotPx      float64
	MinTouchPx          float64
	DevicePixelRatio    float64
	// GutterPx is the horizontal gap between adjacent lanes.
	GutterPx float64
	// TrackWidthPx is the drawable width blocks are laid into.
	TrackWidthPx float64
	// TapSnapMinutes rounds tap-to-create start times.
	TapSnapMinutes int
}

// DefaultOptions returns the 07:00–19:00 window at 36px per 30 minutes.
func DefaultOptions() Options {
	return Options{
		Window:              timeline.DefaultWindow(),
		BaselineSlotMinutes: 30,
		BaselineSlotPx:      36,
		MinTouchPx:          timeline.DefaultMinTouchPx,
		DevicePixelRatio:    1,
		GutterPx:            8,
		TrackWidthPx:        320,
		TapSnapMinutes:      5,
	}
}

// OptionsFromConfig takes the window and scale from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Window:              cfg.Window,
		BaselineSlotMinutes: float64(cfg.Scale.BaselineSlotMinutes),
		BaselineSlotPx:      float64(cfg.Scale.BaselineSlotPx),
		MinTouchPx:          cfg.Scale.MinTouchPx,
		DevicePixelRatio:    cfg.Scale.DevicePixelRatio,
		GutterPx:            cfg.Scale.GutterPx,
		TrackWidthPx:        cfg.Scale.TrackWidthPx,
		TapSnapMinutes:      cfg.Scale.TapSnapMinutes,
	}
}

// Block is one task as drawn on the track.
type Block struct {
	timeline.Positioned

	ClientID string        `json:"client_id,omitempty"`
	Title    string        `json:"title"`
	Type     string        `json:"type,omitempty"`
	Variant  model.Variant `json:"variant"`
	ReadOnly bool          `json:"read_only,omitempty"`
	StartAt  string        `json:"start_at"`
	EndAt    string        `json:"end_at"`

	// Left and Width are fractions of the track width; X and WidthPx
	// resolve them against TrackWidthPx with the lane gutter removed.
	Left    float64 `json:"left"`
	Width   float64 `json:"width"`
	X       float64 `json:"x"`
	WidthPx float64 `json:"width_px"`
}

// View is a fully laid out day.
type View struct {
	Date        string                `json:"date"`
	Window      timeline.WindowConfig `json:"window"`
	PxPerMinute float64               `json:"px_per_minute"`
	HeightPx    float64               `json:"height_px"`
	WidthPx     float64               `json:"width_px"`
	Blocks      []Block               `json:"blocks"`
	Grid        []timeline.GridLine   `json:"grid"`
	// Skipped lists tasks that could not be placed (unparseable start).
	Skipped []string `json:"skipped,omitempty"`

	tapSnap int
}

// Build lays out tasks for one date. Tasks with an unparseable start are
// logged and skipped; a missing or unparseable end falls back to the start.
func Build(date string, tasks []model.Task, opts Options) View {
	ppm := timeline.PixelsPerMinute(opts.BaselineSlotMinutes, opts.BaselineSlotPx)
	scale := timeline.Scale{
		PxPerMinute:      ppm,
		MinTouchPx:       opts.MinTouchPx,
		DevicePixelRatio: opts.DevicePixelRatio,
	}

	view := View{
		Date:        date,
		Window:      opts.Window,
		PxPerMinute: ppm,
		HeightPx:    float64(opts.Window.WindowMinutes()) * ppm,
		WidthPx:     opts.TrackWidthPx,
		Grid:        timeline.Grid(opts.Window, ppm),
		Blocks:      []Block{},
		tapSnap:     opts.TapSnapMinutes,
	}

	byID := make(map[string]model.Task, len(tasks))
	intervals := make([]timeline.Interval, 0, len(tasks))
	for i, t := range tasks {
		start, ok := timeline.ParseClock(t.StartAt)
		if !ok {
			appLog.Warn("dayview: task has invalid start time; skipping",
				"id", t.ID, "date", date, "start_at", t.StartAt)
			view.Skipped = append(view.Skipped, t.ID)
			continue
		}
		end, ok := timeline.ParseClock(t.EndAt)
		if !ok {
			end = start
		}
		id := t.ID
		if id == "" {
			// Unsaved tasks still need a unique render key.
			id = "unsaved-" + strings.Join([]string{t.StartAt, t.EndAt, strconv.Itoa(i)}, "-")
		}
		byID[id] = t
		intervals = append(intervals, timeline.Interval{ID: id, Start: start, End: end})
	}

	for _, p := range timeline.Layout(intervals, opts.Window, scale) {
		t := byID[p.ID]
		b := Block{
			Positioned: p,
			ClientID:   t.ClientID,
			Title:      t.Title(),
			Type:       t.Type,
			Variant:    model.ResolveVariant(t.Type),
			ReadOnly:   t.ReadOnly(),
			StartAt:    timeline.FormatClock(p.Start),
			EndAt:      timeline.FormatClock(p.End),
		}
		b.Left, b.Width, b.X, b.WidthPx = slice(p.Lane, p.LaneCount, opts.TrackWidthPx, opts.GutterPx)
		view.Blocks = append(view.Blocks, b)
	}

	slices.SortStableFunc(view.Blocks, func(a, b Block) int {
		switch {
		case a.Y != b.Y:
			if a.Y < b.Y {
				return -1
			}
			return 1
		case a.Lane != b.Lane:
			return a.Lane - b.Lane
		default:
			return strings.Compare(a.ID, b.ID)
		}
	})
	return view
}

// slice computes the horizontal extent of lane out of count. Half the
// gutter is taken from each side that borders another lane.
func slice(lane, count int, trackPx, gutterPx float64) (left, width, x, widthPx float64) {
	count = max(1, count)
	width = 1 / float64(count)
	left = float64(lane) * width

	x = left * trackPx
	widthPx = width * trackPx
	if count > 1 {
		if lane > 0 {
			x += gutterPx / 2
			widthPx -= gutterPx / 2
		}
		if lane < count-1 {
			widthPx -= gutterPx / 2
		}
	}
	return left, width, x, max(0, widthPx)
}

// TapToClock converts a pointer y (px from the top of the track) into a
// snapped start time for a new task.
func (v View) TapToClock(y float64) string {
	ppm := v.PxPerMinute
	if ppm <= 0 {
		ppm = 1
	}
	return timeline.MinutesToClockFromWindowStart(y/ppm, v.Window, v.tapSnap)
}
