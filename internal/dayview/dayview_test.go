package dayview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/internal/config"
	"dayplan/internal/model"
	"dayplan/internal/timeline"
)

func TestBuild_PlacesAndSlicesOverlaps(t *testing.T) {
	tasks := []model.Task{
		{ID: "a", StartAt: "09:00", EndAt: "10:00", Type: model.WorkProject, Description: "Dakgoot"},
		{ID: "b", StartAt: "09:30", EndAt: "10:30", Type: model.WorkClientVisit},
		{ID: "c", StartAt: "11:00", EndAt: "12:00", Source: "ics:work"},
	}
	v := Build("2025-03-14", tasks, DefaultOptions())

	require.Len(t, v.Blocks, 3)
	assert.InDelta(t, 1.2, v.PxPerMinute, 1e-9)
	assert.InDelta(t, 864.0, v.HeightPx, 1e-9)

	a, b, c := v.Blocks[0], v.Blocks[1], v.Blocks[2]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, "Dakgoot", a.Title)
	assert.Equal(t, model.VariantYellow, a.Variant)
	assert.InDelta(t, 144.0, a.Y, 1e-9)
	assert.Equal(t, 2, a.LaneCount)
	assert.InDelta(t, 0.0, a.Left, 1e-9)
	assert.InDelta(t, 0.5, a.Width, 1e-9)
	assert.InDelta(t, 0.0, a.X, 1e-9)
	assert.InDelta(t, 156.0, a.WidthPx, 1e-9)

	assert.Equal(t, "b", b.ID)
	assert.Equal(t, "Taak", b.Title)
	assert.Equal(t, model.VariantGreen, b.Variant)
	assert.InDelta(t, 0.5, b.Left, 1e-9)
	assert.InDelta(t, 164.0, b.X, 1e-9)
	assert.InDelta(t, 156.0, b.WidthPx, 1e-9)

	assert.Equal(t, "c", c.ID)
	assert.Equal(t, 1, c.LaneCount)
	assert.InDelta(t, 320.0, c.WidthPx, 1e-9)
	assert.True(t, c.ReadOnly)
	assert.Equal(t, "11:00", c.StartAt)
}

func TestBuild_SkipsUnparseableStart(t *testing.T) {
	tasks := []model.Task{
		{ID: "bad", StartAt: "", EndAt: "10:00"},
		{ID: "worse", StartAt: "25:00", EndAt: "26:00"},
		{ID: "no-end", StartAt: "08:00"},
	}
	v := Build("2025-03-14", tasks, DefaultOptions())

	assert.Equal(t, []string{"bad", "worse"}, v.Skipped)
	require.Len(t, v.Blocks, 1)
	assert.Equal(t, "no-end", v.Blocks[0].ID)
	assert.Equal(t, "08:00", v.Blocks[0].EndAt)
	assert.InDelta(t, 44.0, v.Blocks[0].Height, 1e-9)
}

func TestBuild_DropsOutOfWindow(t *testing.T) {
	tasks := []model.Task{{ID: "early", StartAt: "05:00", EndAt: "06:30"}}
	v := Build("2025-03-14", tasks, DefaultOptions())
	assert.Empty(t, v.Blocks)
	assert.NotNil(t, v.Blocks)
}

func TestBuild_DegenerateWindowRendersEmpty(t *testing.T) {
	opts := DefaultOptions()
	opts.Window = timeline.WindowConfig{StartHour: 19, EndHour: 7}
	v := Build("2025-03-14", []model.Task{{ID: "a", StartAt: "09:00", EndAt: "10:00"}}, opts)
	assert.Empty(t, v.Blocks)
	assert.InDelta(t, 0.0, v.HeightPx, 1e-9)
}

func TestBuild_UnsavedTasksGetDistinctKeys(t *testing.T) {
	tasks := []model.Task{
		{StartAt: "09:00", EndAt: "10:00"},
		{StartAt: "09:00", EndAt: "10:00"},
	}
	v := Build("2025-03-14", tasks, DefaultOptions())
	require.Len(t, v.Blocks, 2)
	assert.NotEqual(t, v.Blocks[0].ID, v.Blocks[1].ID)
	assert.NotEqual(t, v.Blocks[0].Lane, v.Blocks[1].Lane)
}

func TestTapToClock(t *testing.T) {
	v := Build("2025-03-14", nil, DefaultOptions())
	// 67 minutes below 07:00 at 1.2 px/min.
	assert.Equal(t, "08:05", v.TapToClock(67*1.2))
	assert.Equal(t, "07:00", v.TapToClock(-5))
	assert.Equal(t, "19:00", v.TapToClock(5000))
}

func TestSlice_ThreeLanes(t *testing.T) {
	_, _, x0, w0 := slice(0, 3, 300, 6)
	_, _, x1, w1 := slice(1, 3, 300, 6)
	_, _, x2, w2 := slice(2, 3, 300, 6)

	assert.InDelta(t, 0.0, x0, 1e-9)
	assert.InDelta(t, 97.0, w0, 1e-9)
	assert.InDelta(t, 103.0, x1, 1e-9)
	assert.InDelta(t, 94.0, w1, 1e-9)
	assert.InDelta(t, 203.0, x2, 1e-9)
	assert.InDelta(t, 97.0, w2, 1e-9)
}

func TestOptionsFromConfig_MatchesDefaults(t *testing.T) {
	assert.Equal(t, DefaultOptions(), OptionsFromConfig(config.DefaultConfig()))
}
