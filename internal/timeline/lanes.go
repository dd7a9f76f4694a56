package timeline

import "slices"

// Interval is one schedulable item, in minutes since midnight.
type Interval struct {
	ID    string `json:"id"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Overlaps reports whether a and b share any time. Touching intervals
// (a.End == b.Start) do not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// Placement is an Interval with its lane assignment.
//
// Group numbers the overlap groups in sweep order. LaneCount is the lane
// total of the whole group and is the same for every member.
type Placement struct {
	Interval
	Group     int `json:"group"`
	Lane      int `json:"lane"`
	LaneCount int `json:"lane_count"`
}

// Positioned is a Placement with its vertical geometry.
type Positioned struct {
	Placement
	Geometry
}

// overlapGroup is the intermediate structure between the sweep and the
// final placements: lanes are assigned while the group grows, and the lane
// count is only known once the group is closed.
type overlapGroup struct {
	members  []Placement
	laneEnds []int
	maxEnd   int
}

// occupiedEnd is the minute at which iv frees its lane. A zero-length item
// holds its start minute.
func occupiedEnd(iv Interval) int {
	return max(iv.End, iv.Start+1)
}

// add places iv in the first lane that is free at iv.Start, opening a new
// lane if none is.
func (g *overlapGroup) add(iv Interval) {
	occupied := occupiedEnd(iv)
	lane := -1
	for i, end := range g.laneEnds {
		if end <= iv.Start {
			lane = i
			break
		}
	}
	if lane < 0 {
		lane = len(g.laneEnds)
		g.laneEnds = append(g.laneEnds, occupied)
	} else {
		g.laneEnds[lane] = occupied
	}
	g.members = append(g.members, Placement{Interval: iv, Lane: lane})
	g.maxEnd = max(g.maxEnd, occupied)
}

// close stamps every member with the group's final lane count.
func (g *overlapGroup) close(index int, out []Placement) []Placement {
	for _, m := range g.members {
		m.Group = index
		m.LaneCount = len(g.laneEnds)
		out = append(out, m)
	}
	return out
}

// AllocateLanes assigns each interval a lane so that no two intervals in
// the same lane overlap, using the fewest lanes per overlap group.
//
// Inverted intervals are normalized to zero length. A zero-length item is
// allocated as if it lasted one minute, so it never shares a lane with an
// item starting at the same minute. Intervals that lie entirely outside
// cfg's window are dropped. The result is ordered by
// (Start, End) with input order breaking ties, and is deterministic for
// a given input.
func AllocateLanes(intervals []Interval, cfg WindowConfig) []Placement {
	windowStart, windowEnd := cfg.StartMinute(), cfg.EndMinute()

	visible := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		iv.End = max(iv.End, iv.Start)
		if occupiedEnd(iv) <= windowStart || iv.Start >= windowEnd {
			continue
		}
		visible = append(visible, iv)
	}

	slices.SortStableFunc(visible, func(a, b Interval) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return a.End - b.End
	})

	out := make([]Placement, 0, len(visible))
	var cur *overlapGroup
	groupIndex := 0
	for _, iv := range visible {
		if cur != nil && iv.Start >= cur.maxEnd {
			out = cur.close(groupIndex, out)
			groupIndex++
			cur = nil
		}
		if cur == nil {
			cur = &overlapGroup{maxEnd: occupiedEnd(iv)}
		}
		cur.add(iv)
	}
	if cur != nil {
		out = cur.close(groupIndex, out)
	}
	return out
}

// Layout allocates lanes and computes geometry for every visible interval.
func Layout(intervals []Interval, cfg WindowConfig, s Scale) []Positioned {
	placed := AllocateLanes(intervals, cfg)
	out := make([]Positioned, len(placed))
	for i, p := range placed {
		out[i] = Positioned{
			Placement: p,
			Geometry:  ComputeYAndHeight(p.Start, p.End, cfg, s),
		}
	}
	return out
}
